package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ulak-chat/ulak/internal/raft"
)

// statusCmd handles the status command. It queries a running node's
// HTTP API and prints its consensus status.
func statusCmd(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	addr := fs.String("addr", "http://127.0.0.1:8080", "Node HTTP address")
	asJSON := fs.Bool("json", false, "Print raw JSON")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printStatusUsage(os.Stdout)
		return 0
	}

	url := strings.TrimSuffix(*addr, "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	url += "/v1/status"

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query %s: %v\n", url, err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Unexpected status %d from %s\n", resp.StatusCode, url)
		return 1
	}

	var status raft.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode status: %v\n", err)
		return 1
	}

	if *asJSON {
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	fmt.Printf("Node:         %s\n", status.NodeID)
	fmt.Printf("Role:         %s\n", status.Role)
	fmt.Printf("Term:         %d\n", status.Term)
	if status.LeaderID != "" {
		fmt.Printf("Leader:       %s (%s)\n", status.LeaderID, status.LeaderAddr)
	} else {
		fmt.Printf("Leader:       unknown\n")
	}
	fmt.Printf("Commit index: %d\n", status.CommitIndex)
	fmt.Printf("Last applied: %d\n", status.LastApplied)
	fmt.Printf("Log entries:  %d\n", status.LastLogIndex)
	fmt.Printf("Peers:        %d\n", status.PeerCount)

	return 0
}
