package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `ulak - Replicated messaging server

Usage:
  ulak <command> [options]

Commands:
  serve       Start a cluster node
  status      Show a node's consensus status
  version     Show version information

Use "ulak <command> -h" for more information about a command.
`)
}

// printServeUsage prints the serve command usage.
func printServeUsage(w io.Writer) {
	fmt.Fprint(w, `Start a cluster node

Usage:
  ulak serve [options]

Options:
  -config string
        Path to configuration file
  -id string
        Node ID (overrides config)
  -addr string
        Cluster listen address (overrides config, default "127.0.0.1:7001")
  -peers string
        Comma-separated peers as id:host:port (overrides config)
  -data-dir string
        Data directory path (overrides config, default "/var/lib/ulak")
  -http-address string
        HTTP API listen address (overrides config, default ":8080")
  -log-level string
        Log level: debug, info, warn, error (overrides config)
  -h, -help
        Show this help message

Environment Variables:
  ULAK_NODE_ID           Override node ID
  ULAK_NODE_ADDR         Override cluster listen address
  ULAK_HTTP_ADDRESS      Override HTTP API listen address
  ULAK_STORAGE_DATA_DIR  Override data directory path
  ULAK_LOGGING_LEVEL     Override log level
`)
}

// printStatusUsage prints the status command usage.
func printStatusUsage(w io.Writer) {
	fmt.Fprint(w, `Show a node's consensus status

Usage:
  ulak status [options]

Options:
  -addr string
        Node HTTP address (default "http://127.0.0.1:8080")
  -json
        Print raw JSON
  -timeout duration
        Request timeout (default 5s)
  -h, -help
        Show this help message
`)
}

// printVersionUsage prints the version command usage.
func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  ulak version [options]

Options:
  -short
        Show only version number
  -h, -help
        Show this help message
`)
}
