// Package config provides configuration parsing and validation for the Ulak messaging server.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so JSON config files can use strings
// like "150ms" or "1s" as well as integer nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

// Config holds the complete server configuration.
type Config struct {
	Node    NodeConfig    `json:"node"`
	Cluster ClusterConfig `json:"cluster"`
	Storage StorageConfig `json:"storage"`
	HTTP    HTTPConfig    `json:"http"`
	Logging LogConfig     `json:"logging"`
}

// NodeConfig holds the identity of this cluster member.
type NodeConfig struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// ClusterConfig holds cluster membership and timing configuration.
type ClusterConfig struct {
	Peers              []PeerConfig `json:"peers"`
	ElectionTimeoutMin Duration     `json:"electionTimeoutMin"`
	ElectionTimeoutMax Duration     `json:"electionTimeoutMax"`
	HeartbeatInterval  Duration     `json:"heartbeatInterval"`
}

// PeerConfig identifies one remote cluster member.
type PeerConfig struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// StorageConfig holds durable state configuration.
type StorageConfig struct {
	DataDir string `json:"dataDir"`
}

// HTTPConfig holds the client-facing HTTP API configuration.
type HTTPConfig struct {
	Address      string   `json:"address"`
	ReadTimeout  Duration `json:"readTimeout"`
	WriteTimeout Duration `json:"writeTimeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}
