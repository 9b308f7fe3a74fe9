// Package config provides configuration parsing and validation for the Ulak messaging server.
package config

import "time"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:   "node1",
			Addr: "127.0.0.1:7001",
		},
		Cluster: ClusterConfig{
			Peers:              nil,
			ElectionTimeoutMin: Duration(150 * time.Millisecond),
			ElectionTimeoutMax: Duration(300 * time.Millisecond),
			HeartbeatInterval:  Duration(50 * time.Millisecond),
		},
		Storage: StorageConfig{
			DataDir: "/var/lib/ulak",
		},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
