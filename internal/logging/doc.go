// Package logging provides structured logging for the Ulak messaging server.
//
// # Overview
//
// The logging package provides a structured logging interface with support for:
//
//   - Multiple log levels (debug, info, warn, error)
//   - Text and JSON output formats
//   - Field-based contextual logging
//
// # Creating a Logger
//
// Create a logger with configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/ulak/ulak.log",
//	})
//
// Or use defaults:
//
//	logger := logging.NewDefault() // Info level, text format, stdout
//
// For testing, use a no-op logger:
//
//	logger := logging.NewNop()
//
// # Log Levels
//
// Four log levels are supported:
//
//	logger.Debug("detailed debugging info", "key", "value")
//	logger.Info("informational message", "key", "value")
//	logger.Warn("warning message", "key", "value")
//	logger.Error("error message", "key", "value")
//
// Parse level from string:
//
//	level := logging.ParseLevel("debug") // Returns LevelDebug
//
// # Structured Logging
//
// Add key-value pairs to log entries:
//
//	logger.Info("became leader",
//	    "node_id", "node1",
//	    "term", 7,
//	    "peers", 2,
//	)
//
// Output (JSON format):
//
//	{
//	    "ts": "2026-02-18T10:30:00Z",
//	    "level": "info",
//	    "msg": "became leader",
//	    "node_id": "node1",
//	    "term": 7,
//	    "peers": 2
//	}
//
// # Contextual Fields
//
// Create loggers with persistent fields:
//
//	nodeLogger := logger.WithFields(
//	    "node_id", cfg.NodeID,
//	    "addr", cfg.RaftAddr,
//	)
//
//	// All subsequent logs include these fields
//	nodeLogger.Info("election timeout, starting election")
//	nodeLogger.Info("became leader")
//
// # Output Formats
//
// Text format (human-readable):
//
//	2026-02-18T10:30:00Z [info] became leader node_id=node1 term=7
//
// JSON format (machine-parseable):
//
//	{"ts":"2026-02-18T10:30:00Z","level":"info","msg":"became leader",...}
//
// # Output Destinations
//
// Configure output destination:
//
//	logging.Config{Output: "stdout"}            // Standard output
//	logging.Config{Output: "stderr"}            // Standard error
//	logging.Config{Output: "/var/log/ulak.log"} // File path
package logging
