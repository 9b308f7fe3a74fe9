// Package config provides configuration parsing and validation for the Ulak messaging server.
//
// # Overview
//
// Configuration is read from a JSON file and merged on top of the
// defaults returned by DefaultConfig. The result is validated before
// use, so a server never starts with an inconsistent configuration.
//
// # Loading
//
//	cfg, err := config.Load("/etc/ulak/config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Format
//
// An example configuration file:
//
//	{
//	    "node": {
//	        "id": "node1",
//	        "addr": "10.0.0.1:7001"
//	    },
//	    "cluster": {
//	        "peers": [
//	            {"id": "node2", "addr": "10.0.0.2:7001"},
//	            {"id": "node3", "addr": "10.0.0.3:7001"}
//	        ],
//	        "electionTimeoutMin": "150ms",
//	        "electionTimeoutMax": "300ms",
//	        "heartbeatInterval": "50ms"
//	    },
//	    "storage": {
//	        "dataDir": "/var/lib/ulak"
//	    },
//	    "http": {
//	        "address": ":8080"
//	    },
//	    "logging": {
//	        "level": "info",
//	        "format": "json",
//	        "output": "stdout"
//	    }
//	}
//
// Durations accept Go duration strings ("150ms", "1s") or integer
// nanoseconds.
//
// # Validation
//
// ValidateConfig checks the configuration and returns all problems it
// finds rather than stopping at the first one:
//
//	errs := config.ValidateConfig(cfg)
//	for _, err := range errs {
//	    fmt.Fprintln(os.Stderr, err)
//	}
//
// Validation covers node identity, peer uniqueness, address formats,
// timing relationships (heartbeat interval must be shorter than the
// election timeout), and logging settings.
package config
