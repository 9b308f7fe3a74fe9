// Package config provides configuration parsing and validation for the Ulak messaging server.
package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error

	errs = append(errs, validateNodeConfig(&config.Node)...)
	errs = append(errs, validateClusterConfig(&config.Cluster, config.Node.ID)...)
	errs = append(errs, validateStorageConfig(&config.Storage)...)
	errs = append(errs, validateHTTPConfig(&config.HTTP)...)
	errs = append(errs, validateLogConfig(&config.Logging)...)

	return errs
}

// validateNodeConfig validates the node identity configuration.
func validateNodeConfig(config *NodeConfig) []error {
	var errs []error

	if config.ID == "" {
		errs = append(errs, ValidationError{
			Field:   "node.id",
			Message: "node ID is required",
		})
	}

	if config.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "node.addr",
			Message: "node address is required",
		})
	} else if err := validateAddress(config.Addr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "node.addr",
			Message: err.Error(),
		})
	}

	return errs
}

// validateClusterConfig validates cluster membership and timing.
func validateClusterConfig(config *ClusterConfig, selfID string) []error {
	var errs []error

	seen := make(map[string]bool)
	for i, peer := range config.Peers {
		field := fmt.Sprintf("cluster.peers[%d]", i)
		if peer.ID == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: "peer ID is required",
			})
			continue
		}
		if peer.ID == selfID {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: "peer ID must differ from node.id",
			})
		}
		if seen[peer.ID] {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate peer ID %q", peer.ID),
			})
		}
		seen[peer.ID] = true

		if peer.Addr == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".addr",
				Message: "peer address is required",
			})
		} else if err := validateAddress(peer.Addr); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".addr",
				Message: err.Error(),
			})
		}
	}

	if config.ElectionTimeoutMin <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cluster.electionTimeoutMin",
			Message: "must be positive",
		})
	}

	if config.ElectionTimeoutMax < config.ElectionTimeoutMin {
		errs = append(errs, ValidationError{
			Field:   "cluster.electionTimeoutMax",
			Message: "must be greater than or equal to electionTimeoutMin",
		})
	}

	if config.HeartbeatInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cluster.heartbeatInterval",
			Message: "must be positive",
		})
	}

	if config.HeartbeatInterval > 0 && config.ElectionTimeoutMin > 0 &&
		config.HeartbeatInterval >= config.ElectionTimeoutMin {
		errs = append(errs, ValidationError{
			Field:   "cluster.heartbeatInterval",
			Message: "must be less than electionTimeoutMin",
		})
	}

	return errs
}

// validateStorageConfig validates storage configuration.
func validateStorageConfig(config *StorageConfig) []error {
	var errs []error

	if config.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.dataDir",
			Message: "data directory is required",
		})
	}

	return errs
}

// validateHTTPConfig validates the HTTP API configuration.
func validateHTTPConfig(config *HTTPConfig) []error {
	var errs []error

	if config.Address != "" {
		if err := validateAddress(config.Address); err != nil {
			errs = append(errs, ValidationError{
				Field:   "http.address",
				Message: err.Error(),
			})
		}
	}

	if config.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "http.readTimeout",
			Message: "must be non-negative",
		})
	}

	if config.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "http.writeTimeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLogConfig validates logging configuration.
func validateLogConfig(config *LogConfig) []error {
	var errs []error

	switch config.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn, or error)", config.Level),
		})
	}

	switch config.Format {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (must be text or json)", config.Format),
		})
	}

	return errs
}

// validateAddress checks that an address is a valid host:port pair.
func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %v", addr, err)
	}
	if port == "" {
		return fmt.Errorf("invalid address %q: missing port", addr)
	}
	if strings.Contains(host, " ") {
		return fmt.Errorf("invalid address %q: host contains spaces", addr)
	}
	return nil
}
