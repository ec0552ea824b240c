// Package config groups the settings required to initialise a bridge. Only
// the keys relevant to the selected transport are used.
package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultBackendTopic  = "glasswing.to_backend"
	DefaultFrontendTopic = "glasswing.to_frontend"
	DefaultWebSocketPath = "/bridge"
	DefaultDevToolsPort  = 8471
)

// Config selects the rendering-surface transport and tunes the optional
// development facilities. The zero value is usable: an in-process channel
// transport with default topics and everything optional disabled.
type Config struct {
	// Transport selects how the rendering surface is attached. Supported
	// values: "channel" (in-process, default), "pipe" (stdio frames for an
	// out-of-process surface), "websocket" (browser or dev-server surface).
	Transport string

	// BackendTopic carries frontend-originated envelopes (call requests and
	// frontend events); FrontendTopic carries the reverse direction. Both
	// default when empty.
	BackendTopic  string
	FrontendTopic string

	// WebSocket transport configuration.
	WebSocketAddress string // listen address, e.g. "127.0.0.1:8470"
	WebSocketPath    string // defaults to "/bridge"

	// Metrics configuration.
	MetricsEnabled bool
	MetricsPort    int

	// DevTools exposes the schema, binding stats, and generated stubs over
	// HTTP for the shell's development tooling.
	DevToolsEnabled            bool
	DevToolsPort               int // defaults to 8471
	DevToolsCORSAllowedOrigins []string
}

// Getter methods keep transport builders decoupled from the struct layout and
// apply defaults in one place.

func (c *Config) GetTransport() string {
	if c.Transport == "" {
		return "channel"
	}
	return strings.ToLower(c.Transport)
}

func (c *Config) GetBackendTopic() string {
	if c.BackendTopic == "" {
		return DefaultBackendTopic
	}
	return c.BackendTopic
}

func (c *Config) GetFrontendTopic() string {
	if c.FrontendTopic == "" {
		return DefaultFrontendTopic
	}
	return c.FrontendTopic
}

func (c *Config) GetWebSocketPath() string {
	if c.WebSocketPath == "" {
		return DefaultWebSocketPath
	}
	return c.WebSocketPath
}

func (c *Config) GetDevToolsPort() int {
	if c.DevToolsPort == 0 {
		return DefaultDevToolsPort
	}
	return c.DevToolsPort
}

// Validate checks that the configuration is coherent for the selected
// transport. Unknown transport names are rejected here rather than at build
// time so misconfiguration fails before any goroutine starts.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validatePorts()...)
	if c.GetBackendTopic() == c.GetFrontendTopic() {
		errs = append(errs, errors.New("topics: backend and frontend topics must differ"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateTransport() []error {
	switch c.GetTransport() {
	case "channel", "pipe":
		return nil
	case "websocket":
		if c.WebSocketAddress == "" {
			return []error{errors.New("websocket: listen address is required")}
		}
		return nil
	default:
		return []error{fmt.Errorf("unknown transport %q", c.Transport)}
	}
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.DevToolsPort < 0 || c.DevToolsPort > 65535 {
		errs = append(errs, fmt.Errorf("devtools: invalid port %d", c.DevToolsPort))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
