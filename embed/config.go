// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embed

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for the embedding service.
type Config struct {
	// Host is the base URL of the embedding sidecar.
	// Example: "http://localhost:8000"
	Host string

	// Model is the model identifier the sidecar is expected to serve.
	// Example: "ViT-B/32"
	// Leave empty to accept whatever model the service reports.
	Model string

	// Timeout bounds each embedding request. Batches of a few hundred
	// images on CPU can take a while. Default: 120s
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the expected model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for a local CLIP
// sidecar.
func DefaultConfig() *Config {
	return &Config{
		Host:    "http://localhost:8000",
		Model:   "ViT-B/32",
		Timeout: 120 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options.
//
// Example:
//   cfg := NewConfig(
//       WithHost("http://clip.internal:8000"),
//       WithModel("ViT-L/14"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds an http:// scheme to bare host:port values and strips any trailing
// slash so endpoint paths can be appended directly.
func (c *Config) Normalize() {
	if c.Host != "" && !strings.Contains(c.Host, "://") {
		c.Host = "http://" + c.Host
	}
	c.Host = strings.TrimSuffix(c.Host, "/")
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	// Normalize first to ensure the host is in correct form
	c.Normalize()

	if c.Host == "" {
		return errors.New("embed config: Host is required")
	}
	if c.Timeout < time.Second {
		return errors.New("embed config: Timeout must be at least 1s")
	}
	return nil
}
