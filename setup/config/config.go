// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Global       Global       `yaml:"global"`
	TypingAPI    TypingAPI    `yaml:"typing_api"`
	RateLimiting RateLimiting `yaml:"rate_limiting"`
	Logging      Logging      `yaml:"logging"`
}

type Global struct {
	// ServerName is the domain this server hosts users under, e.g.
	// "example.com". Anything else in a room's membership is remote.
	ServerName spec.ServerName `yaml:"server_name"`

	// ListenAddress for the client API and metrics, e.g. ":8073".
	ListenAddress string `yaml:"listen_address"`

	// RoomserverURL is the base URL of the roomserver's internal API,
	// used for membership and room distribution queries.
	RoomserverURL string `yaml:"roomserver_url"`

	// AuthURL is the endpoint used to resolve client access tokens to
	// local user IDs, in the manner of /account/whoami.
	AuthURL string `yaml:"auth_url"`

	Metrics Metrics `yaml:"metrics"`
	Sentry  Sentry  `yaml:"sentry"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

// Sentry configures upload of panics and fan-out failures to sentry.
type Sentry struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

type Logging struct {
	// Level is one of the logrus level names, e.g. "info" or "debug".
	Level string `yaml:"level"`
}

func (c *Config) Defaults() {
	c.Global.ListenAddress = ":8073"
	c.Global.RoomserverURL = "http://localhost:7770"
	c.Global.AuthURL = "http://localhost:7771/account/whoami"
	c.TypingAPI.Defaults()
	c.RateLimiting.Defaults()
	c.Logging.Level = "info"
}

func (c *Config) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "global.server_name", string(c.Global.ServerName))
	checkNotEmpty(configErrs, "global.listen_address", c.Global.ListenAddress)
	checkNotEmpty(configErrs, "global.roomserver_url", c.Global.RoomserverURL)
	checkNotEmpty(configErrs, "global.auth_url", c.Global.AuthURL)
	if c.Global.Sentry.Enabled {
		checkNotEmpty(configErrs, "global.sentry.dsn", c.Global.Sentry.DSN)
	}
	c.TypingAPI.Verify(configErrs)
	c.RateLimiting.Verify(configErrs)
}

func (c *Config) Wire() {
	c.TypingAPI.Matrix = &c.Global
}

// Load reads and verifies a YAML config from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	c.Defaults()
	if err = yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, err
	}
	c.Wire()
	var configErrs ConfigErrors
	c.Verify(&configErrs)
	if len(configErrs) > 0 {
		return nil, configErrs
	}
	return &c, nil
}

// ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf(
		"%s (and %d other problems)", errs[0], len(errs)-1,
	)
}

// checkNotEmpty verifies the given value is not empty in the configuration.
// If it is, adds an error to the list.
func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if strings.TrimSpace(value) == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkPositive verifies the given value is positive (zero included)
// in the configuration. If it is not, adds an error to the list.
func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}
