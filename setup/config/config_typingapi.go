package config

import "fmt"

type TypingAPI struct {
	Matrix *Global `yaml:"-"`

	// MaxTimeoutMS caps the typing duration a client may request. Requests
	// asking for longer are clamped down to this value.
	MaxTimeoutMS int64 `yaml:"max_timeout_ms"`
}

func (c *TypingAPI) Defaults() {
	c.MaxTimeoutMS = 30000
}

func (c *TypingAPI) Verify(configErrs *ConfigErrors) {
	if c.MaxTimeoutMS <= 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key \"typing_api.max_timeout_ms\": %d", c.MaxTimeoutMS))
	}
}
