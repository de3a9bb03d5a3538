package config

type RateLimiting struct {
	// Is rate limiting enabled or disabled?
	Enabled bool `yaml:"enabled"`

	// How many "slots" a user can occupy sending typing updates to this
	// server before further requests are rejected.
	Threshold int64 `yaml:"threshold"`

	// The cooloff period in milliseconds after a request before the "slot"
	// is freed again.
	CooloffMS int64 `yaml:"cooloff_ms"`

	// A list of user IDs to exempt from rate limiting.
	ExemptUserIDs []string `yaml:"exempt_user_ids"`
}

func (r *RateLimiting) Verify(configErrs *ConfigErrors) {
	if r.Enabled {
		checkPositive(configErrs, "rate_limiting.threshold", r.Threshold)
		checkPositive(configErrs, "rate_limiting.cooloff_ms", r.CooloffMS)
	}
}

func (r *RateLimiting) Defaults() {
	r.Enabled = true
	r.Threshold = 20
	r.CooloffMS = 500
}
