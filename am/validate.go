package am

import (
	"github.com/teranos/attackls/attack"
	"github.com/teranos/attackls/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := c.Attack.Validate(); err != nil {
		return err
	}

	if c.Dataset.Path == "" {
		return errors.NewInvalidConfigError("point dataset.path at enterprise-attack.json", "dataset.path cannot be empty")
	}

	switch c.Server.Transport {
	case TransportStdio:
	case TransportTCP, TransportWebSocket:
		if c.Server.Address == "" {
			return errors.NewInvalidConfigError("e.g. 127.0.0.1:7998", "server.address cannot be empty for transport %s", c.Server.Transport)
		}
	default:
		return errors.NewInvalidConfigError("use one of: stdio, tcp, websocket", "server.transport %q is not supported", c.Server.Transport)
	}

	// 0 = unlimited
	if c.Server.RateLimit < 0 {
		return errors.NewInvalidConfigError("use 0 to disable rate limiting", "server.rate_limit must be >= 0, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return errors.NewInvalidConfigError("set server.rate_burst to a positive value", "server.rate_burst must be > 0 when rate limiting, got %d", c.Server.RateBurst)
	}

	return nil
}

// Validate checks the technique lookup settings
func (a AttackConfig) Validate() error {
	if _, err := attack.ParseMode(a.Description); err != nil {
		return errors.Wrap(err, "attack.description")
	}
	if _, err := attack.ParseFormat(a.CompletionFormat); err != nil {
		return errors.Wrap(err, "attack.completion_format")
	}
	if a.MinTermLength <= 0 {
		return errors.NewInvalidConfigError("the default is 5", "attack.min_term_length must be > 0, got %d", a.MinTermLength)
	}
	if a.MaxDescriptionMatches <= 0 {
		return errors.NewInvalidConfigError("the default is 3", "attack.max_description_matches must be > 0, got %d", a.MaxDescriptionMatches)
	}
	return nil
}
