package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid,
// per spec §4.9 pass 3.
func (c *TrackerConfig) Validate() error {
	if c.Broker.RestURL == "" {
		return errors.New("broker.rest_url is required")
	}
	if c.Broker.WSURL == "" {
		return errors.New("broker.ws_url is required")
	}
	if c.Broker.APIKeyEnv == "" {
		return errors.New("broker.api_key_env is required")
	}
	if c.Broker.AccessTokenEnv == "" {
		return errors.New("broker.access_token_env is required")
	}

	if c.Sink.TickerChannelID == "" {
		return errors.New("sink.ticker_channel_id is required")
	}
	if c.Sink.AlertChannelID == "" {
		return errors.New("sink.alert_channel_id is required")
	}

	if c.Feed.Mode != "ltp" && c.Feed.Mode != "quote" && c.Feed.Mode != "full" {
		return fmt.Errorf("feed.mode must be one of ltp, quote, full, got %q", c.Feed.Mode)
	}

	if c.View.PageSize < 1 {
		return errors.New("view.page_size must be >= 1")
	}

	if c.Audit.Enabled {
		if err := c.Audit.validate(); err != nil {
			return err
		}
	}

	return nil
}

func (a *AuditConfig) validate() error {
	if a.DSN == "" {
		return errors.New("audit.dsn is required when audit.enabled is true")
	}
	if a.MaxConns < 1 {
		return errors.New("audit.max_conns must be >= 1")
	}
	if a.MinConns < 0 {
		return errors.New("audit.min_conns must be >= 0")
	}
	if a.MinConns > a.MaxConns {
		return fmt.Errorf("audit.min_conns (%d) cannot exceed audit.max_conns (%d)", a.MinConns, a.MaxConns)
	}
	return nil
}
