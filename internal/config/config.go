// Package config loads the tracker's YAML configuration, substituting
// ${ENV_VAR} tokens before unmarshalling, filling documented defaults, and
// validating the result.
//
// Adapted from the teacher's internal/config (kalshi/internal/config):
// same three-pass Load -> applyDefaults -> Validate pipeline and the same
// gopkg.in/yaml.v3 + os.ExpandEnv substitution strategy, restructured
// around this tracker's sections instead of the teacher's gatherer
// sections (API/Database/Connections/Writers/Poller/Metrics).
package config

import "time"

// TrackerConfig is the root configuration document.
type TrackerConfig struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Sink       SinkConfig       `yaml:"sink"`
	Feed       FeedConfig       `yaml:"feed"`
	View       ViewConfig       `yaml:"view"`
	Alert      AlertConfig      `yaml:"alert"`
	Rotation   RotationConfig   `yaml:"rotation"`
	Audit      AuditConfig      `yaml:"audit"`
	Subscription SubscriptionConfig `yaml:"subscription"`
}

// BrokerConfig holds the broker REST + WebSocket connection settings.
type BrokerConfig struct {
	RestURL         string        `yaml:"rest_url"`
	WSURL           string        `yaml:"ws_url"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	AccessTokenEnv  string        `yaml:"access_token_env"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
}

// CatalogConfig holds instrument-catalog fetch settings.
type CatalogConfig struct {
	Exchange string `yaml:"exchange"`
}

// SinkConfig holds the chat-platform sink settings.
type SinkConfig struct {
	BaseURL          string        `yaml:"base_url"`
	TokenEnv         string        `yaml:"token_env"`
	TickerChannelID  string        `yaml:"ticker_channel_id"`
	AlertChannelID   string        `yaml:"alert_channel_id"`
	Timeout          time.Duration `yaml:"timeout"`
}

// FeedConfig holds the WebSocket feed session settings.
type FeedConfig struct {
	Mode                string        `yaml:"mode"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval"`
	MaxBackoffAttempts  int           `yaml:"max_backoff_attempts"`
	ModeSettlePause     time.Duration `yaml:"mode_settle_pause"`
	FirstTickGrace      time.Duration `yaml:"first_tick_grace"`
	ControlRateLimit    float64       `yaml:"control_rate_limit"`
	ControlBurst        int           `yaml:"control_burst"`
}

// ViewConfig holds the view-publisher cadence/paging settings.
type ViewConfig struct {
	Cadence         time.Duration `yaml:"cadence"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	PageSize        int           `yaml:"page_size"`
	InterPageSpacer time.Duration `yaml:"inter_page_spacer"`
	RecoverHandles  bool          `yaml:"recover_handles"`
	RecoverLimit    int           `yaml:"recover_limit"`
	Zone            string        `yaml:"zone"`
}

// AlertConfig holds alert-threshold settings.
//
// GateVolumeSpikeByWindow is a *bool rather than bool because its documented
// default is true: a plain bool can't distinguish "not set in YAML" from
// "explicitly set to false", and the zero value for an unset bool would
// silently flip a default-on gate to off.
type AlertConfig struct {
	Window                  time.Duration `yaml:"window"`
	CrashThresholdPct       float64       `yaml:"crash_threshold_pct"`
	SpikeThresholdPct       float64       `yaml:"spike_threshold_pct"`
	VolumeSpikeRatio        float64       `yaml:"volume_spike_ratio"`
	GateVolumeSpikeByWindow *bool         `yaml:"gate_volume_spike_by_window"`
}

// RotationConfig holds the credential-rotation schedule.
type RotationConfig struct {
	Zone          string        `yaml:"zone"`
	TimeOfDay     string        `yaml:"time_of_day"`
	LoginTimeout  time.Duration `yaml:"login_timeout"`
	RestartPause  time.Duration `yaml:"restart_pause"`
	CredentialPath string       `yaml:"credential_path"`
}

// AuditConfig holds the audit-log Postgres settings.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DSN           string        `yaml:"dsn"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
}

// SubscriptionConfig holds the on-disk subscription registry path.
type SubscriptionConfig struct {
	Path string `yaml:"path"`
}
