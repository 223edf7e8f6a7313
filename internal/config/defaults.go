package config

import "time"

// Default values for optional configuration fields, per spec §4.9.
const (
	DefaultBrokerTimeout           = 30 * time.Second
	DefaultBrokerMaxRetries        = 3
	DefaultBrokerRetryBackoff      = time.Second
	DefaultCatalogExchange         = "NSE"
	DefaultSinkTimeout             = 15 * time.Second
	DefaultFeedMode                = "full"
	DefaultFeedConnectTimeout      = 10 * time.Second
	DefaultReconnectInterval       = 5 * time.Second
	DefaultMaxBackoffAttempts      = 10
	DefaultModeSettlePause         = time.Second
	DefaultFirstTickGrace          = 60 * time.Second
	DefaultControlRateLimit        = 3.0
	DefaultControlBurst            = 3
	DefaultViewCadence             = 3 * time.Second
	DefaultViewInitialDelay        = 2 * time.Second
	DefaultPageSize                = 50
	DefaultInterPageSpacer         = 200 * time.Millisecond
	DefaultRecoverLimit            = 100
	DefaultZone                    = "Asia/Kolkata"
	DefaultAlertWindow             = 300 * time.Second
	DefaultCrashThresholdPct       = 3.0
	DefaultSpikeThresholdPct       = 3.0
	DefaultVolumeSpikeRatio        = 2.0
	DefaultGateVolumeSpikeByWindow = true
	DefaultRotationTimeOfDay       = "05:45"
	DefaultLoginTimeout            = 120 * time.Second
	DefaultRestartPause            = 2 * time.Second
	DefaultAuditBatchSize          = 100
	DefaultAuditFlushInterval      = time.Second
	DefaultAuditBufferSize         = 1000
	DefaultAuditMaxConns           = 5
	DefaultAuditMinConns           = 1
	DefaultSubscriptionPath        = "subscriptions.json"
)

func (c *TrackerConfig) applyDefaults() {
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = DefaultBrokerTimeout
	}
	if c.Broker.MaxRetries == 0 {
		c.Broker.MaxRetries = DefaultBrokerMaxRetries
	}
	if c.Broker.RetryBackoff == 0 {
		c.Broker.RetryBackoff = DefaultBrokerRetryBackoff
	}

	if c.Catalog.Exchange == "" {
		c.Catalog.Exchange = DefaultCatalogExchange
	}

	if c.Sink.Timeout == 0 {
		c.Sink.Timeout = DefaultSinkTimeout
	}

	if c.Feed.Mode == "" {
		c.Feed.Mode = DefaultFeedMode
	}
	if c.Feed.ConnectTimeout == 0 {
		c.Feed.ConnectTimeout = DefaultFeedConnectTimeout
	}
	if c.Feed.ReconnectInterval == 0 {
		c.Feed.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Feed.MaxBackoffAttempts == 0 {
		c.Feed.MaxBackoffAttempts = DefaultMaxBackoffAttempts
	}
	if c.Feed.ModeSettlePause == 0 {
		c.Feed.ModeSettlePause = DefaultModeSettlePause
	}
	if c.Feed.FirstTickGrace == 0 {
		c.Feed.FirstTickGrace = DefaultFirstTickGrace
	}
	if c.Feed.ControlRateLimit == 0 {
		c.Feed.ControlRateLimit = DefaultControlRateLimit
	}
	if c.Feed.ControlBurst == 0 {
		c.Feed.ControlBurst = DefaultControlBurst
	}

	if c.View.Cadence == 0 {
		c.View.Cadence = DefaultViewCadence
	}
	if c.View.InitialDelay == 0 {
		c.View.InitialDelay = DefaultViewInitialDelay
	}
	if c.View.PageSize == 0 {
		c.View.PageSize = DefaultPageSize
	}
	if c.View.InterPageSpacer == 0 {
		c.View.InterPageSpacer = DefaultInterPageSpacer
	}
	if c.View.RecoverLimit == 0 {
		c.View.RecoverLimit = DefaultRecoverLimit
	}
	if c.View.Zone == "" {
		c.View.Zone = DefaultZone
	}

	if c.Alert.Window == 0 {
		c.Alert.Window = DefaultAlertWindow
	}
	if c.Alert.CrashThresholdPct == 0 {
		c.Alert.CrashThresholdPct = DefaultCrashThresholdPct
	}
	if c.Alert.SpikeThresholdPct == 0 {
		c.Alert.SpikeThresholdPct = DefaultSpikeThresholdPct
	}
	if c.Alert.VolumeSpikeRatio == 0 {
		c.Alert.VolumeSpikeRatio = DefaultVolumeSpikeRatio
	}
	if c.Alert.GateVolumeSpikeByWindow == nil {
		gate := DefaultGateVolumeSpikeByWindow
		c.Alert.GateVolumeSpikeByWindow = &gate
	}

	if c.Rotation.Zone == "" {
		c.Rotation.Zone = DefaultZone
	}
	if c.Rotation.TimeOfDay == "" {
		c.Rotation.TimeOfDay = DefaultRotationTimeOfDay
	}
	if c.Rotation.LoginTimeout == 0 {
		c.Rotation.LoginTimeout = DefaultLoginTimeout
	}
	if c.Rotation.RestartPause == 0 {
		c.Rotation.RestartPause = DefaultRestartPause
	}

	if c.Audit.Enabled {
		if c.Audit.BatchSize == 0 {
			c.Audit.BatchSize = DefaultAuditBatchSize
		}
		if c.Audit.FlushInterval == 0 {
			c.Audit.FlushInterval = DefaultAuditFlushInterval
		}
		if c.Audit.BufferSize == 0 {
			c.Audit.BufferSize = DefaultAuditBufferSize
		}
		if c.Audit.MaxConns == 0 {
			c.Audit.MaxConns = DefaultAuditMaxConns
		}
		if c.Audit.MinConns == 0 {
			c.Audit.MinConns = DefaultAuditMinConns
		}
	}

	if c.Subscription.Path == "" {
		c.Subscription.Path = DefaultSubscriptionPath
	}
}
