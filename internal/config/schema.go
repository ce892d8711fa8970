package config

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version"`
	Engine   EngineConf   `yaml:"engine"`
	Tracking TrackingConf `yaml:"tracking"`
	Backends BackendsConf `yaml:"backends"`
}

// EngineConf holds tunable concurrency settings for event ingestion.
type EngineConf struct {
	Workers        int `yaml:"workers"`
	QueueDepth     int `yaml:"queue_depth"`
	EventTimeoutMs int `yaml:"event_timeout_ms"`
}

// TrackingConf controls per-session dispatcher behaviour.
type TrackingConf struct {
	// ConsentDefault is the consent state of a new session when the client
	// does not send one. Nil means accepted.
	ConsentDefault *bool  `yaml:"consent_default"`
	AppVersion     string `yaml:"app_version"`
	Debug          bool   `yaml:"debug"`
	SessionIdleMs  int    `yaml:"session_idle_ms"`
	SweepEveryMs   int    `yaml:"sweep_every_ms"`
}

// ConsentAccepted resolves ConsentDefault.
func (t TrackingConf) ConsentAccepted() bool {
	return t.ConsentDefault == nil || *t.ConsentDefault
}

// BackendsConf lists where each third-party service is reached.
type BackendsConf struct {
	GA4       BackendConf `yaml:"ga4"`
	Mixpanel  BackendConf `yaml:"mixpanel"`
	Pixel     BackendConf `yaml:"pixel"`
	Bugsnag   BackendConf `yaml:"bugsnag"`
	Coingecko BackendConf `yaml:"coingecko"`
}

// BackendConf is the transport configuration of one backend.
type BackendConf struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMs int    `yaml:"timeout_ms"`
}
