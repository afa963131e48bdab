package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the mesh configuration.
const (
	DefaultGRPCPort           = 50051
	DefaultHTTPPort           = 8080
	DefaultSnapshotTTL        = 5 * time.Minute
	DefaultCoherenceThreshold = 0.8
	DefaultBroadcastInterval  = time.Second
	DefaultHeader             = "x-api-key"
)

// Config holds the settings parsed from the `mesh:` section of the file.
// Other top-level keys, such as `node:`, are ignored.
type Config struct {
	Mesh MeshConfig `yaml:"mesh"`
}

// MeshConfig holds all meshd settings.
type MeshConfig struct {
	// GRPCPort is the port the snapshot receiver listens on.
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort serves the REST API and the WebSocket stream.
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	// CoherenceThreshold is the merged coherence at which the mesh counts as
	// collapsed.
	CoherenceThreshold float64 `yaml:"coherence_threshold"`

	// BroadcastInterval is the WebSocket push period.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	Auth     AuthConfig     `yaml:"auth"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// AuthConfig controls how nodes and REST clients authenticate.
type AuthConfig struct {
	// Mode is one of: apikey | mtls | none.
	Mode string `yaml:"mode"`

	// KeyEnv names the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key and HTTP header carrying the key.
	Header string `yaml:"header"`

	// mTLS listener material, used when Mode == "mtls".
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	ClientCAFile string `yaml:"client_ca_file"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or DefaultHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultHeader
}

// SnapshotConfig controls node registry retention.
type SnapshotConfig struct {
	// TTL is how long a node stays in the registry after its last snapshot.
	TTL time.Duration `yaml:"ttl"`
}

// AlertsConfig holds alert rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule is one per-node threshold condition.
type AlertRule struct {
	// Name identifies the rule and is the deduplication key per node.
	Name string `yaml:"name"`

	// Condition is "field op value", for example "coherence < 0.3",
	// "collapsed == true" or "phase_diff > 0.5".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires after an alert fires. Zero means 15m.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig is one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mesh config: read %q: %w", path, err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mesh config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("mesh config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Mesh: MeshConfig{
			GRPCPort:           DefaultGRPCPort,
			HTTPPort:           DefaultHTTPPort,
			LogLevel:           "info",
			CoherenceThreshold: DefaultCoherenceThreshold,
			BroadcastInterval:  DefaultBroadcastInterval,
			Snapshot:           SnapshotConfig{TTL: DefaultSnapshotTTL},
		},
	}
}

func validate(cfg *Config) error {
	m := cfg.Mesh
	if m.GRPCPort <= 0 || m.GRPCPort > 65535 {
		return fmt.Errorf("mesh.grpc_port %d is out of range [1, 65535]", m.GRPCPort)
	}
	if m.HTTPPort <= 0 || m.HTTPPort > 65535 {
		return fmt.Errorf("mesh.http_port %d is out of range [1, 65535]", m.HTTPPort)
	}
	switch m.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("mesh.log_level: unknown level %q", m.LogLevel)
	}
	if !(m.CoherenceThreshold >= 0 && m.CoherenceThreshold <= 1) {
		return fmt.Errorf("mesh.coherence_threshold must be within [0,1], got %g", m.CoherenceThreshold)
	}
	if m.BroadcastInterval <= 0 {
		return fmt.Errorf("mesh.broadcast_interval must be positive")
	}
	switch m.Auth.Mode {
	case "apikey", "none", "":
	case "mtls":
		if m.Auth.CertFile == "" || m.Auth.KeyFile == "" {
			return fmt.Errorf("mesh.auth: cert_file and key_file are required for mtls")
		}
	default:
		return fmt.Errorf("mesh.auth.mode %q unknown: want apikey|mtls|none", m.Auth.Mode)
	}
	if m.Snapshot.TTL <= 0 {
		return fmt.Errorf("mesh.snapshot.ttl must be positive")
	}
	for i, r := range m.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("mesh.alerts.rules[%d]: name and condition are required", i)
		}
	}
	for i, w := range m.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("mesh.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
