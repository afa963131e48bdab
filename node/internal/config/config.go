package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultMasterTauBase           = 60.0
	DefaultMasterTauMax            = 3600.0
	DefaultEmissaryTauBase         = 0.01
	DefaultEmissaryTauMax          = 1.0
	DefaultCoherenceThreshold      = 0.8
	DefaultPhaseAlignmentThreshold = 0.1
	DefaultWitnessBeta             = 0.05
	DefaultMemoryHalfLife          = 3600.0
	DefaultMemoryMaxAge            = 86400.0
	DefaultSyncInterval            = 10 * time.Millisecond

	DefaultStabilizeFraction = 0.9
	DefaultDesyncBound       = 1.0
	DefaultDesyncTicks       = 50
	DefaultDecayTicks        = 50
	DefaultWitnessCapacity   = 100000
	DefaultMemoryPruneEvery  = 100
	DefaultQueueSize         = 1024

	DefaultHTTPPort     = 8090
	DefaultShipInterval = time.Second
	DefaultBufferSize   = 1000
	DefaultScrapeEvery  = 15 * time.Second
)

// Config is the top-level node configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Node NodeConfig `yaml:"node"`
}

// NodeConfig holds all settings for one coherence node.
type NodeConfig struct {
	// ID identifies this node to the mesh. Empty means a random UUID is
	// assigned at startup.
	ID string `yaml:"id"`

	// HTTPPort serves the REST API, sample ingestion and /metrics.
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	Engine  EngineConfig  `yaml:"engine"`
	Inputs  []InputConfig `yaml:"inputs"`
	Outputs OutputsConfig `yaml:"outputs"`
	Storage StorageConfig `yaml:"storage"`
	Mesh    MeshConfig    `yaml:"mesh"`
	Tracing TracingConfig `yaml:"tracing"`
}

// EngineConfig carries every tunable of the coherence engine. Durations of
// the signal (tau values, half-life, max age) are float seconds on the sample
// clock; SyncInterval is a wall-clock tick period.
type EngineConfig struct {
	// Preset seeds the pathway and threshold keys: assistant | robot |
	// vehicle | science. Explicit keys override the preset.
	Preset string `yaml:"preset"`

	MasterTauBase           float64       `yaml:"master_tau_base"`
	MasterTauMax            float64       `yaml:"master_tau_max"`
	EmissaryTauBase         float64       `yaml:"emissary_tau_base"`
	EmissaryTauMax          float64       `yaml:"emissary_tau_max"`
	CoherenceThreshold      float64       `yaml:"coherence_threshold"`
	PhaseAlignmentThreshold float64       `yaml:"phase_alignment_threshold"`
	WitnessBeta             float64       `yaml:"witness_beta"`
	MemoryHalfLife          float64       `yaml:"memory_half_life"`
	MemoryMaxAge            float64       `yaml:"memory_max_age"`
	SyncInterval            time.Duration `yaml:"sync_interval"`

	// Omega is the angular frequency of the spectral weight e^{iωt}.
	Omega float64 `yaml:"omega"`

	// StabilizeFraction of CoherenceThreshold above which a pathway widens
	// its window.
	StabilizeFraction float64 `yaml:"stabilize_fraction"`

	MasterWeight   float64 `yaml:"master_weight"`
	EmissaryWeight float64 `yaml:"emissary_weight"`

	// DesyncBound is the phase difference that counts as divergence.
	DesyncBound float64 `yaml:"desync_bound"`
	// DesyncTicks consecutive divergent ticks force a de-collapse.
	DesyncTicks int `yaml:"desync_ticks"`
	// DecayTicks is the length of the linear coherence decay after desync.
	DecayTicks int `yaml:"decay_ticks"`

	WitnessCapacity  int `yaml:"witness_capacity"`
	MemoryPruneEvery int `yaml:"memory_prune_every"`

	// QueueSize bounds the input queue; the oldest sample is dropped when full.
	QueueSize int `yaml:"queue_size"`
}

// InputConfig describes one input adapter.
type InputConfig struct {
	// ID is a unique, human-readable identifier for this input.
	ID string `yaml:"id"`

	// Type is prometheus | http | replay.
	Type string `yaml:"type"`

	// Path is the SQLite store read by replay inputs.
	Path string `yaml:"path"`

	// Endpoint is the metrics URL for prometheus inputs.
	Endpoint string `yaml:"endpoint"`

	// Metric is the metric family read from the scrape.
	Metric string `yaml:"metric"`

	// Labels restricts the metric to series carrying all of these labels.
	Labels map[string]string `yaml:"labels"`

	// Encoder maps the scalar reading to a phase: identity | unit_angle |
	// audio | pressure | spike | vibration.
	Encoder string `yaml:"encoder"`

	// Interval is the scrape period for prometheus inputs and the delay
	// between samples for replay inputs (zero replays unpaced).
	Interval time.Duration `yaml:"interval"`
}

// OutputsConfig toggles the built-in output adapters.
type OutputsConfig struct {
	Log    LogOutputConfig    `yaml:"log"`
	Speech SpeechOutputConfig `yaml:"speech"`
}

// LogOutputConfig writes every state to the structured log at debug level.
type LogOutputConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SpeechOutputConfig announces collapse transitions through Amazon Polly.
type SpeechOutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	VoiceID string `yaml:"voice_id"`
	Engine  string `yaml:"engine"`
	// Dir receives one mp3 file per announcement.
	Dir string `yaml:"dir"`
}

// StorageConfig configures durable memory persistence.
type StorageConfig struct {
	// Backend selects the implementation: sqlite, or empty for memory only.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// MeshConfig configures snapshot shipping to a mesh aggregator.
type MeshConfig struct {
	// Endpoint is the gRPC address of meshd (host:port). Empty disables shipping.
	Endpoint string `yaml:"endpoint"`

	// ShipInterval is the minimum sample-clock spacing between shipped states.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// BufferSize is the maximum number of snapshots held while meshd is unreachable.
	BufferSize int `yaml:"buffer_size"`

	Auth AuthConfig `yaml:"auth"`
}

// TracingConfig selects where engine tick spans are exported.
type TracingConfig struct {
	// Exporter is one of: none | stdout. Empty means none.
	Exporter string `yaml:"exporter"`

	// Path receives stdout-exporter spans as JSON lines. Empty means stderr.
	Path string `yaml:"path"`

	// SampleRatio is the fraction of root ticks traced, within [0,1].
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AuthConfig specifies how the node authenticates to meshd.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the gRPC metadata key carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults, then with the engine
// preset if one is named, and finally with the explicit file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Node struct {
			Engine struct {
				Preset string `yaml:"preset"`
			} `yaml:"engine"`
		} `yaml:"node"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg := defaults()
	if name := head.Node.Engine.Preset; name != "" {
		if err := ApplyPreset(&cfg.Node.Engine, name); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config holding only default values.
func Default() *Config {
	return defaults()
}

// DefaultEngine returns the default engine parameters.
func DefaultEngine() EngineConfig {
	return defaults().Node.Engine
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Node: NodeConfig{
			HTTPPort: DefaultHTTPPort,
			LogLevel: "info",
			Engine: EngineConfig{
				MasterTauBase:           DefaultMasterTauBase,
				MasterTauMax:            DefaultMasterTauMax,
				EmissaryTauBase:         DefaultEmissaryTauBase,
				EmissaryTauMax:          DefaultEmissaryTauMax,
				CoherenceThreshold:      DefaultCoherenceThreshold,
				PhaseAlignmentThreshold: DefaultPhaseAlignmentThreshold,
				WitnessBeta:             DefaultWitnessBeta,
				MemoryHalfLife:          DefaultMemoryHalfLife,
				MemoryMaxAge:            DefaultMemoryMaxAge,
				SyncInterval:            DefaultSyncInterval,
				StabilizeFraction:       DefaultStabilizeFraction,
				MasterWeight:            0.5,
				EmissaryWeight:          0.5,
				DesyncBound:             DefaultDesyncBound,
				DesyncTicks:             DefaultDesyncTicks,
				DecayTicks:              DefaultDecayTicks,
				WitnessCapacity:         DefaultWitnessCapacity,
				MemoryPruneEvery:        DefaultMemoryPruneEvery,
				QueueSize:               DefaultQueueSize,
			},
			Mesh: MeshConfig{
				ShipInterval: DefaultShipInterval,
				BufferSize:   DefaultBufferSize,
				Auth:         AuthConfig{Header: "x-api-key"},
			},
			Tracing: TracingConfig{SampleRatio: 1},
		},
	}
}

// Validate checks the engine parameters. Every failure is a
// *types.ConfigError.
func (e EngineConfig) Validate() error {
	pathways := []struct {
		name      string
		base, max float64
	}{
		{"master", e.MasterTauBase, e.MasterTauMax},
		{"emissary", e.EmissaryTauBase, e.EmissaryTauMax},
	}
	for _, p := range pathways {
		if !(p.base > 0) {
			return types.Configf(p.name+"_tau_base", "must be positive, got %g", p.base)
		}
		if p.base > p.max {
			return types.Configf(p.name+"_tau_base", "%g exceeds %s_tau_max %g", p.base, p.name, p.max)
		}
	}

	unit := []struct {
		name string
		v    float64
	}{
		{"coherence_threshold", e.CoherenceThreshold},
		{"phase_alignment_threshold", e.PhaseAlignmentThreshold},
		{"stabilize_fraction", e.StabilizeFraction},
	}
	for _, u := range unit {
		if !(u.v >= 0 && u.v <= 1) {
			return types.Configf(u.name, "must be within [0,1], got %g", u.v)
		}
	}
	if !(e.WitnessBeta > 0 && e.WitnessBeta < 1) {
		return types.Configf("witness_beta", "must be within (0,1), got %g", e.WitnessBeta)
	}
	if !(e.MemoryHalfLife > 0) {
		return types.Configf("memory_half_life", "must be positive, got %g", e.MemoryHalfLife)
	}
	if !(e.MemoryMaxAge > 0) {
		return types.Configf("memory_max_age", "must be positive, got %g", e.MemoryMaxAge)
	}
	if e.SyncInterval <= 0 {
		return types.Configf("sync_interval", "must be positive, got %v", e.SyncInterval)
	}
	if e.MasterWeight < 0 || e.EmissaryWeight < 0 || !(e.MasterWeight+e.EmissaryWeight > 0) {
		return types.Configf("master_weight", "weights must be non-negative with a positive sum")
	}
	if !(e.DesyncBound > 0) {
		return types.Configf("desync_bound", "must be positive, got %g", e.DesyncBound)
	}
	if e.DesyncTicks <= 0 || e.DecayTicks <= 0 {
		return types.Configf("desync_ticks", "desync_ticks and decay_ticks must be positive")
	}
	if e.WitnessCapacity <= 0 {
		return types.Configf("witness_capacity", "must be positive")
	}
	if e.MemoryPruneEvery <= 0 {
		return types.Configf("memory_prune_every", "must be positive")
	}
	if e.QueueSize <= 0 {
		return types.Configf("queue_size", "must be positive")
	}
	return nil
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	n := cfg.Node
	if err := n.Engine.Validate(); err != nil {
		return err
	}
	switch n.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("node.log_level: unknown level %q", n.LogLevel)
	}
	if n.HTTPPort < 0 {
		return fmt.Errorf("node.http_port must not be negative")
	}
	seen := make(map[string]bool, len(n.Inputs))
	for i, in := range n.Inputs {
		if in.ID == "" {
			return fmt.Errorf("inputs[%d]: id is required", i)
		}
		if seen[in.ID] {
			return fmt.Errorf("inputs[%d]: duplicate id %q", i, in.ID)
		}
		seen[in.ID] = true
		switch in.Type {
		case "prometheus":
			if in.Endpoint == "" || in.Metric == "" {
				return fmt.Errorf("inputs[%d] %q: endpoint and metric are required", i, in.ID)
			}
		case "http":
		case "replay":
			if in.Path == "" {
				return fmt.Errorf("inputs[%d] %q: path is required", i, in.ID)
			}
		default:
			return fmt.Errorf("inputs[%d] %q: unknown type %q", i, in.ID, in.Type)
		}
		if !KnownEncoder(in.Encoder) {
			return fmt.Errorf("inputs[%d] %q: unknown encoder %q", i, in.ID, in.Encoder)
		}
	}
	switch n.Storage.Backend {
	case "":
	case "sqlite":
		if n.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", n.Storage.Backend)
	}
	if n.Mesh.Endpoint != "" {
		if n.Mesh.BufferSize <= 0 {
			return fmt.Errorf("mesh.buffer_size must be positive")
		}
		switch n.Mesh.Auth.Mode {
		case "mtls", "apikey", "none", "":
		default:
			return fmt.Errorf("mesh.auth: unknown mode %q", n.Mesh.Auth.Mode)
		}
	}
	switch n.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("tracing.exporter: unknown exporter %q", n.Tracing.Exporter)
	}
	if !(n.Tracing.SampleRatio >= 0 && n.Tracing.SampleRatio <= 1) {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1], got %g", n.Tracing.SampleRatio)
	}
	return nil
}

// KnownEncoder reports whether name is a supported input encoder. The empty
// name selects identity.
func KnownEncoder(name string) bool {
	switch name {
	case "", "identity", "unit_angle", "audio", "pressure", "spike", "vibration":
		return true
	}
	return false
}
