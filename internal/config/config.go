// Package config loads and validates the gateway's configuration tree: a
// closed struct parsed from YAML, schema-checked before the gateway starts,
// with optional hot-reload for fields safe to change at runtime.
package config

import (
	"time"

	"github.com/ucpgw/ucpgw/internal/bandit"
	"github.com/ucpgw/ucpgw/internal/bias"
	"github.com/ucpgw/ucpgw/internal/mcp"
	"github.com/ucpgw/ucpgw/internal/pool"
	"github.com/ucpgw/ucpgw/internal/routing"
	"github.com/ucpgw/ucpgw/internal/sessions"
	"github.com/ucpgw/ucpgw/internal/toolzoo"
)

// Config is the closed configuration tree for the gateway. Every field is
// named here; there is no open "extra" bag, so loading rejects unknown keys.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Server            ServerSettings             `yaml:"server" json:"server"`
	ToolZoo           ToolZooSettings            `yaml:"toolZoo" json:"toolZoo"`
	Router            RouterSettings             `yaml:"router" json:"router"`
	Session           SessionSettings            `yaml:"session" json:"session"`
	Telemetry         TelemetrySettings          `yaml:"telemetry" json:"telemetry"`
	Bandit            BanditSettings             `yaml:"bandit" json:"bandit"`
	BiasLearning      BiasLearningSettings       `yaml:"biasLearning" json:"biasLearning"`
	DownstreamServers []DownstreamServerSettings `yaml:"downstreamServers" json:"downstreamServers"`
	Cron              CronConfig                 `yaml:"cron" json:"cron"`
}

// CronConfig configures periodic maintenance jobs (telemetry and session
// store pruning) run by the gateway's own scheduler.
type CronConfig struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Jobs    []CronJobConfig `yaml:"jobs" json:"jobs"`
}

// CronJobConfig describes one maintenance job. Target names the store it
// prunes ("telemetry" or "sessions"); MaxAge is the retention window.
type CronJobConfig struct {
	ID       string             `yaml:"id" json:"id"`
	Name     string             `yaml:"name" json:"name"`
	Enabled  bool               `yaml:"enabled" json:"enabled"`
	Target   string             `yaml:"target" json:"target"`
	MaxAge   time.Duration      `yaml:"maxAge" json:"maxAge"`
	Schedule CronScheduleConfig `yaml:"schedule" json:"schedule"`
	Retry    CronRetryConfig    `yaml:"retry" json:"retry"`
}

// CronScheduleConfig describes when a job runs: a cron expression, a fixed
// interval, or a one-off timestamp. Exactly one of Cron/Every/At is set.
type CronScheduleConfig struct {
	Cron     string        `yaml:"cron" json:"cron"`
	Every    time.Duration `yaml:"every" json:"every"`
	At       string        `yaml:"at" json:"at"`
	Timezone string        `yaml:"timezone" json:"timezone"`
}

// CronRetryConfig controls backoff after a failed job run.
type CronRetryConfig struct {
	MaxRetries int           `yaml:"maxRetries" json:"maxRetries"`
	Backoff    time.Duration `yaml:"backoff" json:"backoff"`
	MaxBackoff time.Duration `yaml:"maxBackoff" json:"maxBackoff"`
}

// ServerSettings configures the upstream-facing gateway process.
type ServerSettings struct {
	Name           string `yaml:"name" json:"name"`
	ListenAddr     string `yaml:"listenAddr" json:"listenAddr"`
	LogLevel       string `yaml:"logLevel" json:"logLevel"`
	LogFormat      string `yaml:"logFormat" json:"logFormat"`
	MetricsAddr    string `yaml:"metricsAddr" json:"metricsAddr"`
	TracingEnabled bool   `yaml:"tracingEnabled" json:"tracingEnabled"`
	OTLPEndpoint   string `yaml:"otlpEndpoint" json:"otlpEndpoint"`
}

// ToolZooSettings configures the tool index.
type ToolZooSettings struct {
	TopK                int                 `yaml:"topK" json:"topK"`
	SimilarityThreshold float64             `yaml:"similarityThreshold" json:"similarityThreshold"`
	DomainKeywords      map[string][]string `yaml:"domainKeywords" json:"domainKeywords"`
	EmbedderProvider    string              `yaml:"embedderProvider" json:"embedderProvider"`
	Embedder            EmbedderSettings    `yaml:"embedder" json:"embedder"`
	VectorStoreBackend  string              `yaml:"vectorStoreBackend" json:"vectorStoreBackend"`
	SQLitePath          string              `yaml:"sqlitePath" json:"sqlitePath"`
	PostgresDSN         string              `yaml:"postgresDSN" json:"postgresDSN"`
}

// EmbedderSettings carries the fields specific to whichever embedder
// provider is selected; irrelevant fields for the unselected provider are
// simply left zero.
type EmbedderSettings struct {
	APIKey  string `yaml:"apiKey" json:"apiKey"`
	BaseURL string `yaml:"baseURL" json:"baseURL"`
	Model   string `yaml:"model" json:"model"`
}

// Build converts ToolZooSettings into the toolzoo package's runtime config.
func (s ToolZooSettings) Build() toolzoo.Config {
	cfg := toolzoo.DefaultConfig()
	if s.TopK > 0 {
		cfg.TopK = s.TopK
	}
	if s.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = s.SimilarityThreshold
	}
	if len(s.DomainKeywords) > 0 {
		cfg.DomainKeywords = s.DomainKeywords
	}
	return cfg
}

// RouterSettings configures the routing pipeline.
type RouterSettings struct {
	Mode            string              `yaml:"mode" json:"mode"`
	MaxTools        int                 `yaml:"maxTools" json:"maxTools"`
	MinTools        int                 `yaml:"minTools" json:"minTools"`
	FallbackTools   []string            `yaml:"fallbackTools" json:"fallbackTools"`
	MaxPerServer    int                 `yaml:"maxPerServer" json:"maxPerServer"`
	DomainKeywords  map[string][]string `yaml:"domainKeywords" json:"domainKeywords"`
	HybridSemWeight float64             `yaml:"hybridSemWeight" json:"hybridSemWeight"`
	HybridKwWeight  float64             `yaml:"hybridKwWeight" json:"hybridKwWeight"`
	BanditWeight    float64             `yaml:"banditWeight" json:"banditWeight"`
}

// Build converts RouterSettings into the routing package's runtime config.
func (s RouterSettings) Build() routing.Config {
	cfg := routing.DefaultConfig()
	if s.Mode != "" {
		cfg.Mode = routing.SearchMode(s.Mode)
	}
	if s.MaxTools > 0 {
		cfg.MaxTools = s.MaxTools
	}
	if s.MinTools > 0 {
		cfg.MinTools = s.MinTools
	}
	if len(s.FallbackTools) > 0 {
		cfg.FallbackTools = s.FallbackTools
	}
	if s.MaxPerServer > 0 {
		cfg.MaxPerServer = s.MaxPerServer
	}
	if len(s.DomainKeywords) > 0 {
		cfg.DomainKeywords = s.DomainKeywords
	}
	if s.HybridSemWeight > 0 {
		cfg.HybridSemWeight = s.HybridSemWeight
	}
	if s.HybridKwWeight > 0 {
		cfg.HybridKwWeight = s.HybridKwWeight
	}
	if s.BanditWeight > 0 {
		cfg.BanditWeight = s.BanditWeight
	}
	return cfg
}

// SessionSettings configures session tracking and persistence.
type SessionSettings struct {
	MaxMessages int    `yaml:"maxMessages" json:"maxMessages"`
	TTLSeconds  int    `yaml:"ttlSeconds" json:"ttlSeconds"`
	Persistence string `yaml:"persistence" json:"persistence"` // "sqlite" | "memory"
	SQLitePath  string `yaml:"sqlitePath" json:"sqlitePath"`
}

// Build converts SessionSettings into the sessions package's runtime config.
func (s SessionSettings) Build() sessions.Config {
	cfg := sessions.DefaultConfig()
	if s.MaxMessages > 0 {
		cfg.MaxMessages = s.MaxMessages
	}
	if s.TTLSeconds > 0 {
		cfg.TTL = time.Duration(s.TTLSeconds) * time.Second
	}
	return cfg
}

// TelemetrySettings configures the append-only event log and stats cache.
type TelemetrySettings struct {
	SQLitePath          string `yaml:"sqlitePath" json:"sqlitePath"`
	CleanupMaxAgeHours  int    `yaml:"cleanupMaxAgeHours" json:"cleanupMaxAgeHours"`
	CleanupScheduleCron string `yaml:"cleanupScheduleCron" json:"cleanupScheduleCron"`
}

// BanditSettings configures the shared contextual bandit scorer.
type BanditSettings struct {
	FeatureDim           int     `yaml:"featureDim" json:"featureDim"`
	LearningRate         float64 `yaml:"learningRate" json:"learningRate"`
	L2Regularization     float64 `yaml:"l2Regularization" json:"l2Regularization"`
	ExplorationType      string  `yaml:"explorationType" json:"explorationType"`
	Epsilon              float64 `yaml:"epsilon" json:"epsilon"`
	ThompsonScale        float64 `yaml:"thompsonScale" json:"thompsonScale"`
	PersistEveryNUpdates int     `yaml:"persistEveryNUpdates" json:"persistEveryNUpdates"`
	SQLitePath           string  `yaml:"sqlitePath" json:"sqlitePath"`
}

// Build converts BanditSettings into the bandit package's runtime config.
func (s BanditSettings) Build() bandit.Config {
	cfg := bandit.DefaultConfig()
	if s.FeatureDim > 0 {
		cfg.FeatureDim = s.FeatureDim
	}
	if s.LearningRate > 0 {
		cfg.LearningRate = s.LearningRate
	}
	if s.L2Regularization > 0 {
		cfg.L2Regularization = s.L2Regularization
	}
	if s.ExplorationType != "" {
		cfg.ExplorationType = bandit.ExplorationType(s.ExplorationType)
	}
	if s.Epsilon > 0 {
		cfg.Epsilon = s.Epsilon
	}
	if s.ThompsonScale > 0 {
		cfg.ThompsonScale = s.ThompsonScale
	}
	if s.PersistEveryNUpdates > 0 {
		cfg.PersistEveryNUpdates = s.PersistEveryNUpdates
	}
	if s.SQLitePath != "" {
		cfg.DBPath = s.SQLitePath
	}
	return cfg
}

// BiasLearningSettings configures the per-tool bias store.
type BiasLearningSettings struct {
	InitialBias          float64 `yaml:"initialBias" json:"initialBias"`
	LearningRate         float64 `yaml:"learningRate" json:"learningRate"`
	DecayRate            float64 `yaml:"decayRate" json:"decayRate"`
	MaxBias              float64 `yaml:"maxBias" json:"maxBias"`
	EnableDeltaVectors   bool    `yaml:"enableDeltaVectors" json:"enableDeltaVectors"`
	EmbeddingDim         int     `yaml:"embeddingDim" json:"embeddingDim"`
	PersistEveryNUpdates int     `yaml:"persistEveryNUpdates" json:"persistEveryNUpdates"`
	SQLitePath           string  `yaml:"sqlitePath" json:"sqlitePath"`
}

// Build converts BiasLearningSettings into the bias package's runtime config.
func (s BiasLearningSettings) Build() bias.Config {
	cfg := bias.DefaultConfig()
	if s.LearningRate > 0 {
		cfg.LearningRate = s.LearningRate
	}
	if s.DecayRate > 0 {
		cfg.DecayRate = s.DecayRate
	}
	if s.MaxBias > 0 {
		cfg.MaxBias = s.MaxBias
	}
	cfg.InitialBias = s.InitialBias
	cfg.EnableDeltaVectors = s.EnableDeltaVectors
	if s.EmbeddingDim > 0 {
		cfg.EmbeddingDim = s.EmbeddingDim
	}
	if s.PersistEveryNUpdates > 0 {
		cfg.PersistEveryNUpdates = s.PersistEveryNUpdates
	}
	if s.SQLitePath != "" {
		cfg.DBPath = s.SQLitePath
	}
	return cfg
}

// DownstreamServerSettings configures one downstream MCP server and the
// connection pool's retry/circuit-breaker behavior for it.
type DownstreamServerSettings struct {
	ID        string            `yaml:"id" json:"id"`
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"`
	Command   string            `yaml:"command" json:"command,omitempty"`
	Args      []string          `yaml:"args" json:"args,omitempty"`
	Env       map[string]string `yaml:"env" json:"env,omitempty"`
	URL       string            `yaml:"url" json:"url,omitempty"`
	Tags      []string          `yaml:"tags" json:"tags,omitempty"`
	AutoStart bool              `yaml:"autoStart" json:"autoStart"`
	Lazy      bool              `yaml:"lazy" json:"lazy"`
}

// ToMCPServerConfig converts DownstreamServerSettings into the mcp package's
// server configuration.
func (s DownstreamServerSettings) ToMCPServerConfig() *mcp.ServerConfig {
	return &mcp.ServerConfig{
		ID:        s.ID,
		Name:      s.Name,
		Transport: mcp.TransportType(s.Transport),
		Command:   s.Command,
		Args:      s.Args,
		Env:       s.Env,
		URL:       s.URL,
		AutoStart: s.AutoStart,
	}
}

// PoolConfig builds the connection pool's runtime config from the gateway
// config. Pool-wide defaults only; per-server overrides are not modeled.
func (c *Config) PoolConfig() pool.Config {
	return pool.DefaultConfig()
}

// MCPServers converts every configured downstream server into its mcp
// package representation.
func (c *Config) MCPServers() []*mcp.ServerConfig {
	out := make([]*mcp.ServerConfig, 0, len(c.DownstreamServers))
	for _, s := range c.DownstreamServers {
		out = append(out, s.ToMCPServerConfig())
	}
	return out
}

// AnyLazy reports whether any downstream server requests lazy connection.
func (c *Config) AnyLazy() bool {
	for _, s := range c.DownstreamServers {
		if s.Lazy {
			return true
		}
	}
	return false
}
