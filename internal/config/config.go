package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Chat      ChatConfig      `yaml:"chat"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	s := ""
	for i > 0 {
		s = string(rune('0'+i%10)) + s
		i /= 10
	}
	return s
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

// ChatConfig tunes the orchestrators.
type ChatConfig struct {
	HistoryWindow  int                  `yaml:"history_window"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	MaxRetries     int                  `yaml:"max_retries"`
	RetryBaseDelay time.Duration        `yaml:"retry_base_delay"`
	JudgeEngine    string               `yaml:"judge_engine"`
	RPMLimit       int                  `yaml:"rpm_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// RetrievalConfig selects and tunes the vector store backend.
type RetrievalConfig struct {
	Enabled        bool           `yaml:"enabled"`
	Backend        string         `yaml:"backend"` // "postgres" or "pinecone"
	TopK           int            `yaml:"top_k"`
	MaxChunkSize   int            `yaml:"max_chunk_size"`
	ChunkOverlap   int            `yaml:"chunk_overlap"`
	EmbeddingModel string         `yaml:"embedding_model"`
	OpenAIAPIKey   string         `yaml:"openai_api_key"`
	TableName      string         `yaml:"table_name"`
	Pinecone       PineconeConfig `yaml:"pinecone"`
}

type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	IndexHost string `yaml:"index_host"`
	Namespace string `yaml:"namespace"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "helix",
			User:            "helix",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			DB:       0,
			PoolSize: 50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
		Chat: ChatConfig{
			HistoryWindow:  20,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			RPMLimit:       60,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Retrieval: RetrievalConfig{
			Backend:        "postgres",
			TopK:           5,
			MaxChunkSize:   1000,
			ChunkOverlap:   200,
			EmbeddingModel: "text-embedding-3-small",
			TableName:      "embeddings",
		},
	}
}
