// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	VectorIndex   VectorIndexConfig   `mapstructure:"vector_index"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。签发由外部认证服务完成，这里只做校验。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Provider 取值: openai | ollama | hashing
type EmbeddingConfig struct {
	Provider        string `mapstructure:"provider"`
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	Model           string `mapstructure:"model"`
	Dimensions      int    `mapstructure:"dimensions"`
	BatchSize       int    `mapstructure:"batch_size"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	CacheEnabled    bool   `mapstructure:"cache_enabled"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// LLMConfig 存储大语言模型相关的配置。
// Provider 取值: ollama | openai | gemini
type LLMConfig struct {
	Provider       string           `mapstructure:"provider"`
	APIKey         string           `mapstructure:"api_key"`
	BaseURL        string           `mapstructure:"base_url"`
	Model          string           `mapstructure:"model"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	RateLimit      float64          `mapstructure:"rate_limit"`
	RateBurst      int              `mapstructure:"rate_burst"`
	Breaker        LLMBreakerConfig `mapstructure:"breaker"`
}

// LLMBreakerConfig 熔断器参数。
type LLMBreakerConfig struct {
	MaxRequests         uint32 `mapstructure:"max_requests"`
	IntervalSeconds     int    `mapstructure:"interval_seconds"`
	OpenTimeoutSeconds  int    `mapstructure:"open_timeout_seconds"`
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

// VectorIndexConfig 向量索引后端与集合名称。
// Backend 取值: elasticsearch | memory
type VectorIndexConfig struct {
	Backend             string `mapstructure:"backend"`
	KnowledgeCollection string `mapstructure:"knowledge_collection"`
	DocumentCollection  string `mapstructure:"document_collection"`
}

type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// RAGConfig 问答编排相关的参数。
type RAGConfig struct {
	TopK              int     `mapstructure:"top_k"`
	AnalysisTopK      int     `mapstructure:"analysis_top_k"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	AnalysisMaxTokens int     `mapstructure:"analysis_max_tokens"`
	HistoryTurns      int     `mapstructure:"history_turns"`
	MaxContextChunks  int     `mapstructure:"max_context_chunks"`
	PreviewChars      int     `mapstructure:"preview_chars"`
	Jurisdiction      string  `mapstructure:"jurisdiction"`
	Disclaimer        string  `mapstructure:"disclaimer"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// PipelineConfig 文档处理流水线的后台维护参数。
type PipelineConfig struct {
	StaleAfterMinutes    int `mapstructure:"stale_after_minutes"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

// DefaultDisclaimer 追加在每个回答末尾的免责声明。
const DefaultDisclaimer = "⚠️ **Disclaimer**: I am an AI legal assistant, not a licensed lawyer. " +
	"The information provided is for general educational purposes only and should not be considered as legal advice. " +
	"For specific legal matters, please consult a qualified advocate registered with the Bar Council of India."

// MinGenerationTimeoutSeconds 本地模型生成较慢，超时不能低于该值。
const MinGenerationTimeoutSeconds = 60

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "legal-rag-ingest")
	v.SetDefault("kafka.group_id", "legal-rag-ingest-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("minio.bucket_name", "legal-rag")

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.cache_ttl_seconds", 7*24*3600)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.rate_limit", 2.0)
	v.SetDefault("llm.rate_burst", 4)
	v.SetDefault("llm.breaker.max_requests", 1)
	v.SetDefault("llm.breaker.interval_seconds", 60)
	v.SetDefault("llm.breaker.open_timeout_seconds", 30)
	v.SetDefault("llm.breaker.consecutive_failures", 5)

	v.SetDefault("vector_index.backend", "elasticsearch")
	v.SetDefault("vector_index.knowledge_collection", "legal_knowledge")
	v.SetDefault("vector_index.document_collection", "user_documents")

	v.SetDefault("chunking.chunk_size", 500)
	v.SetDefault("chunking.chunk_overlap", 50)

	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.analysis_top_k", 10)
	v.SetDefault("rag.temperature", 0.3)
	v.SetDefault("rag.max_tokens", 1000)
	v.SetDefault("rag.analysis_max_tokens", 1500)
	v.SetDefault("rag.history_turns", 10)
	v.SetDefault("rag.max_context_chunks", 5)
	v.SetDefault("rag.preview_chars", 200)
	v.SetDefault("rag.jurisdiction", "India")
	v.SetDefault("rag.disclaimer", DefaultDisclaimer)

	v.SetDefault("telemetry.service_name", "legal-rag-go")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 0.1)

	v.SetDefault("pipeline.stale_after_minutes", 30)
	v.SetDefault("pipeline.sweep_interval_minutes", 5)
}

// Load 读取 YAML 配置文件，叠加默认值与 LEGALRAG_ 前缀的环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEGALRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if cfg.LLM.TimeoutSeconds < MinGenerationTimeoutSeconds {
		cfg.LLM.TimeoutSeconds = MinGenerationTimeoutSeconds
	}
	if cfg.Chunking.ChunkOverlap >= cfg.Chunking.ChunkSize {
		return Config{}, fmt.Errorf("chunking.chunk_overlap (%d) 必须小于 chunking.chunk_size (%d)",
			cfg.Chunking.ChunkOverlap, cfg.Chunking.ChunkSize)
	}
	return cfg, nil
}

// Init 初始化配置加载，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
