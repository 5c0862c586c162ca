// Package config defines the cbexpiry configuration file and the defaults
// applied before any file, environment variable or flag is read.
package config

import "time"

// Backend selects how view pages are queried.
type Backend string

const (
	// BackendSDK pages views through the Couchbase SDK.
	BackendSDK Backend = "sdk"
	// BackendREST pages views through the view engine's HTTP API.
	BackendREST Backend = "rest"
)

// DefaultRESTPort is the view engine port on every node.
const DefaultRESTPort = 8092

// AuthConfig represents an authentication configuration.
type AuthConfig struct {
	Type   string         `yaml:"type" mapstructure:"type" validate:"required,oneof=basic"`
	Config map[string]any `yaml:"config" mapstructure:"config"`
}

// Config represents the top-level configuration.
type Config struct {
	Cluster   ClusterConfig         `yaml:"cluster" mapstructure:"cluster"`
	Auth      map[string]AuthConfig `yaml:"auth" mapstructure:"auth" validate:"dive"`
	Buckets   []BucketSpec          `yaml:"buckets" mapstructure:"buckets" validate:"required,min=1,dive"`
	Scan      ScanConfig            `yaml:"scan" mapstructure:"scan"`
	Detail    DetailConfig          `yaml:"detail" mapstructure:"detail"`
	History   HistoryConfig         `yaml:"history" mapstructure:"history"`
	Telemetry TelemetryConfig       `yaml:"telemetry" mapstructure:"telemetry"`
	Provision ProvisionConfig       `yaml:"provision" mapstructure:"provision"`
	Logging   LoggingConfig         `yaml:"logging" mapstructure:"logging"`
}

// ClusterConfig describes where the cluster lives and how to reach it.
type ClusterConfig struct {
	// Host is a single node name without a port. It is used for the REST
	// backend and to build the connection string when none is given.
	Host             string  `yaml:"host" mapstructure:"host" validate:"required_without=ConnectionString"`
	ConnectionString string  `yaml:"connection_string" mapstructure:"connection_string"`
	Username         string  `yaml:"username" mapstructure:"username"`
	Password         string  `yaml:"password" mapstructure:"password"`
	AuthRef          string  `yaml:"auth_ref" mapstructure:"auth_ref"`
	Backend          Backend `yaml:"backend" mapstructure:"backend" validate:"oneof=sdk rest"`
	RESTPort         int     `yaml:"rest_port" mapstructure:"rest_port" validate:"min=1,max=65535"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	KVTimeout      time.Duration `yaml:"kv_timeout" mapstructure:"kv_timeout"`
	ViewTimeout    time.Duration `yaml:"view_timeout" mapstructure:"view_timeout"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout" mapstructure:"ready_timeout"`
}

// BucketSpec names one bucket. Password and AuthRef are alternatives; a bucket
// with neither uses the cluster credentials.
type BucketSpec struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	Password string `yaml:"password" mapstructure:"password"`
	AuthRef  string `yaml:"auth_ref" mapstructure:"auth_ref"`
}

// MaxExpiryMinutes is expiry.MaxTTL in minutes, the bound on
// ScanConfig.ExpiryMinutes.
const MaxExpiryMinutes = 26280000

// ScanConfig holds the run parameters shared by every bucket.
type ScanConfig struct {
	View      string `yaml:"view" mapstructure:"view" validate:"required"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size" validate:"gt=0"`
	// DocumentLimit caps the documents processed per bucket. Omitted means
	// unbounded.
	DocumentLimit *int `yaml:"document_limit" mapstructure:"document_limit" validate:"omitempty,gte=0"`
	// ExpiryMinutes is the new TTL. Zero clears expiration. The upper bound
	// is MaxExpiryMinutes.
	ExpiryMinutes int64 `yaml:"expiry_minutes" mapstructure:"expiry_minutes" validate:"gte=0,lte=26280000"`

	BucketConcurrency  int           `yaml:"bucket_concurrency" mapstructure:"bucket_concurrency" validate:"gte=1"`
	MutationsPerSecond float64       `yaml:"mutations_per_second" mapstructure:"mutations_per_second" validate:"gte=0"`
	PagesPerSecond     float64       `yaml:"pages_per_second" mapstructure:"pages_per_second" validate:"gte=0"`
	PageTimeout        time.Duration `yaml:"page_timeout" mapstructure:"page_timeout" validate:"gt=0"`
	OperationTimeout   time.Duration `yaml:"operation_timeout" mapstructure:"operation_timeout" validate:"gt=0"`
}

// DetailConfig selects where per-document records go.
type DetailConfig struct {
	ShowDetails bool        `yaml:"show_details" mapstructure:"show_details"`
	LogFile     string      `yaml:"log_file" mapstructure:"log_file"`
	Kafka       KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaConfig enables the Kafka detail sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" mapstructure:"topic" validate:"required_with=Brokers"`
	ClientID string   `yaml:"client_id" mapstructure:"client_id"`
}

// Enabled reports whether any brokers are configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// HistoryConfig enables run history when DatabaseURL is set.
type HistoryConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// TelemetryConfig configures OTLP export and the Prometheus endpoint. Empty
// values disable each.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	MetricsAddr string  `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`
}

// ProvisionConfig holds the view functions installed by provision-view.
type ProvisionConfig struct {
	MapFunction    string `yaml:"map_function" mapstructure:"map_function"`
	ReduceFunction string `yaml:"reduce_function" mapstructure:"reduce_function"`
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// Default returns the configuration used before any source is applied.
func Default() Config {
	return Config{
		Cluster: ClusterConfig{
			Backend:      BackendSDK,
			RESTPort:     DefaultRESTPort,
			ReadyTimeout: 30 * time.Second,
		},
		Scan: ScanConfig{
			BatchSize:         2000,
			BucketConcurrency: 1,
			PageTimeout:       75 * time.Second,
			OperationTimeout:  10 * time.Second,
		},
		Detail: DetailConfig{
			Kafka: KafkaConfig{ClientID: "cbexpiry"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "cbexpiry",
			SampleRatio: 0.05,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// ConnectionStringOrHost returns the configured connection string, or one
// built from Host.
func (c ClusterConfig) ConnectionStringOrHost() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return "couchbase://" + c.Host
}
