// Package viperloader layers an optional config file, CBEXPIRY_ environment
// variables and command line flags into a config.Config.
package viperloader

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ahrav/cbexpiry/internal/config"
)

// EnvPrefix is prepended to every environment variable, so scan.batch_size
// is read from CBEXPIRY_SCAN_BATCH_SIZE.
const EnvPrefix = "CBEXPIRY"

var _ config.Loader = (*Loader)(nil)

// Loader resolves configuration with viper. Precedence, highest first: bound
// flags that were set, environment, file, defaults.
type Loader struct {
	path     string
	flags    *pflag.FlagSet
	bindings map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithFile reads the given YAML file. An empty path is ignored.
func WithFile(path string) Option {
	return func(l *Loader) { l.path = path }
}

// WithFlags binds config keys to flags in fs. bindings maps a config key such
// as "scan.batch_size" to a flag name.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(l *Loader) {
		l.flags = fs
		l.bindings = bindings
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := new(Loader)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds the configuration. The result is not validated.
func (l *Loader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()
	setDefaults(v, config.Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, name := range l.bindings {
		flag := l.flags.Lookup(name)
		if flag == nil {
			return nil, fmt.Errorf("no flag %q to bind to %s", name, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	var cfg config.Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		bucketListHook,
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every scalar default so AutomaticEnv can see the key.
func setDefaults(v *viper.Viper, def config.Config) {
	v.SetDefault("cluster.host", def.Cluster.Host)
	v.SetDefault("cluster.connection_string", def.Cluster.ConnectionString)
	v.SetDefault("cluster.username", def.Cluster.Username)
	v.SetDefault("cluster.password", def.Cluster.Password)
	v.SetDefault("cluster.auth_ref", def.Cluster.AuthRef)
	v.SetDefault("cluster.backend", string(def.Cluster.Backend))
	v.SetDefault("cluster.rest_port", def.Cluster.RESTPort)
	v.SetDefault("cluster.connect_timeout", def.Cluster.ConnectTimeout)
	v.SetDefault("cluster.kv_timeout", def.Cluster.KVTimeout)
	v.SetDefault("cluster.view_timeout", def.Cluster.ViewTimeout)
	v.SetDefault("cluster.ready_timeout", def.Cluster.ReadyTimeout)

	v.SetDefault("buckets", "")

	v.SetDefault("scan.view", def.Scan.View)
	v.SetDefault("scan.batch_size", def.Scan.BatchSize)
	v.SetDefault("scan.document_limit", nil)
	v.SetDefault("scan.expiry_minutes", def.Scan.ExpiryMinutes)
	v.SetDefault("scan.bucket_concurrency", def.Scan.BucketConcurrency)
	v.SetDefault("scan.mutations_per_second", def.Scan.MutationsPerSecond)
	v.SetDefault("scan.pages_per_second", def.Scan.PagesPerSecond)
	v.SetDefault("scan.page_timeout", def.Scan.PageTimeout)
	v.SetDefault("scan.operation_timeout", def.Scan.OperationTimeout)

	v.SetDefault("detail.show_details", def.Detail.ShowDetails)
	v.SetDefault("detail.log_file", def.Detail.LogFile)
	v.SetDefault("detail.kafka.brokers", def.Detail.Kafka.Brokers)
	v.SetDefault("detail.kafka.topic", def.Detail.Kafka.Topic)
	v.SetDefault("detail.kafka.client_id", def.Detail.Kafka.ClientID)

	v.SetDefault("history.database_url", def.History.DatabaseURL)

	v.SetDefault("telemetry.endpoint", def.Telemetry.Endpoint)
	v.SetDefault("telemetry.metrics_addr", def.Telemetry.MetricsAddr)
	v.SetDefault("telemetry.service_name", def.Telemetry.ServiceName)
	v.SetDefault("telemetry.sample_ratio", def.Telemetry.SampleRatio)
	v.SetDefault("telemetry.insecure", def.Telemetry.Insecure)

	v.SetDefault("provision.map_function", def.Provision.MapFunction)
	v.SetDefault("provision.reduce_function", def.Provision.ReduceFunction)

	v.SetDefault("logging.level", def.Logging.Level)
}

var bucketSpecsType = reflect.TypeOf([]config.BucketSpec(nil))

// bucketListHook accepts "a,b:secret" wherever a bucket list is expected, so
// the buckets key can come from a flag or an environment variable.
func bucketListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != bucketSpecsType {
		return data, nil
	}
	s := data.(string)
	if strings.TrimSpace(s) == "" {
		return []config.BucketSpec(nil), nil
	}
	return config.ParseBucketList(s)
}
