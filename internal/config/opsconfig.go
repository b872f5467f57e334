package config

import (
	"time"

	"github.com/spf13/viper"
)

// OpsConfig is the operational configuration for the taskflow process:
// everything except MSG_PUSH_TOKEN and MTF_SILENT_MODE, which are
// read live from the environment on every notification send (see
// internal/notify) rather than through viper, since they can change
// mid-process without a restart.
type OpsConfig struct {
	Server   ServerConfig
	Task     TaskConfig
	LogTail  LogTailConfig
	Notify   NotifyConfig
	Metrics  MetricsConfig
	LogLevel string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

type TaskConfig struct {
	StopGrace  time.Duration
	HistoryCap int
}

type LogTailConfig struct {
	PollInterval  time.Duration
	AppearGrace   time.Duration
	RestTailLines int
}

type NotifyConfig struct {
	Timeout        time.Duration
	RetryBaseDelay time.Duration
	RetryAttempts  int
	LogTailLines   int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LoadOps reads operational configuration from (in order) config.yaml in
// ".", "./config", "/etc/taskflow", then TASKFLOW_-prefixed environment
// overrides, the same search-path/precedence idiom this codebase's
// config.go originally used.
func LoadOps() (*OpsConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskflow")

	setOpsDefaults()

	viper.SetEnvPrefix("TASKFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg OpsConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setOpsDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8765)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 0)

	viper.SetDefault("task.stopgrace", 3*time.Second)
	viper.SetDefault("task.historycap", 500)

	viper.SetDefault("logtail.pollinterval", 500*time.Millisecond)
	viper.SetDefault("logtail.appeargrace", 30*time.Second)
	viper.SetDefault("logtail.resttaillines", 200)

	viper.SetDefault("notify.timeout", 15*time.Second)
	viper.SetDefault("notify.retrybasedelay", 2*time.Second)
	viper.SetDefault("notify.retryattempts", 3)
	viper.SetDefault("notify.logtaillines", 10)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("loglevel", "info")
}
