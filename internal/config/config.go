package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	AWS        AWSConfig
	DynamoDB   DynamoDBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Server     ServerConfig
	Admission  AdmissionConfig
	Lifecycle  LifecycleConfig
	Stats      StatsConfig
	Management ManagementConfig
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

type DynamoDBConfig struct {
	TableName        string
	MaxRetries       int
	UseLocalEndpoint bool
}

type RedisConfig struct {
	Address  string
	Password string
}

type NATSConfig struct {
	URL                  string
	MaxReconnect         int
	ReconnectWaitSeconds int
	TimeoutSeconds       int
	MaxDeliver           int
}

type ServerConfig struct {
	Environment string
	LogLevel    string
}

type AdmissionConfig struct {
	// VerificationWindowSeconds bounds both the pending admission
	// record and the verification token.
	VerificationWindowSeconds int
}

type LifecycleConfig struct {
	WinnerGraceSeconds  int
	ArchiveGraceSeconds int
}

type StatsConfig struct {
	CaptureIntervalSeconds int
}

type ManagementConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")
	viper.AddConfigPath(configPath)

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CONTESTPIPE")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("admission.verificationwindowseconds", 120)
	viper.SetDefault("lifecycle.winnergraceseconds", 30)
	viper.SetDefault("lifecycle.archivegraceseconds", 259200)
	viper.SetDefault("stats.captureintervalseconds", 300)
	viper.SetDefault("nats.maxdeliver", 5)
	viper.SetDefault("management.timeoutseconds", 10)
}
