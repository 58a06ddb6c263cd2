package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SessionConfig struct {
	Secret    string
	CipherKey string
	TTL       time.Duration
}

type Config struct {
	Environment       string
	HTTP              HTTPConfig
	DB                DBConfig
	Session           SessionConfig
	ReferenceWorkbook string
	MetricsNamespace  string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Session: SessionConfig{
			Secret:    v.GetString("SESSION_SECRET"),
			CipherKey: v.GetString("SESSION_CIPHER_KEY"),
			TTL:       v.GetDuration("SESSION_TTL"),
		},
		ReferenceWorkbook: v.GetString("REFERENCE_WORKBOOK"),
		MetricsNamespace:  v.GetString("METRICS_NAMESPACE"),
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = time.Hour
	}
	if cfg.ReferenceWorkbook == "" {
		cfg.ReferenceWorkbook = "WK_1000_A1M-5000_A2E.xlsx"
	}
	if cfg.MetricsNamespace == "" {
		cfg.MetricsNamespace = "traffic_profile"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if cfg.Session.CipherKey == "" {
		return fmt.Errorf("SESSION_CIPHER_KEY is required")
	}
	return nil
}
