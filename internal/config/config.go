package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Port                    string `mapstructure:"PORT"`
	Env                     string `mapstructure:"ENV"`
	CORSOrigin              string `mapstructure:"CORS_ORIGIN"`
	DatabaseURL             string `mapstructure:"DB_DSN"`
	DBMaxConns              int32  `mapstructure:"DB_MAX_CONNS"`
	MongoURI                string `mapstructure:"MONGO_URI"`
	MongoDatabase           string `mapstructure:"MONGO_DATABASE"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	JWTIssuer               string `mapstructure:"JWT_ISSUER"`
	JWTAudience             string `mapstructure:"JWT_AUDIENCE"`
	RateLimitPerMinute      int    `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst          int    `mapstructure:"RATE_LIMIT_BURST"`
	HospitalRateLimitPerMin int    `mapstructure:"HOSPITAL_RATE_LIMIT_PER_MIN"`
	HospitalRateLimitBurst  int    `mapstructure:"HOSPITAL_RATE_LIMIT_BURST"`
	FeedIntervalMS          int    `mapstructure:"FEED_INTERVAL_MS"`
	FeedBatchSize           int    `mapstructure:"FEED_BATCH_SIZE"`
	ReportCron              string `mapstructure:"REPORT_CRON"`
	OTLPEndpoint            string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure            bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	BcryptCost              int    `mapstructure:"BCRYPT_COST"`
}

var keys = []string{
	"PORT", "ENV", "CORS_ORIGIN", "DB_DSN", "DB_MAX_CONNS", "MONGO_URI", "MONGO_DATABASE",
	"JWT_SECRET", "JWT_ISSUER", "JWT_AUDIENCE", "RATE_LIMIT_PER_MIN", "RATE_LIMIT_BURST",
	"HOSPITAL_RATE_LIMIT_PER_MIN", "HOSPITAL_RATE_LIMIT_BURST", "FEED_INTERVAL_MS",
	"FEED_BATCH_SIZE", "REPORT_CRON", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE", "BCRYPT_COST",
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGIN", "http://localhost:3000")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("MONGO_DATABASE", "hms")
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("HOSPITAL_RATE_LIMIT_PER_MIN", 600)
	v.SetDefault("HOSPITAL_RATE_LIMIT_BURST", 120)
	v.SetDefault("FEED_INTERVAL_MS", 1000)
	v.SetDefault("FEED_BATCH_SIZE", 100)
	v.SetDefault("REPORT_CRON", "5 0 * * *")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("BCRYPT_COST", 10)
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 bytes"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d out of range", c.BcryptCost))
	}
	if _, err := cron.ParseStandard(c.ReportCron); err != nil {
		errs = append(errs, fmt.Errorf("REPORT_CRON: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) IsDev() bool {
	return c.Env == "development"
}

func (c Config) FeedInterval() time.Duration {
	if c.FeedIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.FeedIntervalMS) * time.Millisecond
}

func (c Config) CORSOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSOrigin, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
