package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Engine EngineConfig `mapstructure:"ENGINE"`
}

// EngineConfig holds the reward-engine policy knobs. Defaults applied in
// LoadConfig keep a bare config file usable in development.
type EngineConfig struct {
	// Platform fee expressed as a percentage of the brand total cost.
	FeePercent int64 `mapstructure:"FEE_PERCENT"`
	// Fraction (0..1) of non-first submissions forced into manual review.
	RandomSampleRate float64 `mapstructure:"RANDOM_SAMPLE_RATE"`
	// Fallback task-duration estimate for the time-efficiency multiplier.
	DefaultEstimatedMinutes int `mapstructure:"DEFAULT_ESTIMATED_MINUTES"`
	// Inactivity window after which rank decay starts.
	RankDecayWindow time.Duration `mapstructure:"RANK_DECAY_WINDOW"`
	// Campaign duration used when a template window is not set on approval.
	CampaignDuration time.Duration `mapstructure:"CAMPAIGN_DURATION"`
	// Submission creation throttle per operator.
	SubmissionRateLimit  int           `mapstructure:"SUBMISSION_RATE_LIMIT"`
	SubmissionRateWindow time.Duration `mapstructure:"SUBMISSION_RATE_WINDOW"`
	// Interval between verification-window expiry sweeps.
	ExpirySweepInterval time.Duration `mapstructure:"EXPIRY_SWEEP_INTERVAL"`
}

var Module = fx.Module("config",
	fx.Provide(LoadConfig),
	fx.Provide(func(cfg *Config) EngineConfig { return cfg.Engine }),
)

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	applyEngineDefaults(&cfg.Engine)

	if cfg.Snowflake.NodeID <= 0 {
		cfg.Snowflake.NodeID = 1
	}

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		cfg.Minio.AccessKey = get("minio_access_key")
		cfg.Minio.SecretKey = get("minio_secret_key")
	}

	return &cfg
}

func applyEngineDefaults(e *EngineConfig) {
	if e.FeePercent <= 0 || e.FeePercent >= 100 {
		e.FeePercent = 15
	}
	if e.RandomSampleRate <= 0 || e.RandomSampleRate > 1 {
		e.RandomSampleRate = 0.05
	}
	if e.DefaultEstimatedMinutes <= 0 {
		e.DefaultEstimatedMinutes = 30
	}
	if e.RankDecayWindow <= 0 {
		e.RankDecayWindow = 30 * 24 * time.Hour
	}
	if e.CampaignDuration <= 0 {
		e.CampaignDuration = 30 * 24 * time.Hour
	}
	if e.SubmissionRateLimit <= 0 {
		e.SubmissionRateLimit = 20
	}
	if e.SubmissionRateWindow <= 0 {
		e.SubmissionRateWindow = time.Hour
	}
	if e.ExpirySweepInterval <= 0 {
		e.ExpirySweepInterval = 15 * time.Minute
	}
}
