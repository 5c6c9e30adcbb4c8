// Package narrator parses narrator command flags and launches the runtime.
package narrator

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/gmloop/internal/platform/cmd"
	narratorapp "github.com/louisbranch/gmloop/internal/services/narrator/app"
)

// Config holds narrator command configuration.
type Config struct {
	HTTPAddr         string        `env:"GMLOOP_NARRATOR_HTTP_ADDR" envDefault:":8095"`
	GRPCAddr         string        `env:"GMLOOP_NARRATOR_GRPC_ADDR" envDefault:":8096"`
	DBPath           string        `env:"GMLOOP_NARRATOR_DB_PATH" envDefault:"data/narrator.db"`
	CatalogPath      string        `env:"GMLOOP_NARRATOR_CATALOG"`
	AuditDir         string        `env:"GMLOOP_NARRATOR_AUDIT_DIR"`
	JWTSecret        string        `env:"GMLOOP_NARRATOR_JWT_SECRET"`
	JWTIssuer        string        `env:"GMLOOP_NARRATOR_JWT_ISSUER" envDefault:"gmloop"`
	OpenAIURL        string        `env:"GMLOOP_NARRATOR_OPENAI_URL"`
	OpenAIKey        string        `env:"GMLOOP_NARRATOR_OPENAI_API_KEY"`
	OpenAIModel      string        `env:"GMLOOP_NARRATOR_OPENAI_MODEL" envDefault:"gpt-4.1-mini"`
	RetryAttempts    uint          `env:"GMLOOP_NARRATOR_RETRY_ATTEMPTS" envDefault:"3"`
	BatchSize        int           `env:"GMLOOP_NARRATOR_BATCH_SIZE" envDefault:"3"`
	MaxConns         int           `env:"GMLOOP_NARRATOR_MAX_CONNS" envDefault:"256"`
	RecoveryInterval time.Duration `env:"GMLOOP_NARRATOR_RECOVERY_INTERVAL" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The narrator HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The narrator gRPC health listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The narrator SQLite database path")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Optional YAML catalog imported at startup")
	fs.StringVar(&cfg.AuditDir, "audit-dir", cfg.AuditDir, "Directory for the compressed state-change log")
	fs.StringVar(&cfg.OpenAIModel, "model", cfg.OpenAIModel, "Generation model name")
	fs.UintVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "Generation attempts for unavailable backends")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum concurrent generation calls")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent HTTP connections")
	fs.DurationVar(&cfg.RecoveryInterval, "recovery-interval", cfg.RecoveryInterval, "Idle queue worker wake-up interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the narrator runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceNarrator, func(ctx context.Context) error {
		return narratorapp.Run(ctx, narratorapp.RuntimeConfig{
			HTTPAddr:         cfg.HTTPAddr,
			GRPCAddr:         cfg.GRPCAddr,
			DBPath:           cfg.DBPath,
			CatalogPath:      cfg.CatalogPath,
			AuditDir:         cfg.AuditDir,
			JWTSecret:        cfg.JWTSecret,
			JWTIssuer:        cfg.JWTIssuer,
			OpenAIURL:        cfg.OpenAIURL,
			OpenAIKey:        cfg.OpenAIKey,
			OpenAIModel:      cfg.OpenAIModel,
			RetryAttempts:    cfg.RetryAttempts,
			BatchSize:        cfg.BatchSize,
			MaxConns:         cfg.MaxConns,
			RecoveryInterval: cfg.RecoveryInterval,
		})
	})
}
