package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/auth"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/router"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/security"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/token"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-accounts/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-accounts/pkg/database"
	"github.com/ovaphlow/pitchfork/service-accounts/pkg/utilities"
)

type config struct {
	Addr          string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	ReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	SnowflakeNode int64         `env:"SNOWFLAKE_NODE" envDefault:"1"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"12"`
}

func main() {
	// best-effort: if no .env exists, continue with the real environment
	_ = godotenv.Load()

	logCfg, err := utilities.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "log config: %v\n", err)
		os.Exit(1)
	}
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-accounts")

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		sugar.Fatalf("config: %v", err)
	}
	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("database config: %v", err)
	}
	jwtCfg, err := token.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("jwt config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, err := database.Connect(ctx, dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	migrator, err := database.NewMigrator(sqlDB, migrations.FS, sugar)
	if err != nil {
		sugar.Fatalf("migrator: %v", err)
	}
	if err := migrator.Up(ctx); err != nil {
		sugar.Fatalf("%v", err)
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}
	hasher, err := security.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		sugar.Fatalf("hasher: %v", err)
	}
	issuer, err := token.New(jwtCfg)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}
	if jwtCfg.PrivateKeyFile == "" {
		sugar.Warnw("JWT_PRIVATE_KEY_FILE not set, using an ephemeral signing key", "kid", issuer.KeyID())
	}

	m := metrics.New()
	repo := userrepo.NewUserRepo(database.Wrap(sqlDB))
	sessions := auth.NewSessionService(repo, hasher, issuer, sugar.Named("auth"), m)
	users := user.NewUserService(repo, hasher, ids, sugar.Named("user"), m)

	handler := router.RegisterRoutes(router.Deps{
		Logger:  sugar,
		Auth:    auth.NewHandler(sessions, sugar.Named("auth")),
		Users:   user.NewHandler(users, sugar.Named("user")),
		Tokens:  issuer,
		Metrics: m,
		DB:      sqlDB,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
