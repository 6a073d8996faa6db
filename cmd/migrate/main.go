package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-accounts/pkg/database"
	"github.com/ovaphlow/pitchfork/service-accounts/pkg/utilities"
)

const usage = "usage: migrate up|down|status"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
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
	sugar := lg.Sugar().Named("migrate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("database config: %v", err)
	}
	sqlDB, err := database.Connect(ctx, cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	m, err := database.NewMigrator(sqlDB, migrations.FS, sugar)
	if err != nil {
		sugar.Fatalf("migrator: %v", err)
	}

	var run func(context.Context) error
	switch os.Args[1] {
	case "up":
		run = m.Up
	case "down":
		run = m.Down
	case "status":
		run = m.Status
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(ctx); err != nil {
		sugar.Fatalf("%v", err)
	}
	sugar.Infow("done", "command", os.Args[1])
}
