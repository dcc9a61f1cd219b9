package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/cli"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	log := logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     true,
		Encoding:          "console",
		Level:             "warn",
		DisableStacktrace: true,
		ServiceName:       "stockctl",
	})
	defer log.Sync()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range cli.NewApp(cfg, os.Stdout, log).Commands() {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
