package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
	"github.com/yndnr/authcore-go/internal/server/config"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
)

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the server",
		Flags:  []cli.Flag{configFlag()},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadContextConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting authcore-server",
		"version", info.Version,
		"core_version", info.CoreVersion,
		"commit", info.Commit,
		"config", c.String("config"))

	srv, err := NewServer(c.Context, cfg, ServerOptions{
		ConfigPath: c.String("config"),
		Overrides:  ParseGlobalFlags(c).overrides(),
		Logger:     log,
	})
	if err != nil {
		return err
	}
	return srv.Run(c.Context, nil)
}

// initLogger builds the process logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}
