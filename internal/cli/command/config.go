package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Subcommands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Load and verify the configuration",
				Flags:  []cli.Flag{configFlag()},
				Action: configCheck,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Flags:  []cli.Flag{configFlag()},
				Action: configShow,
			},
		},
	}
}

// checkResult is what "config check" prints on success.
type checkResult struct {
	Status  string `json:"status"`
	File    string `json:"file"`
	Storage string `json:"storage"`
	Tenants int    `json:"tenants"`
}

func configCheck(c *cli.Context) error {
	cfg, err := loadContextConfig(c)
	if err != nil {
		return err
	}
	reg, err := config.NewRegistry(cfg)
	if err != nil {
		return err
	}

	file := c.String("config")
	if file == "" {
		file = "(defaults)"
	}
	return render(c, checkResult{
		Status:  "OK",
		File:    file,
		Storage: cfg.Storage.Type,
		Tenants: len(reg.Tenants()),
	})
}

func configShow(c *cli.Context) error {
	cfg, err := loadContextConfig(c)
	if err != nil {
		return err
	}
	return render(c, config.ToMap(config.Sanitize(cfg)))
}
