package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/cli/output"
	"github.com/yndnr/authcore-go/internal/infra/buildinfo"
	"github.com/yndnr/authcore-go/internal/infra/confloader"
	"github.com/yndnr/authcore-go/internal/server/config"
)

// Name is the executable name.
const Name = "authcore-server"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    Name,
		Usage:   "Session and token server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			VersionCommand(),
			ConfigCommand(),
			StorageCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the flags every command accepts before its name.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: text, json, yaml",
			Value:   string(output.FormatText),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Override log.level (debug, info, warn, error)",
		},
	}
}

// configFlag is the --config flag shared by every command that reads the
// server configuration.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		EnvVars: []string{confloader.DefaultEnvPrefix + "CONFIG"},
	}
}

// GlobalFlags holds the parsed global flags.
type GlobalFlags struct {
	Output   output.Format
	LogLevel string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Output:   format,
		LogLevel: c.String("log-level"),
	}
}

// overrides turns global flags into configuration overrides.
func (g *GlobalFlags) overrides() map[string]any {
	if g.LogLevel == "" {
		return nil
	}
	return map[string]any{"log.level": g.LogLevel}
}

// loadConfig reads defaults, then the file at path, then AUTHCORE_*
// variables, then overrides, and verifies the result.
func loadConfig(path string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadContextConfig loads the configuration named by the --config flag of c.
func loadContextConfig(c *cli.Context) (*config.ServerConfig, error) {
	return loadConfig(c.String("config"), ParseGlobalFlags(c).overrides())
}

// render writes data to the app's writer in the --output format.
func render(c *cli.Context, data any) error {
	return output.NewFormatter(ParseGlobalFlags(c).Output).Format(c.App.Writer, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
