package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/hal9000y/sdr/internal/config"
	"github.com/hal9000y/sdr/internal/logger"
	"github.com/hal9000y/sdr/internal/metrics"
)

const (
	defaultMessage   = "Send a cold sales email addressed to Dear CEO"
	defaultTraceName = "SDR Default Run"
	defaultHTTPAddr  = "localhost:8085"

	appConfigKey = "app-config"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "sdr",
		Usage: "Sales Development Representative agents for cold outreach emails",
		Description: "Three sales personas draft a cold email, a sales manager picks the best one\n" +
			"and it is sent either as plain text or handed to an email manager that writes\n" +
			"a subject and converts the body to HTML.\n\n" +
			"Running without a command sends a sample email addressed to \"Dear CEO\".",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "Path to env file (default: ./.env when present)"},
		},
		Before: setup,
		Commands: []*cli.Command{
			testEmailCommand(),
			sendCommand(),
			draftsCommand(),
			serveCommand(),
			authCommand(),
		},
		Action: runDefault,
	}
}

// setup loads the env file and initializes logging and metrics before any command runs.
func setup(c *cli.Context) error {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return err
	}

	appCfg, err := config.LoadAppConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Options{Level: appCfg.LogLevel, Env: appCfg.Env}); err != nil {
		return fmt.Errorf("logger.Init failed: %w", err)
	}
	metrics.Register()

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[appConfigKey] = appCfg

	return nil
}

func appConfig(c *cli.Context) config.AppConfig {
	appCfg, _ := c.App.Metadata[appConfigKey].(config.AppConfig)
	return appCfg
}

func runDefault(c *cli.Context) error {
	_, _ = fmt.Fprintln(c.App.Writer, "No command specified. Running default: sending a sales email...")
	_, _ = fmt.Fprintln(c.App.Writer)
	return sendSalesEmail(c, defaultMessage, true, defaultTraceName)
}
