// Package main provides the tripboard command line client.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.WarnLevel)

	if err := newApp(logger).Run(os.Args); err != nil {
		logger.Fatal().Err(err).Send()
	}
}

func newApp(logger zerolog.Logger) *cli.App {
	return &cli.App{
		Name:    "tripboard",
		Usage:   "Next bus and light rail departures from the command line",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log at debug level",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				c.App.Metadata = map[string]any{"logger": logger.Level(zerolog.DebugLevel)}
			} else {
				c.App.Metadata = map[string]any{"logger": logger}
			}
			return nil
		},
		Commands: []*cli.Command{
			nextCommand(),
			departuresCommand(),
			stopsCommand(),
		},
	}
}

func loggerFrom(c *cli.Context) zerolog.Logger {
	if l, ok := c.App.Metadata["logger"].(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}
