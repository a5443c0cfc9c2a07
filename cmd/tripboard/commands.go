package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tripboard/tripboard/internal/app"
	"github.com/tripboard/tripboard/internal/config"
	"github.com/tripboard/tripboard/internal/stop"
	"github.com/tripboard/tripboard/internal/timeline"
	"github.com/tripboard/tripboard/internal/transit"
)

var modeFlag = &cli.StringFlag{
	Name:    "mode",
	Aliases: []string{"m"},
	Value:   string(transit.ModeBus),
	Usage:   "transport mode: bus or lightRail",
}

func openCore(c *cli.Context) (*config.Config, *app.Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	core, err := app.NewCore(c.Context, cfg, loggerFrom(c))
	if err != nil {
		return nil, nil, err
	}
	return cfg, core, nil
}

func nextCommand() *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "show the next departure as the widget would",
		Flags: []cli.Flag{
			modeFlag,
			&cli.StringFlag{Name: "stop", Aliases: []string{"s"}, Usage: "upstream stop id (defaults to the mode's default stop)"},
			&cli.BoolFlag{Name: "auto", Usage: "pick the nearest saved stop"},
			&cli.Float64Flag{Name: "lat", Usage: "latitude for --auto"},
			&cli.Float64Flag{Name: "lon", Usage: "longitude for --auto"},
		},
		Action: func(c *cli.Context) error {
			mode, err := transit.ParseMode(c.String("mode"))
			if err != nil {
				return err
			}
			cfg, core, err := openCore(c)
			if err != nil {
				return err
			}
			defer core.Close()

			req := stop.Request{Mode: mode, StopID: c.String("stop"), Automatic: c.Bool("auto")}
			if !req.Automatic && req.StopID == "" {
				req.StopID = mode.DefaultStopID()
			}
			if c.IsSet("lat") || c.IsSet("lon") {
				req.Position = &stop.Position{Latitude: c.Float64("lat"), Longitude: c.Float64("lon")}
			}

			now := time.Now()
			tl := core.Timelines.Timeline(c.Context, cfg.TimelineDefaults(req), now)
			_, err = fmt.Fprintln(c.App.Writer, formatSnapshot(tl.At(now)))
			return err
		},
	}
}

func departuresCommand() *cli.Command {
	return &cli.Command{
		Name:  "departures",
		Usage: "list upcoming departures for a stop",
		Flags: []cli.Flag{
			modeFlag,
			&cli.StringFlag{Name: "stop", Aliases: []string{"s"}, Usage: "upstream stop id (defaults to the mode's default stop)"},
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "maximum departures to show"},
		},
		Action: func(c *cli.Context) error {
			mode, err := transit.ParseMode(c.String("mode"))
			if err != nil {
				return err
			}
			stopID := c.String("stop")
			if stopID == "" {
				stopID = mode.DefaultStopID()
			}

			_, core, err := openCore(c)
			if err != nil {
				return err
			}
			defer core.Close()

			now := time.Now()
			events, err := core.Provider.Departures(c.Context, stopID, mode, now)
			if err != nil {
				return cli.Exit(transit.UserMessage(err), 1)
			}
			if limit := c.Int("limit"); limit > 0 && len(events) > limit {
				events = events[:limit]
			}
			return writeDepartures(c.App.Writer, events, mode, now)
		},
	}
}

func stopsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stops",
		Usage: "manage saved stops",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list saved stops",
				Action: func(c *cli.Context) error {
					_, core, err := openCore(c)
					if err != nil {
						return err
					}
					defer core.Close()
					return writeStops(c.App.Writer, core.Directory.List())
				},
			},
			{
				Name:      "add",
				Usage:     "save a stop",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					modeFlag,
					&cli.StringFlag{Name: "stop", Aliases: []string{"s"}, Usage: "upstream stop id", Required: true},
					&cli.Float64Flag{Name: "lat", Required: true},
					&cli.Float64Flag{Name: "lon", Required: true},
				},
				Action: func(c *cli.Context) error {
					name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
					if name == "" {
						return errors.New("stop name is required")
					}
					mode, err := transit.ParseMode(c.String("mode"))
					if err != nil {
						return err
					}
					_, core, err := openCore(c)
					if err != nil {
						return err
					}
					defer core.Close()

					rec := stop.NewRecord(name, strings.TrimSpace(c.String("stop")), mode, c.Float64("lat"), c.Float64("lon"))
					if _, err := core.Directory.AddUnique(c.Context, rec); err != nil {
						if errors.Is(err, stop.ErrStopIDInUse) {
							return fmt.Errorf("stop %s is already saved", rec.StopID)
						}
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "saved %s (%s)\n", rec.Name, rec.ID)
					return err
				},
			},
			{
				Name:      "remove",
				Usage:     "remove a saved stop",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("stop id is required")
					}
					_, core, err := openCore(c)
					if err != nil {
						return err
					}
					defer core.Close()
					return core.Directory.Remove(c.Context, id)
				},
			},
			{
				Name:  "seed",
				Usage: "save the demo stops",
				Action: func(c *cli.Context) error {
					_, core, err := openCore(c)
					if err != nil {
						return err
					}
					defer core.Close()

					added, err := seedSamples(c.Context, core.Directory)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "added %d stops\n", added)
					return err
				},
			},
		},
	}
}

func seedSamples(ctx context.Context, dir *stop.Directory) (int, error) {
	return dir.Seed(ctx, stop.SampleRecords())
}

// formatSnapshot renders a snapshot as one line.
func formatSnapshot(s timeline.Snapshot) string {
	switch s.State() {
	case timeline.StateError:
		return transit.UserMessage(s.Err())
	case timeline.StateEmpty:
		if s.StopName() != "" {
			return "No upcoming departures from " + s.StopName()
		}
		return "No upcoming departures"
	}

	ev, _ := s.Departure()
	d := s.Display()
	line := fmt.Sprintf("%s %s to %s  %s", d.ModeLabel, ev.Line, ev.Destination, d.Countdown)
	if d.HasDelay {
		line += "  (" + d.Delay + ")"
	}
	if s.StopName() != "" {
		line += "  from " + s.StopName()
	}
	return line
}

func writeDepartures(w io.Writer, events []transit.Event, mode transit.Mode, now time.Time) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No upcoming departures")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDESTINATION\tDEPARTS\tSTATUS")
	for _, ev := range events {
		d := timeline.Derive(ev, mode, now)
		status := d.Delay
		if ev.IsCancelled {
			status = "Cancelled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ev.Line, ev.Destination, d.Countdown, status)
	}
	return tw.Flush()
}

func writeStops(w io.Writer, records []stop.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No saved stops")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTOP\tMODE\tPOSITION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f,%.4f\n", r.ID, r.Name, r.UpstreamID(), r.Mode.Label(), r.Latitude, r.Longitude)
	}
	return tw.Flush()
}
