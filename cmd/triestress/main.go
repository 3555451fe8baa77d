// Command triestress puts a triestore.Store under concurrent load and checks
// that readers never observe a value or version older than one they have
// already seen.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := run(context.Background(), os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "triestress: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return command(stdout, stderr).Run(ctx, args)
}

func command(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "triestress",
		Usage:     "stress a copy-on-write trie store with concurrent readers and writers",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "TOML file with a [workload] table; flags override it",
			},
			&cli.IntFlag{
				Name:  "readers",
				Usage: "number of reader goroutines",
			},
			&cli.IntFlag{
				Name:  "writers",
				Usage: "number of writer goroutines",
			},
			&cli.IntFlag{
				Name:  "keys",
				Usage: "number of keys owned by each writer",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "how long to run",
			},
			&cli.Float64Flag{
				Name:  "remove-ratio",
				Usage: "fraction of writes that are removes",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "seed for the key and operation choices",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log every published version",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return action(ctx, cmd, stdout, stderr)
		},
	}
}

func action(ctx context.Context, cmd *cli.Command, stdout, stderr io.Writer) error {
	w := defaultWorkload()
	if path := cmd.String("config"); path != "" {
		var err error
		if w, err = loadConfig(path); err != nil {
			return err
		}
	}
	if cmd.IsSet("readers") {
		w.Readers = cmd.Int("readers")
	}
	if cmd.IsSet("writers") {
		w.Writers = cmd.Int("writers")
	}
	if cmd.IsSet("keys") {
		w.Keys = cmd.Int("keys")
	}
	if cmd.IsSet("duration") {
		w.Duration = cmd.Duration("duration").String()
	}
	if cmd.IsSet("remove-ratio") {
		w.RemoveRatio = cmd.Float64("remove-ratio")
	}
	if cmd.IsSet("seed") {
		w.Seed = cmd.Int64("seed")
	}
	duration, err := w.validate()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.InfoContext(ctx, "starting",
		"readers", w.Readers, "writers", w.Writers, "keys", w.Keys,
		"duration", duration, "remove_ratio", w.RemoveRatio, "seed", w.Seed)

	r, err := runWorkload(ctx, w, duration, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "version=%d len=%d digest=%x\n", r.Version, r.Len, r.Digest)
	fmt.Fprintf(stdout, "reads=%d hits=%d writes=%d removes=%d violations=%d\n",
		r.Reads, r.Hits, r.Writes, r.Removes, r.Violations)
	if r.Violations > 0 {
		return fmt.Errorf("%d consistency violations", r.Violations)
	}
	return nil
}
