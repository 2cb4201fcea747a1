// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/gleaner"
	"github.com/poiesic/gleaner/config"
	"github.com/urfave/cli/v2"
)

// openService builds the service for a command. Tests replace it.
var openService = func(ctx context.Context, cfg *config.Config) (*gleaner.Service, error) {
	return gleaner.New(ctx, cfg, gleaner.WithLogger(slog.Default()))
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "gleaner",
		Usage: "Crawl, chunk, and embed sources into searchable vector collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Set logging format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"GLEANER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file; ignored when missing",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Directory for badger stores",
			},
			&cli.StringFlag{
				Name:  "job-store",
				Usage: "Job store backend (memory, badger, redis)",
			},
			&cli.StringFlag{
				Name:  "vector-store",
				Usage: "Vector store backend (badger, pgvector)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of jobs run concurrently",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			jobsCommand(),
			collectionsCommand(),
			searchCommand(),
		},
	}
}

// setupLogger installs the default slog handler from --log-level and --log-format.
func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	var w io.Writer = os.Stderr
	if c.App != nil && c.App.ErrWriter != nil {
		w = c.App.ErrWriter
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format := strings.ToLower(c.String("log-format")); format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfig layers the global flags over the file and environment settings.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("job-store") {
		cfg.Jobs.Store = c.String("job-store")
	}
	if c.IsSet("vector-store") {
		cfg.Vectors.Store = c.String("vector-store")
	}
	if c.IsSet("workers") {
		cfg.Jobs.Workers = c.Int("workers")
	}
	if c.IsSet("addr") {
		cfg.Server.Addr = c.String("addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withService loads the config, opens the service, and closes it after fn.
func withService(c *cli.Context, fn func(ctx context.Context, svc *gleaner.Service) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			slog.Error("error closing service", "err", err)
		}
	}()
	return fn(ctx, svc)
}
