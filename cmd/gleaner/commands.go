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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/gleaner"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/orchestrator"
	"github.com/poiesic/gleaner/search"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Listen address",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			c.Context = ctx

			return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
				srv, err := svc.NewServer()
				if err != nil {
					return err
				}
				return srv.ListenAndServe(ctx, svc.Config().Server.Addr)
			})
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Submit one job, wait for it, and print its result",
		ArgsUsage: "<prompt words | files...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Job kind (scrape, local-upload, chat-query, config-command)",
				Value:   string(core.KindScrape),
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source hint for scrape jobs (auto, remote-crawl, advanced-crawl, local)",
				Value: string(core.HintAuto),
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Target collection for ingestion or context collection for chat",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up waiting after this long",
				Value: 30 * time.Minute,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often to check job status",
				Value: orchestrator.DefaultPollInterval,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Do not print progress",
			},
		},
		Action: runJob,
	}
}

func runJob(c *cli.Context) error {
	kind, err := core.ParseJobKind(c.String("kind"))
	if err != nil {
		return err
	}
	in := core.Input{Collection: c.String("collection")}
	if kind == core.KindLocalUpload {
		in.Files = c.Args().Slice()
	} else {
		in.Prompt = strings.Join(c.Args().Slice(), " ")
		in.SourceHint = core.SourceHint(c.String("source"))
	}

	return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
		orch := svc.Orchestrator()
		id, err := orch.Submit(ctx, kind, in)
		if err != nil {
			return err
		}

		waitCtx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
		defer cancel()

		var onUpdate func(*core.Job)
		printer := orchestrator.NewProgressPrinter(c.App.ErrWriter)
		if !c.Bool("quiet") {
			onUpdate = printer.Update
		}
		job, err := orchestrator.Wait(waitCtx, orch, id, c.Duration("poll-interval"), onUpdate)
		if err != nil {
			return err
		}
		if !c.Bool("quiet") {
			printer.Finish(job)
		}

		if job.Status == core.StatusFailed {
			return fmt.Errorf("job %s failed: %s: %s", job.ID, job.Error.Kind, job.Error.Message)
		}
		return writeJSON(c, job.Result)
	})
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect stored jobs",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent jobs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: orchestrator.DefaultListLimit,
					},
				},
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
						jobs, err := svc.Orchestrator().List(ctx, c.Int("limit"))
						if err != nil {
							return err
						}
						tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
						fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tPROGRESS\tCREATED")
						for _, j := range jobs {
							fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n",
								j.ID, j.Kind, j.Status, j.Progress*100, j.CreatedAt.Format(time.RFC3339))
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Print one job as JSON",
				ArgsUsage: "<job id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("job id is required")
					}
					return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
						job, found, err := svc.Orchestrator().Query(ctx, id)
						if err != nil {
							return err
						}
						if !found {
							return fmt.Errorf("%w: %s", orchestrator.ErrJobNotFound, id)
						}
						return writeJSON(c, job)
					})
				},
			},
		},
	}
}

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "Manage vector collections",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List collections with their document counts",
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
						infos, err := svc.VectorStore().ListCollections(ctx)
						if err != nil {
							return err
						}
						tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
						fmt.Fprintln(tw, "NAME\tDOCUMENTS\tDESCRIPTION")
						for _, info := range infos {
							fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.DocumentCount, info.Description)
						}
						return tw.Flush()
					})
				},
			},
			{
				Name:      "stats",
				Usage:     "Print collection statistics as JSON",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return errors.New("collection name is required")
					}
					return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
						stats, err := svc.VectorStore().CollectionStats(ctx, name)
						if err != nil {
							return err
						}
						return writeJSON(c, stats)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a collection and its documents",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return errors.New("collection name is required")
					}
					return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
						if err := svc.VectorStore().DeleteCollection(ctx, name); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "deleted %s\n", name)
						return nil
					})
				},
			},
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the documents most similar to a query",
		ArgsUsage: "<query words>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "collection",
				Usage:    "Collection to search",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of hits",
				Value: 5,
			},
		},
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return errors.New("query is required")
			}
			return withService(c, func(ctx context.Context, svc *gleaner.Service) error {
				hits, err := svc.Searcher().FindSimilar(ctx, c.String("collection"), query, c.Int("limit"))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(hits))
				for i, hit := range hits {
					fmt.Fprintf(c.App.Writer, "%d: '%s' (%s)[%0.3f]\n",
						i, search.Snippet(hit.Record.Text, 120), hit.Record.Metadata["source"], hit.Score)
				}
				return nil
			})
		},
	}
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
