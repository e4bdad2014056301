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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/svjt78/ragmesh/orchestrator"
	"github.com/svjt78/ragmesh/reembed"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func profileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "workflow",
			Aliases: []string{"w"},
			Usage:   "Workflow profile id",
		},
		&cli.StringFlag{
			Name:  "retrieval-profile",
			Usage: "Retrieval profile id (defaults to the workflow's)",
		},
		&cli.StringFlag{
			Name:  "fusion-profile",
			Usage: "Fusion profile id (defaults to the workflow's)",
		},
		&cli.StringFlag{
			Name:  "context-profile",
			Usage: "Context profile id (defaults to the workflow's)",
		},
		&cli.StringFlag{
			Name:  "judge-profile",
			Usage: "Judge profile id (defaults to the workflow's)",
		},
		&cli.StringSliceFlag{
			Name:    "doc",
			Aliases: []string{"d"},
			Usage:   "Restrict retrieval to these document ids",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragmesh",
		Usage: "Hybrid retrieval and judged answer generation over policy documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the settings YAML file",
				EnvVars: []string{"RAGMESH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Index documents from YAML or JSON corpus files",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "chunking-profile",
						Usage: "Chunking profile id for documents given as pages",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Answer a single question",
				ArgsUsage: "QUESTION",
				Action:    queryCommand,
				Flags:     profileFlags(),
			},
			{
				Name:   "chat",
				Usage:  "Start an interactive conversation (type quit to leave)",
				Action: chatCommand,
				Flags: append(profileFlags(), &cli.StringFlag{
					Name:  "chat-profile",
					Usage: "Chat profile id",
				}),
			},
			{
				Name:  "runs",
				Usage: "Inspect recorded runs",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List runs, newest first",
						Action: runsListCommand,
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "limit",
								Usage: "Maximum number of runs to show",
								Value: orchestrator.DefaultListLimit,
							},
							&cli.IntFlag{
								Name:  "offset",
								Usage: "Number of runs to skip",
							},
							&cli.StringFlag{
								Name:  "status",
								Usage: "Only show runs with this status",
							},
						},
					},
					{
						Name:      "show",
						Usage:     "Show a run's status and event log",
						ArgsUsage: "RUN_ID",
						Action:    runsShowCommand,
					},
					{
						Name:      "artifact",
						Usage:     "Print one artifact of a run",
						ArgsUsage: "RUN_ID NAME",
						Action:    runsArtifactCommand,
					},
					{
						Name:      "delete",
						Usage:     "Delete a run",
						ArgsUsage: "RUN_ID",
						Action:    runsDeleteCommand,
					},
				},
			},
			{
				Name:   "profiles",
				Usage:  "List the available profile ids",
				Action: profilesCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Reembed stored chunks with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.StringSliceFlag{
						Name:    "doc",
						Aliases: []string{"d"},
						Usage:   "Only reembed chunks of these document ids",
					},
				},
			},
		},
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	installLogger(level)
	return nil
}

func installLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
