package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/svjt78/ragmesh"
	"github.com/svjt78/ragmesh/ai/mock"
	"github.com/svjt78/ragmesh/config"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/orchestrator"
	"github.com/svjt78/ragmesh/reembed"
)

func findCommand(t *testing.T, cmds []*cli.Command, name string) *cli.Command {
	t.Helper()
	for _, cmd := range cmds {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestReembedCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp().Commands, "reembed")

	t.Run("batch-size defaults to the package default", func(t *testing.T) {
		var batchFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "batch-size" {
				batchFlag = f
				break
			}
		}
		require.NotNil(t, batchFlag)
		assert.Equal(t, reembed.DefaultBatchSize, batchFlag.Value)
	})

	t.Run("retry-delay has default value of 1s", func(t *testing.T) {
		var delayFlag *cli.DurationFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.DurationFlag); ok && f.Name == "retry-delay" {
				delayFlag = f
				break
			}
		}
		require.NotNil(t, delayFlag)
		assert.Equal(t, time.Second, delayFlag.Value)
	})
}

func TestReembedCommandValidation(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"zero batch size", []string{"--batch-size", "0"}, "batch-size"},
		{"negative report interval", []string{"--report-interval", "-1"}, "report-interval"},
		{"zero retries", []string{"--max-retries", "0"}, "max-retries"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := newApp()
			args := append([]string{"ragmesh", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "reembed"}, tc.args...)
			err := app.Run(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "log-level", Value: "info"},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error { return nil },
				}
				require.NoError(t, app.Run([]string{"test", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseCorpus(t *testing.T) {
	t.Run("documents key", func(t *testing.T) {
		docs, err := parseCorpus([]byte(`
documents:
  - doc_id: ho3
    filename: ho3.pdf
    form_number: HO 00 03
    chunks:
      - page_no: 1
        text: Water damage from a burst pipe is covered.
      - chunk_id: custom
        page_no: 2
        text: Flood is excluded.
`))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "HO 00 03", docs[0].FormNumber)
		require.Len(t, docs[0].Chunks, 2)
		assert.Equal(t, "ho3_p1_0", docs[0].Chunks[0].ChunkID)
		assert.Equal(t, "ho3", docs[0].Chunks[0].DocID)
		assert.Equal(t, "custom", docs[0].Chunks[1].ChunkID)
	})

	t.Run("top-level list", func(t *testing.T) {
		docs, err := parseCorpus([]byte(`[{"doc_id": "a", "filename": "a.pdf"}, {"doc_id": "b", "filename": "b.pdf"}]`))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "b", docs[1].DocID)
	})

	t.Run("single document", func(t *testing.T) {
		docs, err := parseCorpus([]byte("doc_id: dp1\nfilename: dp1.pdf\n"))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "dp1", docs[0].DocID)
	})

	t.Run("pages", func(t *testing.T) {
		docs, err := parseCorpus([]byte(`
doc_id: end
filename: end.pdf
pages:
  - text: Water backup is added by this endorsement.
  - page_no: 4
    text: The limit is $5,000.
`))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		require.Len(t, docs[0].Pages, 2)
		assert.Empty(t, docs[0].Chunks)
		assert.Equal(t, 1, docs[0].Pages[0].PageNo)
		assert.Equal(t, 4, docs[0].Pages[1].PageNo)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := parseCorpus([]byte(""))
		assert.ErrorIs(t, err, errEmptyCorpus)
		_, err = parseCorpus([]byte("documents: []\n"))
		assert.ErrorIs(t, err, errEmptyCorpus)
	})

	t.Run("scalar", func(t *testing.T) {
		_, err := parseCorpus([]byte("just text"))
		assert.Error(t, err)
	})
}

func writeSettings(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ragmesh.yaml")
	content := fmt.Sprintf("data_dir: %s\nruns_dir: %s\nprofiles_dir: %s\n",
		filepath.Join(dir, "db"), filepath.Join(dir, "runs"), filepath.Join(dir, "profiles"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunsAndProfilesCommands(t *testing.T) {
	path := writeSettings(t)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"ragmesh", "--config", path, "runs", "list"}))
	assert.Contains(t, out.String(), "0 of 0 runs")

	out.Reset()
	app = newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"ragmesh", "--config", path, "profiles"}))
	assert.Contains(t, out.String(), "quick")

	app = newApp()
	err := app.Run([]string{"ragmesh", "--config", path, "runs", "show"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id")
}

func TestIngestCommand(t *testing.T) {
	path := writeSettings(t)
	app := newApp()
	err := app.Run([]string{"ragmesh", "--config", path, "ingest"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus file")

	app = newApp()
	err = app.Run([]string{"ragmesh", "--config", path, "ingest", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load")

	app = newApp()
	err = app.Run([]string{"ragmesh", "--config", path, "ingest", "--chunking-profile", "nope", "corpus.yaml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestChatLoop(t *testing.T) {
	settings := config.DefaultSettings()
	dir := t.TempDir()
	settings.DataDir = filepath.Join(dir, "db")
	settings.RunsDir = filepath.Join(dir, "runs")
	settings.ProfilesDir = filepath.Join(dir, "profiles")

	provider := mock.NewMockProvider()
	provider.GetMockLLM().WithResponse(`{"answer": "Burst pipes are covered.", "citations": [{"chunk_id": "p1", "doc_id": "ho3", "page_no": 1}], "confidence": "high"}`)
	sys, err := ragmesh.Open(settings, ragmesh.WithProvider(provider), ragmesh.WithInMemoryStorage())
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })

	ctx := context.Background()
	pipeline, err := sys.NewIngestionPipeline()
	require.NoError(t, err)
	require.NoError(t, pipeline.Ingest(ctx, &core.Document{
		DocID:    "ho3",
		Filename: "ho3.pdf",
		Chunks: []*core.Chunk{
			{ChunkID: "p1", DocID: "ho3", PageNo: 1, Text: "Water damage from a burst pipe is covered."},
		},
	}))
	require.NoError(t, pipeline.Wait())
	pipeline.Release()

	in := strings.NewReader("Is a burst pipe covered?\n\n/sessions\nAnd a frozen pipe?\nquit\n")
	var out bytes.Buffer
	base := orchestrator.Request{Profiles: config.ProfileIDs{Workflow: "quick"}}
	require.NoError(t, chatLoop(ctx, sys.Orchestrator(), sys.Chat(), base, "", in, &out))

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "Burst pipes are covered."))
	assert.Contains(t, text, "ho3 p.1 (p1)")
	assert.Contains(t, text, "turns=1 total=1")
	assert.Contains(t, text, "1 active sessions")
	assert.Contains(t, text, "Session ended.")
	assert.Empty(t, sys.Chat().ListSessions())

	runs, total, err := sys.Orchestrator().ListRuns(ctx, 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 3)
}
