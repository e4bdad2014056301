package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/svjt78/ragmesh"
	"github.com/svjt78/ragmesh/chat"
	"github.com/svjt78/ragmesh/config"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/ingestion"
	"github.com/svjt78/ragmesh/orchestrator"
	"github.com/svjt78/ragmesh/reembed"
	"github.com/svjt78/ragmesh/storage"
)

// openSystem loads settings and opens the system. The settings file's log
// level applies unless --log-level was given explicitly.
func openSystem(c *cli.Context, opts ...ragmesh.Option) (*ragmesh.System, error) {
	settings, err := config.LoadSettings(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if !c.IsSet("log-level") && settings.LogLevel != "" {
		level, err := parseLevel(settings.LogLevel)
		if err != nil {
			return nil, err
		}
		installLogger(level)
	}
	sys, err := ragmesh.Open(settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open system: %w", err)
	}
	return sys, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func docFilter(ids []string) *storage.ChunkFilter {
	if len(ids) == 0 {
		return nil
	}
	return &storage.ChunkFilter{DocIDs: ids}
}

func requestFromFlags(c *cli.Context) orchestrator.Request {
	return orchestrator.Request{
		Profiles: config.ProfileIDs{
			Workflow:  c.String("workflow"),
			Retrieval: c.String("retrieval-profile"),
			Fusion:    c.String("fusion-profile"),
			Context:   c.String("context-profile"),
			Judge:     c.String("judge-profile"),
		},
		Filter: docFilter(c.StringSlice("doc")),
	}
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one corpus file is required")
	}
	ctx := c.Context

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	chunking, err := sys.Registry().Chunking(c.String("chunking-profile"))
	if err != nil {
		return err
	}
	pipeline, err := sys.NewIngestionPipeline(ingestion.WithChunking(chunking))
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	count := 0
	for _, path := range c.Args().Slice() {
		docs, err := loadCorpus(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		for _, doc := range docs {
			if err := pipeline.Ingest(ctx, doc); err != nil {
				return fmt.Errorf("failed to ingest %s from %s: %w", doc.DocID, path, err)
			}
			count++
		}
	}
	if err := pipeline.Wait(); err != nil {
		return fmt.Errorf("indexing finished with errors: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Ingested %d documents\n", count)
	return nil
}

func queryCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a question is required")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	req := requestFromFlags(c)
	req.Query = query
	req.Mode = core.ModeQuery
	result, err := sys.Orchestrator().Execute(c.Context, req)
	if result != nil {
		if werr := writeJSON(c.App.Writer, result); werr != nil {
			return werr
		}
	}
	return err
}

func chatCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()
	return chatLoop(c.Context, sys.Orchestrator(), sys.Chat(), requestFromFlags(c), c.String("chat-profile"), c.App.Reader, c.App.Writer)
}

// chatLoop reads one message per line until EOF or a quit command. The
// /sessions line lists the live sessions instead of asking a question.
func chatLoop(ctx context.Context, orch *orchestrator.Orchestrator, sessions *chat.Manager, base orchestrator.Request, chatProfile string, in io.Reader, out io.Writer) error {
	base.Mode = core.ModeChat
	base.Profiles.Chat = chatProfile

	scanner := bufio.NewScanner(in)
	sessionID := ""
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "/sessions" {
			printSessions(out, sessions.ListSessions())
			continue
		}

		req := base
		req.Query = message
		req.SessionID = sessionID
		result, err := orch.Execute(ctx, req)
		if result == nil {
			if errors.Is(err, core.ErrValidation) {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			return err
		}
		sessionID = result.SessionID

		switch result.Status {
		case core.RunStatusTerminated:
			fmt.Fprintln(out, "Session ended.")
			return nil
		case core.RunStatusCompleted:
			printAnswer(out, result)
		case core.RunStatusBlocked:
			fmt.Fprintf(out, "[blocked by judge, run %s]\n", result.RunID)
		default:
			fmt.Fprintf(out, "[run %s failed: %s]\n", result.RunID, result.Error)
		}
	}
}

func printAnswer(out io.Writer, result *orchestrator.Result) {
	if result.Answer == nil {
		fmt.Fprintf(out, "[no answer, run %s]\n", result.RunID)
		return
	}
	fmt.Fprintln(out, result.Answer.Text)
	for _, cite := range result.Answer.Citations {
		fmt.Fprintf(out, "  - %s p.%d (%s)\n", cite.DocID, cite.PageNo, cite.ChunkID)
	}
	if result.HistoryCompacted {
		fmt.Fprintln(out, "  (older turns were summarized)")
	}
}

func printSessions(out io.Writer, sessions []*core.ChatSession) {
	for _, session := range sessions {
		fmt.Fprintf(out, "%s  turns=%d total=%d tokens=%d workflow=%s\n",
			session.SessionID, len(session.Turns), session.TotalTurns, session.TotalTokens, session.WorkflowID)
	}
	fmt.Fprintf(out, "%d active sessions\n", len(sessions))
}

func runsListCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	runs, total, err := sys.Orchestrator().ListRuns(c.Context, c.Int("limit"), c.Int("offset"), core.RunStatus(c.String("status")))
	if err != nil {
		return err
	}
	w := c.App.Writer
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %-10s  %s\n", run.RunID, run.Status, run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "%d of %d runs\n", len(runs), total)
	return nil
}

func runIDArg(c *cli.Context) (string, error) {
	if c.NArg() < 1 {
		return "", fmt.Errorf("a run id is required")
	}
	return c.Args().First(), nil
}

func runsShowCommand(c *cli.Context) error {
	runID, err := runIDArg(c)
	if err != nil {
		return err
	}
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	events, err := sys.Orchestrator().GetRunEvents(c.Context, runID)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, struct {
		RunID  string         `json:"run_id"`
		Status core.RunStatus `json:"status"`
		Events []*core.Event  `json:"events"`
	}{runID, orchestrator.StatusFromEvents(events), events})
}

func runsArtifactCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("a run id and an artifact name are required")
	}
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	data, err := sys.Orchestrator().GetArtifact(c.Context, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(data))
	return err
}

func runsDeleteCommand(c *cli.Context) error {
	runID, err := runIDArg(c)
	if err != nil {
		return err
	}
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.Orchestrator().DeleteRun(c.Context, runID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted run %s\n", runID)
	return nil
}

func profilesCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()
	return writeJSON(c.App.Writer, sys.Registry().IDs())
}

func reembedConfig(c *cli.Context) (*reembed.Config, error) {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Filter:         docFilter(c.StringSlice("doc")),
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return nil, fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return nil, fmt.Errorf("max-retries must be greater than 0")
	}
	return cfg, nil
}

func reembedCommand(c *cli.Context) error {
	cfg, err := reembedConfig(c)
	if err != nil {
		return err
	}
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	reembedder, err := sys.NewReembedder(cfg, os.Stderr)
	if err != nil {
		return err
	}
	summary, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed after %d chunks: %w", summary.Chunks, err)
	}
	for _, docID := range summary.DocumentIDs() {
		fmt.Fprintf(c.App.Writer, "%s\t%d chunks\n", docID, summary.Documents[docID])
	}
	return nil
}
