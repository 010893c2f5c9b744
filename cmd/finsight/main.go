// Command finsight answers one research question from the command line.
//
//	finsight -subject AAPL -name Apple "How did services revenue develop last quarter?"
//
// Backends are wired from the environment (DATABASE_URL, FINSIGHT_QDRANT_URL,
// OPENAI_API_KEY, ...); unconfigured backends degrade gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("FINSIGHT_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	// Logs go to stderr; stdout carries the answer.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	var (
		subjectCode = flag.String("subject", "", "instrument code, e.g. a ticker (optional)")
		subjectName = flag.String("name", "", "human-readable subject name (optional)")
		intent      = flag.String("intent", "", "question intent: factual|analysis|comparison|general")
		complexity  = flag.String("complexity", "", "complexity tier: simple|standard|comprehensive")
		shape       = flag.String("shape", "", "answer shape: brief|detailed|list")
		session     = flag.String("session", "", "session UUID linking prior turns (optional)")
		showSources = flag.Bool("sources", false, "print the evidence list after the answer")
	)
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: finsight [flags] <question>")
	}

	var sessionID *uuid.UUID
	if *session != "" {
		id, err := uuid.Parse(*session)
		if err != nil {
			return fmt.Errorf("invalid -session: %w", err)
		}
		sessionID = &id
	}

	eng, err := finsight.New(
		finsight.WithLogger(logger),
		finsight.WithVersion(version),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	resp, err := eng.Process(ctx, finsight.Query{
		Text:        question,
		SubjectCode: *subjectCode,
		SubjectName: *subjectName,
		Intent:      finsight.Intent(*intent),
		Complexity:  finsight.Complexity(*complexity),
		AnswerShape: finsight.AnswerShape(*shape),
		SessionID:   sessionID,
	})
	if err != nil {
		return err
	}

	// The engine reads session history but never writes it; recording the
	// conversation is this side's job.
	if sessionID != nil && resp.Answer != "" {
		if err := eng.AppendTurn(ctx, *sessionID, "user", question); err != nil {
			logger.Warn("record user turn failed", "error", err)
		} else if err := eng.AppendTurn(ctx, *sessionID, "assistant", resp.Answer); err != nil {
			logger.Warn("record assistant turn failed", "error", err)
		}
	}

	fmt.Println(resp.Answer)

	if resp.Category != "" {
		fmt.Fprintf(os.Stderr, "\n[degraded: %s, elapsed %s]\n", resp.Category, resp.Elapsed.Round(time.Millisecond))
		for _, issue := range resp.Issues {
			fmt.Fprintf(os.Stderr, "  %s: %s: %s\n", issue.Agent, issue.Kind, issue.Message)
		}
	}

	if *showSources && len(resp.Evidence) > 0 {
		fmt.Println("\nSources:")
		for i, ev := range resp.Evidence {
			fmt.Printf("%2d. [%.2f] %s (%s)\n", i+1, ev.Score, snippet(ev.Content, 120), strings.Join(ev.SourceIDs, ", "))
		}
	}
	return nil
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
