// ABOUTME: Entry point for the trace-assist CLI
// ABOUTME: Drives analysis turns, session listing, and retention sweeps against a backend

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/trace-assist/internal/config"
	"github.com/2389/trace-assist/internal/intervention"
	"github.com/2389/trace-assist/internal/panel"
	"github.com/2389/trace-assist/internal/session"
	"github.com/2389/trace-assist/internal/store"
	"github.com/2389/trace-assist/internal/stream"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the trace-assist config file.
// Priority: TRACE_ASSIST_CONFIG env var > XDG_CONFIG_HOME/trace-assist/config.yaml > ~/.config/trace-assist/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TRACE_ASSIST_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "trace-assist", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: trace-assist <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  watch --trace NAME --start NS --end NS PROMPT   Run one analysis turn and stream output")
		fmt.Println("  sessions --trace NAME --start NS --end NS       List sessions for a trace")
		fmt.Println("  sweep                                           Delete sessions past the retention window")
		fmt.Println("  version                                         Print version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "sessions":
		err = runSessions(ctx, os.Args[2:])
	case "sweep":
		err = runSweep(ctx)
	case "version":
		fmt.Println("trace-assist", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and wires slog from its logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	return cfg, nil
}

// traceFlags extracts --trace/--start/--end plus trailing positional args.
func traceFlags(args []string) (panel.TraceInfo, []string, error) {
	info := panel.TraceInfo{}
	var rest []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--trace":
			if i+1 >= len(args) {
				return info, nil, fmt.Errorf("--trace requires a value")
			}
			i++
			info.Name = args[i]
			info.Title = args[i]
		case "--start":
			if i+1 >= len(args) {
				return info, nil, fmt.Errorf("--start requires a value")
			}
			i++
			ns, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				return info, nil, fmt.Errorf("parsing --start: %w", err)
			}
			info.StartNs = ns
		case "--end":
			if i+1 >= len(args) {
				return info, nil, fmt.Errorf("--end requires a value")
			}
			i++
			ns, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				return info, nil, fmt.Errorf("parsing --end: %w", err)
			}
			info.EndNs = ns
		default:
			rest = append(rest, args[i])
		}
	}

	if info.Name == "" {
		return info, nil, fmt.Errorf("--trace is required")
	}
	return info, rest, nil
}

func openManager(cfg *config.Config) (*session.Manager, *store.SQLiteKV, error) {
	kv, err := store.NewSQLiteKV(cfg.Session.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}

	resume := &session.HTTPResumeClient{Endpoint: cfg.ResumeURL()}
	mgr := session.NewManager(kv, resume, cfg.Session.Retention, slog.Default())
	return mgr, kv, nil
}

func runWatch(ctx context.Context, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	trace, rest, err := traceFlags(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("watch requires a prompt")
	}
	prompt := strings.Join(rest, " ")

	mgr, kv, err := openManager(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	resolver := &intervention.HTTPResolver{Endpoint: cfg.ResolveURL()}
	coordinator := intervention.NewCoordinator(resolver, slog.Default())

	bus := panel.NewBus(slog.Default())
	defer bus.Close()

	streamCfg := stream.Config{
		BaseDelay:  cfg.Stream.BaseDelay,
		MaxDelay:   cfg.Stream.MaxDelay,
		MaxRetries: cfg.Stream.MaxRetries,
		JitterFrac: cfg.Stream.Jitter,
	}

	p := panel.New(trace, mgr, coordinator, &stream.HTTPRequester{}, streamCfg, cfg.StreamURL(), bus, slog.Default())
	defer p.Close()

	if err := p.Open(ctx); err != nil {
		return err
	}

	// Print intervention prompts as they arrive; the CLI auto-selects
	// the recommended option so unattended runs don't hang.
	interventions, subID := bus.Subscribe(ctx, panel.TopicInterventionOpened)
	defer bus.Unsubscribe(panel.TopicInterventionOpened, subID)
	go answerInterventions(ctx, coordinator, interventions)

	cyan := color.New(color.FgCyan)
	cyan.Printf("Starting analysis turn for %s\n", trace.Name)

	if err := p.StartTurn(ctx, prompt); err != nil {
		return fmt.Errorf("turn failed: %w", err)
	}

	printTranscript(p.Current())
	return nil
}

// answerInterventions resolves backend pauses with the recommended
// option, or aborts when none is marked.
func answerInterventions(ctx context.Context, coordinator *intervention.Coordinator, events <-chan panel.Event) {
	yellow := color.New(color.FgYellow)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			snap := coordinator.Snapshot()
			if !snap.IsActive {
				continue
			}

			yellow.Printf("Intervention: %s (%s)\n",
				snap.Intervention.Context.TriggerReason, snap.Intervention.Type)

			recommended := ""
			for _, opt := range snap.Intervention.Options {
				marker := " "
				if opt.Recommended {
					marker = "*"
					recommended = opt.ID
				}
				fmt.Printf("  [%s] %s: %s\n", marker, opt.ID, opt.Label)
			}

			if recommended == "" {
				yellow.Println("No recommended option; aborting analysis")
				_ = coordinator.Abort(ctx)
				continue
			}
			if err := coordinator.SelectOption(recommended); err != nil {
				continue
			}
			if err := coordinator.Confirm(ctx); err != nil {
				yellow.Printf("Resolution failed: %v\n", err)
			}
		}
	}
}

func printTranscript(sess *session.AnalysisSession) {
	if sess == nil {
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, msg := range sess.Messages {
		switch msg.Role {
		case session.RoleUser:
			fmt.Printf("> %s\n", msg.Content)
		case session.RoleSystem:
			red.Printf("! %s\n", msg.Content)
		default:
			green.Println(msg.Content)
		}
	}
	if sess.Summary != "" {
		fmt.Printf("\nSummary: %s\n", sess.Summary)
	}
}

func runSessions(ctx context.Context, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	trace, _, err := traceFlags(args)
	if err != nil {
		return err
	}

	mgr, kv, err := openManager(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	fingerprint := session.Fingerprint(trace.StartNs, trace.EndNs, trace.Title)
	sessions, err := mgr.ListSessions(ctx, fingerprint)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions for this trace")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("%-36s  %-20s  %8s  %s\n", "SESSION", "LAST ACTIVE", "MESSAGES", "SUMMARY")
	for _, sess := range sessions {
		summary := sess.Summary
		if len(summary) > 40 {
			summary = summary[:40] + "…"
		}
		fmt.Printf("%-36s  %-20s  %8d  %s\n",
			sess.SessionID,
			sess.LastActiveAt.Format("2006-01-02 15:04:05"),
			len(sess.Messages),
			summary)
	}
	return nil
}

func runSweep(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, kv, err := openManager(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	deleted, err := mgr.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d expired sessions\n", deleted)
	return nil
}
