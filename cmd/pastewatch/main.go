// pastewatch - copy-paste and AI-signature scoring for recorded exam
// sessions
//
//	pastewatch analyze <trace.ndjson>   Replay a session trace and report
//	pastewatch follow <trace.ndjson>    Tail a growing trace, re-reporting
//	pastewatch status                   Show effective configuration
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/BurntSushi/toml"

	"pastewatch/internal/config"
	"pastewatch/internal/logging"
	"pastewatch/internal/store"
	"pastewatch/internal/trace"
	"pastewatch/internal/watchdog"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "analyze":
		cmdAnalyze(args)
	case "follow":
		cmdFollow(args)
	case "status":
		cmdStatus(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`pastewatch - copy-paste and AI-signature scoring for exam form fields

USAGE:
    pastewatch <command> [options]

COMMANDS:
    analyze <trace>     Replay a recorded session trace and print per-field
                        factors and confidence
    follow <trace>      Tail a growing trace file, re-reporting after each
                        scored paste
    status              Show the effective configuration
    help                Show this help message

OPTIONS:
    -config <path>      Configuration file (.toml, .yaml or .yml)`)
}

// loadConfig loads the named config file, or defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(path).Load()
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		Format:    logging.ParseFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "pastewatch",
	})
}

// openStore opens the state store when persistence is configured. Both
// returns are nil when it is not.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.Path == "" {
		return nil, nil
	}
	return store.Open(cfg.Storage.Path, cfg.Storage.BusyTimeoutMs)
}

func cmdAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatal("analyze requires exactly one trace file")
	}
	tracePath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fatal("init logging: %v", err)
	}
	defer logger.Close()

	f, err := os.Open(tracePath)
	if err != nil {
		fatal("open trace: %v", err)
	}
	records, err := trace.ReadAll(f)
	f.Close()
	if err != nil {
		fatal("read trace: %v", err)
	}

	ctx := context.Background()
	replayer, st := newReplayer(cfg, logger)
	if st != nil {
		defer st.Close()
	}

	if err := replayer.ReplayAll(ctx, records); err != nil {
		fatal("replay: %v", err)
	}

	printReport(replayer)
	saveStates(ctx, replayer, st, logger)
}

func cmdFollow(args []string) {
	fs := flag.NewFlagSet("follow", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatal("follow requires exactly one trace file")
	}
	tracePath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fatal("init logging: %v", err)
	}
	defer logger.Close()

	follower, err := trace.Follow(tracePath)
	if err != nil {
		fatal("follow trace: %v", err)
	}
	defer follower.Close()

	ctx := context.Background()
	replayer, st := newReplayer(cfg, logger)
	if st != nil {
		defer st.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case rec, ok := <-follower.Records():
			if !ok {
				printReport(replayer)
				return
			}
			if err := replayer.Apply(ctx, rec); err != nil {
				logger.Warn("record skipped", "type", rec.Type, "error", err)
				continue
			}
			if rec.Type == "paste" || rec.Type == "input" {
				printReport(replayer)
			}
		case err := <-follower.Errors():
			logger.Warn("trace error", "error", err)
		case <-sigCh:
			printReport(replayer)
			saveStates(ctx, replayer, st, logger)
			return
		}
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	fmt.Println("# effective pastewatch configuration")
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		fatal("encode config: %v", err)
	}
}

func newReplayer(cfg *config.Config, logger *logging.Logger) (*trace.Replayer, *store.Store) {
	st, err := openStore(cfg)
	if err != nil {
		fatal("open store: %v", err)
	}

	var loaders trace.LoaderFactory
	if st != nil {
		loaders = st.Loader
	}

	session := watchdog.NewSession(logger.Logger)
	return trace.NewReplayer(session, &cfg.Engine, &cfg.Factors, loaders, logger.Logger), st
}

func printReport(r *trace.Replayer) {
	fields := r.Fields()
	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		handle := fields[id]
		analysis := handle.LastAnalysis()
		state := handle.State()

		fmt.Printf("field %s (%d contributions)\n", id, len(state.Contributions))
		for _, reason := range watchdog.Reasons {
			fmt.Printf("  %-42s raw=%.4f weighted=%.4f\n",
				reason, analysis.Raw[reason], analysis.Weighted[reason])
		}
		fmt.Printf("  confidence %.4f\n\n", analysis.Confidence)
	}
}

func saveStates(ctx context.Context, r *trace.Replayer, st *store.Store, logger *logging.Logger) {
	if st == nil {
		return
	}
	user := r.Session().UserID()
	for id, handle := range r.Fields() {
		if err := st.SaveState(ctx, user, id, handle.State()); err != nil {
			logger.Warn("save state failed", "field_id", id, "error", err)
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
