package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bromq-dev/fixhdr/internal/config"
	"github.com/bromq-dev/fixhdr/pkg/hooks"
	"github.com/bromq-dev/fixhdr/pkg/inspect"
	"github.com/bromq-dev/fixhdr/pkg/rpc"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Custom flag type for accumulating hex frames
type hexFrames [][]byte

func (h *hexFrames) String() string {
	parts := make([]string, 0, len(*h))
	for _, f := range *h {
		parts = append(parts, hex.EncodeToString(f))
	}
	return strings.Join(parts, ",")
}

func (h *hexFrames) Set(s string) error {
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return fmt.Errorf("invalid hex frame %q: %w", s, err)
	}
	*h = append(*h, b)
	return nil
}

type options struct {
	configPath string
	frames     hexFrames
	file       string
	replay     string
	grpcAddr   string
	redisAddr  string
	journal    string
	backend    string
	natsURL    string
	logLevel   string
	stats      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// After the first signal, restore default handling so a second one kills
	// the process even if a read on stdin cannot be interrupted.
	context.AfterFunc(ctx, stop)
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fhinspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (optional)")
	fs.Var(&opts.frames, "hex", "Frame to decode, hex encoded (can be repeated)")
	fs.StringVar(&opts.file, "file", "", "Capture of concatenated packets to decode (- for stdin)")
	fs.StringVar(&opts.replay, "replay", "", "Print the records of a journal file and exit")
	fs.StringVar(&opts.grpcAddr, "grpc-addr", "", "Serve the decoder over gRPC on this address")
	fs.StringVar(&opts.redisAddr, "redis", "", "Stream records to this Redis address")
	fs.StringVar(&opts.journal, "journal", "", "Append records to this journal file")
	fs.StringVar(&opts.backend, "journal-backend", "", "Journal store: bolt (file) or badger (directory)")
	fs.StringVar(&opts.natsURL, "nats", "", "Publish records to this NATS server")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&opts.stats, "stats", false, "Log header stats periodically")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}
	if len(opts.frames) == 0 && opts.file == "" && opts.replay == "" && opts.grpcAddr == "" {
		fmt.Fprintln(stderr, "nothing to do: pass -hex, -file, -replay or -grpc-addr")
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(&opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	log := newLogger(cfg, stderr)

	if opts.replay != "" {
		if err := replay(opts.replay, stdout); err != nil {
			log.Error("replay failed", "error", err)
			return exitError
		}
		return exitOK
	}

	in := inspect.New(&inspect.Options{
		Logger:             log,
		MaxRemainingLength: cfg.Limits.MaxRemainingLength,
		RejectEmpty:        cfg.RejectEmpty(),
	})
	defer func() {
		if err := in.Stop(); err != nil {
			log.Error("hook shutdown error", "error", err)
		}
	}()

	if err := addHooks(in, cfg, stdout); err != nil {
		log.Error("failed to add hook", "error", err)
		return exitError
	}

	code := exitOK
	for _, f := range opts.frames {
		if _, err := in.Inspect(ctx, f); err != nil {
			code = exitError
		}
	}

	if opts.file != "" {
		if err := inspectFile(ctx, in, opts.file, stdin); err != nil {
			log.Error("capture rejected", "file", opts.file, "error", err)
			code = exitError
		}
	}

	if cfg.GRPC.Address != "" {
		if err := serve(ctx, in, cfg, log); err != nil {
			log.Error("grpc server failed", "error", err)
			return exitError
		}
	}

	return code
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.grpcAddr != "" {
		cfg.GRPC.Address = opts.grpcAddr
	}
	if opts.redisAddr != "" {
		cfg.Redis.Addr = opts.redisAddr
	}
	if opts.journal != "" {
		cfg.Journal.Path = opts.journal
	}
	if opts.backend != "" {
		cfg.Journal.Backend = opts.backend
	}
	if opts.natsURL != "" {
		cfg.NATS.URL = opts.natsURL
	}
	if opts.stats {
		cfg.Stats.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func addHooks(in *inspect.Inspector, cfg *config.Config, stdout io.Writer) error {
	if err := in.AddHook(&printHook{w: stdout}, nil); err != nil {
		return err
	}
	if err := in.AddHook(hooks.NewLoggerHook(hooks.LoggerConfig{}), nil); err != nil {
		return err
	}
	if cfg.Stats.Enabled {
		h := hooks.NewStatsHook(hooks.StatsConfig{Interval: cfg.Stats.Interval})
		if err := in.AddHook(h, nil); err != nil {
			return err
		}
	}
	if cfg.Redis.Addr != "" {
		err := in.AddHook(new(hooks.RedisHook), &hooks.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			MaxLen:    cfg.Redis.MaxLen,
		})
		if err != nil {
			return err
		}
	}
	if cfg.NATS.URL != "" {
		err := in.AddHook(new(hooks.NatsHook), &hooks.NatsConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
		})
		if err != nil {
			return err
		}
	}
	if cfg.Journal.Path != "" {
		err := in.AddHook(new(hooks.JournalHook), &hooks.JournalConfig{
			Path:       cfg.Journal.Path,
			Backend:    cfg.Journal.Backend,
			Term:       cfg.Journal.Term,
			MaxEntries: cfg.Journal.MaxEntries,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func inspectFile(ctx context.Context, in *inspect.Inspector, path string, stdin io.Reader) error {
	if path == "-" {
		return in.Run(ctx, stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return in.Run(ctx, f)
}

// serve runs the gRPC server until ctx is canceled.
func serve(ctx context.Context, in *inspect.Inspector, cfg *config.Config, log *slog.Logger) error {
	srv := rpc.NewServer(&rpc.Config{
		ListenAddr:   cfg.GRPC.Address,
		MaxFrameSize: cfg.GRPC.MaxFrameSize,
		Inspector:    in,
		Logger:       log,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	return srv.Stop()
}
