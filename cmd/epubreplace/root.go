package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simp-lee/epubreplace"
	"github.com/simp-lee/epubreplace/internal/config"
	"github.com/simp-lee/epubreplace/internal/storage"
)

type rootOptions struct {
	out        string
	planFile   string
	mode       string
	nfc        bool
	configPath string
	reportPath string
	level      int
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "epubreplace SOURCE [SEARCH [REPLACE]]",
		Short: "Whole-word find and replace inside an ePub",
		Long: `epubreplace rewrites the text of every content document in an ePub,
replacing whole-word occurrences of each SEARCH token with the matching
REPLACE token. Markup, attributes and comments are left alone.

SEARCH and REPLACE are comma-separated lists of equal length, or a single
SEARCH token with several replacements. Without REPLACE every SEARCH token
is deleted.`,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args, opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "epubreplace:", strings.TrimPrefix(err.Error(), "epubreplace: "))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "output path (default out.<name> beside SOURCE)")
	f.StringVar(&opts.planFile, "plan", "", "YAML plan file with search/replace lists")
	f.StringVar(&opts.mode, "mode", "", "matching mode: sequential or simultaneous")
	f.BoolVar(&opts.nfc, "nfc", false, "normalize search and replace tokens to Unicode NFC")
	f.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	f.StringVar(&opts.reportPath, "report", "", "write a JSON report to this file (- for stdout)")
	f.IntVar(&opts.level, "level", 0, "deflate level for repacked entries (-2..9, 0 for default)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts *rootOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := newLogger(cfg.Log, cmd.ErrOrStderr())

	// The plan is validated before any archive is touched, so a bad plan
	// never produces output.
	plan, err := buildPlan(args, opts, cfg.Rewrite)
	if err != nil {
		return err
	}

	src, err := storage.ParseLocation(args[0])
	if err != nil {
		return err
	}
	out := opts.out
	if out == "" {
		out = epubreplace.DefaultOutputPath(args[0])
	}
	dst, err := storage.ParseLocation(out)
	if err != nil {
		return err
	}

	rw, err := epubreplace.NewRewriter(plan, epubreplace.Options{
		CompressionLevel: cfg.Rewrite.CompressionLevel,
		MaxEntrySize:     cfg.Rewrite.MaxEntryBytes,
		TempDir:          cfg.Rewrite.TempDir,
		Logger:           log,
	})
	if err != nil {
		return err
	}

	log.Info("rewriting package", "source", src, "destination", dst,
		"pairs", plan.Len(), "mode", plan.Mode())

	report, err := rewrite(ctx, rw, src, dst, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d replacement(s) in %d document(s) written to %s\n",
		report.Replacements, len(report.Documents), dst)

	if opts.reportPath != "" {
		if err := writeReport(report, opts.reportPath, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return nil
}

// applyFlags lets explicitly set flags override file and environment
// settings.
func applyFlags(cmd *cobra.Command, opts *rootOptions, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Rewrite.Mode = opts.mode
	}
	if f.Changed("nfc") {
		cfg.Rewrite.NormalizeNFC = opts.nfc
	}
	if f.Changed("level") {
		cfg.Rewrite.CompressionLevel = opts.level
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
}

func buildPlan(args []string, opts *rootOptions, rc config.RewriteConfig) (*epubreplace.Plan, error) {
	mode, err := epubreplace.ParseMode(rc.Mode)
	if err != nil {
		return nil, err
	}
	planOpts := epubreplace.PlanOptions{Mode: mode, NormalizeNFC: rc.NormalizeNFC}

	if opts.planFile != "" {
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: --plan cannot be combined with SEARCH/REPLACE arguments", epubreplace.ErrConfiguration)
		}
		plan, err := epubreplace.LoadPlanFile(opts.planFile)
		if err != nil {
			return nil, err
		}
		// The setting can turn normalization on for a plan file, never off.
		if rc.NormalizeNFC {
			plan = plan.WithNFC()
		}
		if opts.mode != "" {
			return plan.WithMode(mode)
		}
		return plan, nil
	}

	switch len(args) {
	case 2:
		return epubreplace.DeletionPlan(args[1], planOpts)
	case 3:
		return epubreplace.ParsePlan(args[1], args[2], planOpts)
	default:
		return nil, fmt.Errorf("%w: SEARCH or --plan is required", epubreplace.ErrEmptyPlan)
	}
}

// rewrite runs rw from src to dst. Remote locations are staged through
// local temporary files.
func rewrite(ctx context.Context, rw *epubreplace.Rewriter, src, dst storage.Location, cfg *config.Config) (*epubreplace.Report, error) {
	if !src.IsRemote() && !dst.IsRemote() {
		return rw.RewriteFile(ctx, src.Key, dst.Key)
	}

	s3opts := storage.S3Options{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	}

	stage, err := os.MkdirTemp(cfg.Rewrite.TempDir, "epubreplace-stage-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)

	srcPath := src.Key
	if src.IsRemote() {
		srcPath = filepath.Join(stage, "source.epub")
		if err := download(ctx, src, s3opts, srcPath); err != nil {
			return nil, err
		}
	}
	dstPath := dst.Key
	if dst.IsRemote() {
		dstPath = filepath.Join(stage, "output.epub")
	}

	report, err := rw.RewriteFile(ctx, srcPath, dstPath)
	if err != nil {
		return nil, err
	}

	if dst.IsRemote() {
		if err := upload(ctx, dstPath, dst, s3opts); err != nil {
			return nil, err
		}
	}
	report.Source = src.String()
	report.Destination = dst.String()
	return report, nil
}

func download(ctx context.Context, src storage.Location, s3opts storage.S3Options, path string) error {
	a, key, err := storage.NewAdapter(ctx, src, s3opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fetch(ctx, a, key, path)
}

// fetch copies the object at key to the local file path. A missing object
// is reported before any local file is created.
func fetch(ctx context.Context, a storage.Adapter, key, path string) error {
	ok, err := a.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", epubreplace.ErrArchiveNotFound, key)
	}

	body, err := a.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", epubreplace.ErrArchiveNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("download %s: %w", key, err)
	}
	return f.Close()
}

func upload(ctx context.Context, path string, dst storage.Location, s3opts storage.S3Options) error {
	a, key, err := storage.NewAdapter(ctx, dst, s3opts)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := a.Put(ctx, key, f); err != nil {
		return fmt.Errorf("upload %s: %w", dst, err)
	}
	return nil
}

func writeReport(report *epubreplace.Report, path string, stdout io.Writer) error {
	if path == "-" {
		return report.WriteJSON(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(lc.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
