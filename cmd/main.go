package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ngld/star/pkg/archive"
	"github.com/ngld/star/pkg/config"
)

// Version is replaced during release builds through -ldflags
var Version = "dev"

type (
	settingsKey struct{}
	logFileKey  struct{}
)

// NewRootCmd assembles the star command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "star",
		Short: "archive tool",
		Long: `star creates and extracts tar archives wrapped in a compression stream
(xz, gzip, zstd, brotli, bzip2, lz4 or plain tar).

  star c foo.xz Cargo.toml to foo/
  star c foo.xz from ./**/*.dll to lib/ from ./**/*.exe to bin/
  star c foo.xz Cargo.toml to foo/Bar.toml
  star x foo.xz
  star x foo.xz bar/`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLogFile(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("format", "f", "", "archive file format")
	flags.BoolP("compression-only", "c", false, "compression/decompression only.no tar archive.")
	flags.Int("level", 0, "compression level (0 uses the configured level)")
	flags.String("config", "", "config file (defaults to ./star.toml)")
	flags.String("log-level", "", "minimum log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "write log messages as JSON lines")
	flags.String("log-file", "", "append log messages to this file instead of stderr")
	flags.BoolP("quiet", "q", false, "hide progress bars")

	rootCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return archive.FormatNames(), cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newNameCmd())

	return rootCmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func setup(cmd *cobra.Command, args []string) error {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	if level != "" {
		err = cfg.SetLogLevel(level)
		if err != nil {
			return err
		}
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	if logJSON {
		cfg.Log.JSON = true
	}

	logFile, err := cmd.Flags().GetString("log-file")
	if err != nil {
		return err
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var out io.Writer = cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		hdl, err := os.OpenFile(cfg.Log.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return eris.Wrapf(err, "Failed to open log file %s", cfg.Log.File)
		}
		ctx = context.WithValue(ctx, logFileKey{}, hdl)
		out = hdl
	}

	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		color := isTerminal(out) && os.Getenv("NO_COLOR") == ""
		logger = zerolog.New(NewConsoleWriter(out, color))
	}
	logger = logger.Level(cfg.LogLevel())

	ctx = archive.WithLogger(ctx, &logger)
	ctx = context.WithValue(ctx, settingsKey{}, cfg)
	cmd.SetContext(ctx)

	return nil
}

func closeLogFile(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}

	hdl, ok := ctx.Value(logFileKey{}).(*os.File)
	if !ok {
		return nil
	}

	err := hdl.Close()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return eris.Wrapf(err, "Failed to close log file %s", hdl.Name())
	}
	return nil
}

func settings(cmd *cobra.Command) *config.Config {
	cfg, ok := cmd.Context().Value(settingsKey{}).(*config.Config)
	if !ok {
		panic("Settings are missing in context!")
	}
	return cfg
}

// resolveFormat picks the format from the --format flag or the archive's extension. If neither works, the
// command's help is printed.
func resolveFormat(cmd *cobra.Command, archivePath string) (archive.Format, error) {
	explicit, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", err
	}

	format, err := archive.DetectFormat(explicit, archivePath)
	if err != nil {
		var unknown archive.UnknownFormat
		if errors.As(err, &unknown) {
			cmd.Println("unknown format")
			cmd.Help()
		}
		return "", err
	}
	return format, nil
}

// reportError sends a failed command's error through the configured logger. Errors that happen before the
// logger exists (flag parsing, config loading) are printed directly.
func reportError(cmd *cobra.Command, err error) {
	if cmd != nil && cmd.Context() != nil {
		if _, ok := cmd.Context().Value(settingsKey{}).(*config.Config); ok {
			archive.Log(cmd.Context()).Error().Err(err).Msgf("%s failed", cmd.CommandPath())
			closeLogFile(cmd)
			return
		}
	}

	if cmd == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	cmd.PrintErrln("Error:", err)
}

func Execute() {
	executed, err := NewRootCmd().ExecuteContextC(context.Background())
	if err != nil {
		reportError(executed, err)
		os.Exit(1)
	}
}
