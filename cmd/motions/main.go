// Package main provides the motions command line for recording votes and
// moving motions through their lifecycle.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"council-motions/internal/config"
	"council-motions/internal/logger"
	"council-motions/internal/models"
	"council-motions/internal/motion"
)

const programName = "motions"

var (
	globalFlags = struct {
		debug      bool
		actorID    uint
		actorName  string
		privileged bool
	}{}
	configFile string
	loadedCfg  config.Config
)

func slogPrintf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", programName)
}

// newLogger writes to logFile when set so a full-screen board stays readable.
func newLogger(cfg config.Config, logFile string) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	log := logger.New(cfg.Debug, w)
	slog.SetDefault(log)
	return log, closeFn, nil
}

func actor() models.Actor {
	return models.Actor{ID: globalFlags.actorID, Name: globalFlags.actorName, Privileged: globalFlags.privileged}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Record council votes and move motions through their lifecycle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().
		UintVar(&globalFlags.actorID, "actor-id", 0, "id of the acting user")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.actorName, "actor", "clerk", "name of the acting user")
	rootCmd.PersistentFlags().
		BoolVar(&globalFlags.privileged, "privileged", false, "act with deletion rights")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if globalFlags.debug {
			cfg.Debug = true
		}
		loadedCfg = cfg
		// Toss the undo func; the process exits with the command
		if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
			return fmt.Errorf("set GOMAXPROCS: %w", err)
		}
		return nil
	}

	rootCmd.AddCommand(
		migrateCommand(),
		seedCommand(),
		motionCommand(),
		transitionCommand(),
		voteCommand(),
		roundCommand(),
		historyCommand(),
		boardCommand(),
	)
	return rootCmd
}

func main() {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}

	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(exitCode(err))
	}
}

// describeError renders engine failures the way an operator should read them.
func describeError(err error) string {
	var fe *motion.FieldError
	switch motion.KindOf(err) {
	case motion.KindConflict:
		return err.Error() + " (please retry)"
	case motion.KindValidation:
		if errors.As(err, &fe) {
			return "invalid " + fe.Error()
		}
	}
	return err.Error()
}

func exitCode(err error) int {
	switch motion.KindOf(err) {
	case motion.KindValidation:
		return 2
	case motion.KindResolution:
		return 3
	case motion.KindNotFound:
		return 4
	case motion.KindConflict:
		return 5
	case motion.KindForbidden:
		return 6
	default:
		return 1
	}
}
