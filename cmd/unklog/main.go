// Command unklog ingests JSON log messages from streaming inputs and fans
// them out to the configured outputs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/daemon"
	"github.com/spootnik/unklog/internal/logging"
)

// daemonEnv marks the re-executed child so it does not detach again.
const daemonEnv = "UNKLOG_DAEMONIZED"

var (
	flagForeground bool
	flagValidate   bool
	flagConfig     string
	flagLogfile    string
	flagLevel      string
)

var rootCmd = &cobra.Command{
	Use:           "unklog",
	Short:         "fan JSON log streams out to indexing and process sinks",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagForeground, "foreground", "f", false, "stay in the foreground, do not detach")
	rootCmd.Flags().BoolVarP(&flagValidate, "validate", "n", false, "validate the configuration and exit")
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", config.DefaultPath, "configuration file")
	rootCmd.Flags().StringVarP(&flagLogfile, "logfile", "l", "", "log file, or stdout/stderr")
	rootCmd.Flags().StringVarP(&flagLevel, "level", "d", "", "log level: trace|debug|info|warn|error")
}

func run(cmd *cobra.Command, _ []string) error {
	// The CLI wins over the config file's log directive.
	cliLog := cmd.Flags().Changed("level") || cmd.Flags().Changed("logfile")

	logger, err := logging.New(flagLevel, flagLogfile)
	if err != nil {
		return err
	}

	logger.Info("parsing configuration", logging.String("config", flagConfig))
	cfg, err := config.Parse(flagConfig)
	if err != nil {
		logger.Error("configuration error", logging.Err(err))
		return err
	}

	if cfg.Log.Present && !cliLog {
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Path)
		if err != nil {
			return err
		}
	}

	if flagValidate {
		fmt.Println("configuration is valid")
		return nil
	}

	if !flagForeground && os.Getenv(daemonEnv) == "" {
		return detach()
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("initialization failed", logging.Err(err))
		return err
	}

	logger.Info("starting workload")
	if err := d.Run(context.Background()); err != nil {
		logger.Error("daemon failed", logging.Err(err))
		return err
	}
	logger.Info("daemon has finished, exiting")
	return nil
}

// detach re-executes the binary in a new session and lets the parent exit.
// Go cannot fork after runtime start, so detaching is a re-exec with an
// environment marker.
func detach() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	child := exec.Command(exe, os.Args[1:]...)
	child.Env = append(os.Environ(), daemonEnv+"=1")
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	return child.Start()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
