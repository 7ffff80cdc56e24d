// Command worker runs the background jobs of the mindlogger backend and a
// few maintenance tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/app"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg       *config.Config
	zapLogger *zap.Logger
	backend   *app.App
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "worker",
	Short:         "Background jobs and maintenance for the mindlogger backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found, using environment variables")
		}
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if zapLogger, err = app.InitLogger(cfg.Log); err != nil {
			return err
		}
		backend, err = app.New(cmd.Context(), cfg, zapLogger)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if backend != nil {
			backend.Close()
		}
		if zapLogger != nil {
			_ = zapLogger.Sync()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(exportCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
