package main

import (
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process queued jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		w := queue.NewWorker(backend.Queue, zapLogger,
			queue.Backoff{Base: cfg.Jobs.BaseDelay, Max: cfg.Jobs.MaxBackoffDelay},
			cfg.Jobs.MaxRetries, cfg.Jobs.PollInterval)
		w.Register(service.JobReencryptAnswers, backend.Services.Reencrypt.Handle)
		return w.Run(ctx)
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show the queue depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		ready, delayed, err := backend.Queue.Len(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("ready: %d\ndelayed: %d\n", ready, delayed)
		return nil
	},
}
