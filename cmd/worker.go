package cmd

import (
	"jobsched/internal/worker"
	"time"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var (
		appName      string
		pollInterval time.Duration
		baseBackoff  time.Duration
		maxBackoff   time.Duration
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Run every registered job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.Run(worker.Config{
				AppName:      appName,
				PollInterval: pollInterval,
				BaseBackoff:  baseBackoff,
				MaxBackoff:   maxBackoff,
			})
		},
	}

	command.Flags().StringVar(&appName, "app", "", "Application name used for event mailboxes (overrides Scheduler_AppName)")
	command.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Event mailbox poll interval (overrides Scheduler_PollInterval)")
	command.Flags().DurationVar(&baseBackoff, "base-backoff", 500*time.Millisecond, "Base backoff duration")
	command.Flags().DurationVar(&maxBackoff, "max-backoff", 30*time.Second, "Max backoff duration")

	return command
}
