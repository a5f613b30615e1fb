package cmd

import (
	"context"
	"jobsched/internal/api"
	"jobsched/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start the submission API",
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			cfg := config.MustLoad()
			log.Info().Msgf("API server using redis %s, prefix %s", cfg.Redis.Addr, cfg.Redis.KeyPrefix)
			server, err := api.NewServer(context.Background(), cfg)
			if err != nil {
				return err
			}
			server.Run(port)
			return nil
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
