package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"mentor-chat/internal/config"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the database schema and indexes, then exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log.SetLevel(cfg.Level())

			b, err := openBackend(ctx, cfg, true)
			if err != nil {
				return err
			}
			b.Close(ctx)
			log.Info("Migrations completed")
			return nil
		},
	}
}
