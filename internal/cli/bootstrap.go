package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discloud/discloud/internal/backend/discord"
	"github.com/discloud/discloud/internal/config"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// defaultBackendName is the backend bootstrap creates.
const defaultBackendName = "discord_default"

// newBootstrapCmd creates the 'bootstrap' command.
func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the default Discord backend from environment variables",
		Long: `Create the '` + defaultBackendName + `' backend from the environment:

  BOT_TOKEN   Discord bot token
  SERVER_ID   Discord server (guild) snowflake id
  CHANNEL_ID  Discord channel snowflake id

The command is idempotent: if the backend already exists it reports so
and exits successfully. Missing environment variables are a hard error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadBootstrapEnv()
			if err != nil {
				return err
			}

			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			if existing, err := cat.GetBackendByName(defaultBackendName); err == nil {
				fmt.Printf("Backend %s already exists (platform %s, id %s)\n",
					existing.Name, existing.Platform, existing.ID)
				return nil
			} else if !errors.Is(err, errs.ErrNotFound) {
				return err
			}

			backendConfig := models.JSONMap{
				"bot_token":  env.BotToken,
				"server_id":  env.ServerID,
				"channel_id": env.ChannelID,
			}
			if err := validateBackendConfig(discord.PlatformBotChannel, backendConfig); err != nil {
				return err
			}

			cfg, err := cat.CreateBackend(defaultBackendName, discord.PlatformBotChannel, backendConfig)
			if err != nil {
				return err
			}
			fmt.Printf("Created backend %s (platform %s, id %s)\n", cfg.Name, cfg.Platform, cfg.ID)
			return nil
		},
	}
}
