package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/discloud/discloud/internal/backend"
	"github.com/discloud/discloud/internal/backend/discord"
	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// newBackendsCmd creates the 'backends' command group.
func newBackendsCmd() *cobra.Command {
	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "Backend operations (list, add, validate, delete)",
		Long:  `Commands for managing named backend configurations.`,
	}

	backendsCmd.AddCommand(newBackendsListCmd())
	backendsCmd.AddCommand(newBackendsAddCmd())
	backendsCmd.AddCommand(newBackendsValidateCmd())
	backendsCmd.AddCommand(newBackendsDeleteCmd())

	return backendsCmd
}

// newBackendsListCmd creates the 'backends list' command.
func newBackendsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			backends, err := cat.ListBackends()
			if err != nil {
				return err
			}
			if len(backends) == 0 {
				fmt.Println("No backends configured. Run 'discloud bootstrap' or 'discloud backends add'.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPLATFORM\tID")
			for _, b := range backends {
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, b.Platform, b.ID)
			}
			return w.Flush()
		},
	}
}

// newBackendsAddCmd creates the 'backends add' command.
func newBackendsAddCmd() *cobra.Command {
	var platform string
	var botToken, serverID, channelID, webhookURL string
	var maxChunkSize int64
	var skipValidation bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a named backend configuration",
		Long: `Add a backend configuration to the catalog.

Supported platforms:
  Discord          bot-posted chunks in a channel thread
                   (requires --bot-token, --server-id, --channel-id)
  Discord_Webhook  webhook-posted chunks, no bot account
                   (requires --webhook-url)

The configuration is validated before it is stored unless
--skip-validation is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			config := models.JSONMap{}
			switch platform {
			case discord.PlatformBotChannel:
				config["bot_token"] = botToken
				config["server_id"] = serverID
				config["channel_id"] = channelID
			case discord.PlatformWebhook:
				config["webhook_url"] = webhookURL
			default:
				return fmt.Errorf("%w: %q (supported: %v)", errs.ErrUnsupportedPlatform, platform, backend.Platforms())
			}
			if maxChunkSize > 0 {
				config["max_chunk_size"] = maxChunkSize
			}

			if !skipValidation {
				if err := validateBackendConfig(platform, config); err != nil {
					return err
				}
			}

			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			cfg, err := cat.CreateBackend(name, platform, config)
			if err != nil {
				return err
			}
			fmt.Printf("Added backend %s (platform %s, id %s)\n", cfg.Name, cfg.Platform, cfg.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", discord.PlatformBotChannel, "Backend platform")
	cmd.Flags().StringVar(&botToken, "bot-token", "", "Discord bot token")
	cmd.Flags().StringVar(&serverID, "server-id", "", "Discord server (guild) snowflake id")
	cmd.Flags().StringVar(&channelID, "channel-id", "", "Discord channel snowflake id")
	cmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Discord webhook URL")
	cmd.Flags().Int64Var(&maxChunkSize, "max-chunk-size", 0, "Largest plaintext chunk the backend accepts")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Store the config without validating it")

	return cmd
}

// newBackendsValidateCmd creates the 'backends validate' command.
func newBackendsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name>",
		Short: "Validate a stored backend configuration",
		Long: `Run the full validation stack against a stored backend:
schema, field formats, business rules, and a live API probe.
Use --skip-live-check to stop before the probe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			cfg, err := cat.GetBackendByName(args[0])
			if err != nil {
				return err
			}
			return validateBackendConfig(cfg.Platform, cfg.Config)
		},
	}
}

// newBackendsDeleteCmd creates the 'backends delete' command.
func newBackendsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a backend configuration",
		Long:  `Delete a backend. Refused while any stored file still references it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			if err := cat.DeleteBackend(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted backend %s\n", args[0])
			return nil
		},
	}
}

// validateBackendConfig runs the platform's validator and prints its report.
func validateBackendConfig(platform string, config models.JSONMap) error {
	opts := backend.Options{Logger: logger}

	var ok bool
	var report string
	switch platform {
	case discord.PlatformBotChannel:
		v := discord.NewBotChannelValidator(config, opts)
		ok = v.Validate(false, skipLiveCheck)
		report = v.Report()
	case discord.PlatformWebhook:
		v := discord.NewWebhookValidator(config, opts)
		ok = v.Validate(false, skipLiveCheck)
		report = v.Report()
	default:
		return fmt.Errorf("%w: %q", errs.ErrUnsupportedPlatform, platform)
	}

	fmt.Println(report)
	if !ok {
		return fmt.Errorf("%w: backend configuration is not usable", errs.ErrConfigInvalid)
	}
	return nil
}
