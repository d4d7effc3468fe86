package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/worq1337/bot228-repo/internal/registry"
	"github.com/worq1337/bot228-repo/internal/telegram"
)

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"mirrors"},
		Short:   "Inspect and remove registered mirror bots",
	}
	cmd.AddCommand(newCredentialsListCmd(opts), newCredentialsDeleteCmd(opts))
	return cmd
}

func newCredentialsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered mirror bots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			reg, closeDB, err := openRegistry(cfg, log)
			if err != nil {
				return fail(log, "Failed to open registry", err)
			}
			defer closeDB()

			creds, err := reg.List(cmd.Context())
			if err != nil {
				return fail(log, "Failed to list mirrors", err)
			}
			if len(creds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mirror bots registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tUSERNAME\tTOKEN\tWEBHOOK")
			for i, c := range creds {
				fmt.Fprintf(w, "%d\t@%s\t%s\t%s\n", i+1, c.BotUsername, registry.MaskToken(c.Token), c.WebhookURL)
			}
			return w.Flush()
		},
	}
}

func newCredentialsDeleteCmd(opts *rootOptions) *cobra.Command {
	var keepWebhook bool
	cmd := &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete the mirror bot at a 1-based index of the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}

			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			reg, closeDB, err := openRegistry(cfg, log)
			if err != nil {
				return fail(log, "Failed to open registry", err)
			}
			defer closeDB()

			cred, err := reg.DeleteByIndex(cmd.Context(), index)
			if err != nil {
				return fail(log, "Failed to delete mirror", err, "index", index)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted @%s (%s)\n", cred.BotUsername, registry.MaskToken(cred.Token))

			if keepWebhook {
				return nil
			}
			factory := telegram.NewFactory(cfg.Telegram.RequestTimeout, log)
			webhooks := telegram.NewWebhookManager(factory, cfg.WebhookSecret, cfg.Telegram.DropPendingUpdates, log)
			if err := webhooks.ClearDeliveryTarget(cmd.Context(), cred.Token); err != nil {
				log.Warn("Failed to clear webhook of deleted mirror", "bot_username", cred.BotUsername, "error", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepWebhook, "keep-webhook", false, "do not clear the deleted bot's webhook")
	return cmd
}
