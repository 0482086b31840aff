package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/prompts"
)

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage saved prompts",
		Long: `Saved prompts are reusable instructions, such as a morning triage routine.
They are stored in a YAML file (prompts.file) and can be run with
'inboxagent run --prompt <name>', '/run <name>' in chat, or the HTTP API.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := promptStore().List()
			if err != nil {
				return err
			}
			printPrompts(cmd.OutOrStdout(), list)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name> <prompt...>",
		Short: "Save a prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := promptStore().Save(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %q (%s)\n", p.Name, p.ID)
			return nil
		},
	})

	var name, content string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a saved prompt or change its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := promptStore()
			p, err := store.Find(args[0])
			if err != nil {
				return err
			}
			p, err = store.Update(p.ID, name, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %q (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	update.Flags().StringVar(&name, "name", "", "New name")
	update.Flags().StringVar(&content, "content", "", "New prompt text")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a saved prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := promptStore()
			p, err := store.Find(args[0])
			if err != nil {
				return err
			}
			if err := store.Delete(p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", p.Name)
			return nil
		},
	})

	return cmd
}

func promptStore() *prompts.Store {
	return prompts.NewStore(cfg.Prompts.File)
}
