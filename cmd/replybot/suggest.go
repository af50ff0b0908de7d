package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgard/replybot/internal/bot/handlers"
	"github.com/edgard/replybot/internal/smartreply"
)

func newSuggestCmd() *cobra.Command {
	var (
		count int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "suggest [flags] <message text>",
		Short: "Print the quick replies for a customer message",
		Long: `Classify a message and print the quick replies the operator would see.

Statement replies are shuffled; pass --seed for repeatable output.`,
		Example: `  replybot suggest "Where is the office?"
  replybot suggest --count 5 --seed 7 thanks for the help`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []smartreply.Option
			if seed != 0 {
				opts = append(opts, smartreply.WithSource(smartreply.NewSeededSource(seed)))
			}

			suggestion, err := smartreply.New(opts...).Suggest(smartreply.Request{
				Text:   strings.Join(args, " "),
				Sender: smartreply.SenderRemote,
				Count:  count,
			})
			if err != nil {
				return fmt.Errorf("failed to suggest replies: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), handlers.FormatSuggestion(suggestion))
			return err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", smartreply.DefaultCount, "Maximum number of replies")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for the statement shuffle (0 = random)")
	return cmd
}
