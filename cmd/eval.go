// -- cmd/eval.go --
package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
)

var evalCmd = &cobra.Command{
	Use:   "eval <url> <expression>",
	Short: "Navigate to a page and evaluate a JavaScript expression",
	Long: `Navigate to a page, evaluate a JavaScript expression in its context,
and print the JSON-encoded result. Promises are awaited.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, expression := args[0], args[1]

		return withSession(cmd.Context(), func(ctx context.Context, s *browser.Session) error {
			if err := s.Navigate(ctx, url); err != nil {
				return err
			}

			var result json.RawMessage
			if err := s.Evaluate(ctx, expression, &result); err != nil {
				return err
			}

			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
}
