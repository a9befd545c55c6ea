// -- cmd/cookies.go --
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
)

var cookiesFlags struct {
	save string
	load string
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies <url>",
	Short: "Inspect, export or import cookies for a page",
	Long: `Navigate to a page and print its cookies as JSON. With --save the
cookies are written to a jar file instead; with --load a previously saved
jar is installed before navigating.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		var jarToLoad *browser.CookieJar
		if cookiesFlags.load != "" {
			data, err := os.ReadFile(cookiesFlags.load)
			if err != nil {
				return fmt.Errorf("failed to read cookie jar: %w", err)
			}
			jarToLoad, err = browser.DecodeCookieJar(data)
			if err != nil {
				return err
			}
		}

		return withSession(cmd.Context(), func(ctx context.Context, s *browser.Session) error {
			if jarToLoad != nil {
				if err := s.ImportJar(ctx, jarToLoad); err != nil {
					return err
				}
			}

			if err := s.Navigate(ctx, url); err != nil {
				return err
			}

			cookies, err := s.Cookies(ctx)
			if err != nil {
				return err
			}
			jar := browser.NewCookieJar(cookies)
			data, err := jar.Encode()
			if err != nil {
				return err
			}

			if cookiesFlags.save != "" {
				if err := os.WriteFile(cookiesFlags.save, data, 0o600); err != nil {
					return fmt.Errorf("failed to write cookie jar: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cookiesFlags.save)
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

func init() {
	f := cookiesCmd.Flags()
	f.StringVar(&cookiesFlags.save, "save", "", "write cookies to this jar file")
	f.StringVar(&cookiesFlags.load, "load", "", "install cookies from this jar file before navigating")

	rootCmd.AddCommand(cookiesCmd)
}
