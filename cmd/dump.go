// -- cmd/dump.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
)

var dumpFlags struct {
	links    bool
	waitIdle bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump <url>",
	Short: "Print a page's rendered HTML, or the links it contains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		return withSession(cmd.Context(), func(ctx context.Context, s *browser.Session) error {
			if err := s.Navigate(ctx, url); err != nil {
				return err
			}
			if dumpFlags.waitIdle {
				if err := s.WaitIdle(ctx, cfg.Network.NavigationTimeout); err != nil {
					return err
				}
			}

			if dumpFlags.links {
				links, err := s.Links(ctx)
				if err != nil {
					return err
				}
				for _, link := range links {
					fmt.Fprintln(cmd.OutOrStdout(), link)
				}
				return nil
			}

			html, err := s.HTML(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), html)
			return nil
		})
	},
}

func init() {
	f := dumpCmd.Flags()
	f.BoolVar(&dumpFlags.links, "links", false, "print the absolute hrefs of all anchors instead of HTML")
	f.BoolVar(&dumpFlags.waitIdle, "wait-idle", false, "wait for the network to go quiet before dumping")

	rootCmd.AddCommand(dumpCmd)
}
