// -- cmd/screenshot.go --
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
)

var screenshotFlags struct {
	output   string
	fullPage bool
	selector string
	device   string
	format   string
	quality  int
	waitIdle bool
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot <url>",
	Short: "Capture a screenshot of a page, the full page, or a single element",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		return withSession(cmd.Context(), func(ctx context.Context, s *browser.Session) error {
			if screenshotFlags.device != "" {
				dev, ok := browser.DevicePreset(screenshotFlags.device)
				if !ok {
					return fmt.Errorf("unknown device %q (available: %s)",
						screenshotFlags.device, strings.Join(browser.DeviceNames(), ", "))
				}
				if err := s.EmulateDevice(ctx, dev); err != nil {
					return err
				}
			}

			if err := s.Navigate(ctx, url); err != nil {
				return err
			}
			if screenshotFlags.waitIdle {
				if err := s.WaitIdle(ctx, cfg.Network.NavigationTimeout); err != nil {
					return err
				}
			}

			opts := browser.CaptureOptions{
				Format:  pickString(screenshotFlags.format, cfg.Capture.Format),
				Quality: screenshotFlags.quality,
			}

			var (
				data []byte
				err  error
			)
			switch {
			case screenshotFlags.selector != "":
				data, err = s.ElementScreenshot(ctx, screenshotFlags.selector, opts)
			case screenshotFlags.fullPage || cfg.Capture.FullPage:
				data, err = s.FullScreenshot(ctx, opts)
			default:
				data, err = s.Screenshot(ctx, opts)
			}
			if err != nil {
				return err
			}

			writer, name := newArtifactWriter(screenshotFlags.output)
			if name == "" {
				name = writer.DefaultName(url, opts.Format)
			}
			path, err := writer.Write(name, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		})
	},
}

// pickString returns override when set, fallback otherwise.
func pickString(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

func init() {
	f := screenshotCmd.Flags()
	f.StringVarP(&screenshotFlags.output, "output", "o", "", "output file path")
	f.BoolVar(&screenshotFlags.fullPage, "full-page", false, "capture the entire scrollable page")
	f.StringVar(&screenshotFlags.selector, "selector", "", "capture only the element matching this CSS selector")
	f.StringVar(&screenshotFlags.device, "device", "", "emulate a device preset (see --help for names)")
	f.StringVar(&screenshotFlags.format, "format", "", "image format: png, jpeg or webp")
	f.IntVar(&screenshotFlags.quality, "quality", 90, "jpeg/webp quality (0-100)")
	f.BoolVar(&screenshotFlags.waitIdle, "wait-idle", false, "wait for the network to go quiet before capturing")

	rootCmd.AddCommand(screenshotCmd)
}
