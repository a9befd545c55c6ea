// -- cmd/pdf.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
)

var pdfFlags struct {
	output     string
	landscape  bool
	background bool
	scale      float64
	paper      string
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <url>",
	Short: "Render a page to PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		scale := pdfFlags.scale
		if scale <= 0 {
			scale = cfg.Capture.PDFScale
		}
		opts := browser.PDFOptions{
			Landscape:       pdfFlags.landscape,
			PrintBackground: pdfFlags.background,
			Scale:           scale,
		}
		if pdfFlags.paper != "" {
			w, h, ok := browser.PaperSize(pdfFlags.paper)
			if !ok {
				return fmt.Errorf("unknown paper size %q", pdfFlags.paper)
			}
			opts.PaperWidth, opts.PaperHeight = w, h
		}

		return withSession(cmd.Context(), func(ctx context.Context, s *browser.Session) error {
			if err := s.Navigate(ctx, url); err != nil {
				return err
			}

			data, err := s.PDF(ctx, opts)
			if err != nil {
				return err
			}

			writer, name := newArtifactWriter(pdfFlags.output)
			if name == "" {
				name = writer.DefaultName(url, "pdf")
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

func init() {
	f := pdfCmd.Flags()
	f.StringVarP(&pdfFlags.output, "output", "o", "", "output file path")
	f.BoolVar(&pdfFlags.landscape, "landscape", false, "landscape orientation")
	f.BoolVar(&pdfFlags.background, "background", true, "print background graphics")
	f.Float64Var(&pdfFlags.scale, "scale", 0, "render scale (default browser setting)")
	f.StringVar(&pdfFlags.paper, "paper", "", "paper size: a4, a3, letter or legal")

	rootCmd.AddCommand(pdfCmd)
}
