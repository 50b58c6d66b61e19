// docwebapi/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"docwebapi/config"
	"docwebapi/convert"
	"docwebapi/task"
	"docwebapi/workspace"

	"github.com/spf13/cobra"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "docwebapi",
	Short: "Convert PDF, DOCX and image documents to Markdown archives",
	Long: `docwebapi converts PDF, DOCX and image files into Markdown with their
extracted images, packaged as one zip archive per document. Many files can be
converted as a batch whose archives are merged into a single download.

Run "serve" for the HTTP API, or "convert" and "batch" for one-off jobs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
			cfg.OutputDir = dir
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("output-dir", "", "workspace root (overrides OUTPUT_DIR)")
}

// newManager wires the workspace allocator, the converter and the task
// manager from the loaded configuration.
func newManager(cfg *config.Config) (*task.Manager, error) {
	ws, err := workspace.NewAllocator(cfg.OutputDir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare output dir: %w", err)
	}
	conv, err := newConverter(cfg, ws)
	if err != nil {
		return nil, err
	}
	return task.NewManager(cfg, ws, conv)
}

func newConverter(cfg *config.Config, ws *workspace.Allocator) (*convert.Converter, error) {
	opts := convert.Options{
		MaxInputSize: cfg.MaxInputSize,
		Timeout:      cfg.JobTimeout,
		Resources: &convert.ResourceGuard{
			IdleCPU:  cfg.ThrottleCPU,
			FreeMem:  cfg.ThrottleFreeMem,
			FreeDisk: cfg.ThrottleFreeDisk,
			Dir:      ws.Root(),
		},
	}

	if cfg.PDFCommand != "" {
		a, err := convert.NewCommandAnalyzer(cfg.PDFCommand)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pdf analyzer: %w", err)
		}
		opts.PDF = convert.LimitAnalyzer(cfg.AnalyzerRate, a)
	} else {
		slog.Warn("PDF_COMMAND not set, pdf inputs will fail")
	}

	if cfg.OCRCommand != "" {
		o, err := convert.NewCommandOCR(cfg.OCRCommand)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ocr: %w", err)
		}
		opts.OCR = convert.LimitOCR(cfg.AnalyzerRate, o)
	}

	return convert.NewConverter(ws, opts), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
