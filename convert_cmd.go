package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert FILE",
	Short: "Convert one document and print its Markdown",
	Long: `Convert runs a single conversion job. The Markdown is written to stdout;
the path of the job archive is written to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := newManager(cfg)
		if err != nil {
			return err
		}
		res, err := m.ConvertFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Markdown)
		fmt.Fprintf(cmd.ErrOrStderr(), "archive: %s\n", res.ArchivePath)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch FILES...",
	Short: "Convert many documents into one merged archive",
	Long: `Batch converts every file concurrently and merges the per-file archives
into batch_results.zip. A failing file is reported and does not stop the
others. The batch report is printed as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := newManager(cfg)
		if err != nil {
			return err
		}
		report, err := m.RunBatch(ctx, args)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if len(report.Results) == 0 {
			fmt.Fprintln(os.Stderr, report.Status)
			return fmt.Errorf("no file converted")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(batchCmd)
}
