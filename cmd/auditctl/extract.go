package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"paper-auditor/config"
	"paper-auditor/services"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <paper.txt>",
	Short: "Show the citations and references found in a paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var (
	extractRefsFile   string
	extractRefsFormat string
	extractJSON       bool
)

func init() {
	extractCmd.Flags().StringVarP(&extractRefsFile, "refs", "r", "", "Bibliography file (BibTeX or CSL-JSON) replacing the paper's reference section")
	extractCmd.Flags().StringVar(&extractRefsFormat, "refs-format", "", "Bibliography format: bibtex or csl-json (default: by file extension)")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Print the full extraction as JSON")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading paper: %w", err)
	}
	refs, err := loadReferences(extractRefsFile, extractRefsFormat)
	if err != nil {
		return err
	}

	extractor := services.NewCitationExtractor(config.DefaultScoring().Match, logger)
	var ex *services.Extraction
	if refs != nil {
		ex = extractor.ExtractWithReferences(string(text), refs)
	} else {
		ex = extractor.Extract(string(text))
	}

	if extractJSON {
		return writeJSON(cmd.OutOrStdout(), ex)
	}
	printExtraction(cmd, ex)
	return nil
}

func printExtraction(cmd *cobra.Command, ex *services.Extraction) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n%d markers, %d references (%d dropped, %d merged, %d unresolved markers)\n\n",
		ex.PaperTitle, ex.Diagnostics.Markers, len(ex.References),
		ex.Diagnostics.DroppedReferences, ex.Diagnostics.MergedDuplicates, ex.Diagnostics.UnresolvedMarkers)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCITED\tREFERENCE")
	for _, r := range ex.References {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Key, len(r.Contexts), services.FormatReference(r.Metadata))
	}
	tw.Flush()
}
