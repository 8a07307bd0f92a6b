package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"paper-auditor/config"
	"paper-auditor/gateway"
	"paper-auditor/models"
	"paper-auditor/services"
	"paper-auditor/storage"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit <paper.txt>",
	Short: "Audit every citation of a paper",
	Long:  "Extracts the references of a plain-text paper, looks each one up in the enabled bibliographic databases and classifies it as PASS, SUSPECT or MISSING.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

var (
	auditRefsFile      string
	auditRefsFormat    string
	auditModel         string
	auditOutFile       string
	auditCallLog       string
	auditConcurrency   int
	auditPaperTitle    string
	auditScoringFile   string
	auditFailOnSuspect bool
)

func init() {
	auditCmd.Flags().StringVarP(&auditRefsFile, "refs", "r", "", "Bibliography file (BibTeX or CSL-JSON) replacing the paper's reference section")
	auditCmd.Flags().StringVar(&auditRefsFormat, "refs-format", "", "Bibliography format: bibtex or csl-json (default: by file extension)")
	auditCmd.Flags().StringVarP(&auditModel, "model", "m", "", "Language model for assisted evaluation, e.g. openai/gpt-4o (default: LLM_MODEL)")
	auditCmd.Flags().StringVarP(&auditOutFile, "out", "o", "", "Write the JSON report to this file instead of stdout")
	auditCmd.Flags().StringVar(&auditCallLog, "call-log", "", "SQLite file receiving the provider call log (default: CALL_LOG_SQLITE_PATH)")
	auditCmd.Flags().IntVarP(&auditConcurrency, "concurrency", "c", 0, "References processed in parallel (default: AUDIT_CONCURRENCY)")
	auditCmd.Flags().StringVar(&auditPaperTitle, "title", "", "Paper title (default: read from the first lines)")
	auditCmd.Flags().StringVar(&auditScoringFile, "scoring", "", "YAML file overriding thresholds and weights (default: SCORING_FILE)")
	auditCmd.Flags().BoolVar(&auditFailOnSuspect, "fail-on-suspect", false, "Exit non-zero when any citation is SUSPECT or MISSING")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if auditConcurrency > 0 {
		cfg.AuditConcurrency = auditConcurrency
	}
	if auditScoringFile != "" {
		cfg.ScoringFile = auditScoringFile
	}
	if auditCallLog != "" {
		cfg.CallLogSQLitePath = auditCallLog
	}
	scoring, err := config.LoadScoring(cfg.ScoringFile)
	if err != nil {
		return err
	}

	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading paper: %w", err)
	}
	refs, err := loadReferences(auditRefsFile, auditRefsFormat)
	if err != nil {
		return err
	}

	sinks := gateway.MultiSink{gateway.LogSink{Logger: logger}}
	if cfg.CallLogSQLitePath != "" {
		callLog, err := storage.OpenSQLiteCallLog(cfg.CallLogSQLitePath, logger)
		if err != nil {
			return err
		}
		defer callLog.Close()
		sinks = append(sinks, callLog)
	}
	gw, err := gateway.NewFromConfig(cfg, sinks, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := services.NewPipeline(cfg, scoring, gw, logger)
	auditor, closeModel, err := pipeline.Auditor(ctx, auditModel)
	if err != nil {
		return err
	}
	defer closeModel()

	report, err := auditor.Audit(ctx, services.Input{
		Text:       string(text),
		References: refs,
		PaperTitle: auditPaperTitle,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if auditOutFile != "" {
		f, err := os.Create(auditOutFile)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeJSON(out, report); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), report)

	if auditFailOnSuspect && report.PassedCount != report.TotalCitations {
		return fmt.Errorf("%d suspect and %d missing citations", report.SuspectCount, report.MissingCount)
	}
	return nil
}

// loadReferences reads an optional bibliography file. An empty format is
// derived from the file extension.
func loadReferences(path, format string) ([]models.Reference, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bibliography: %w", err)
	}
	if format == "" {
		format = formatFromExtension(path)
	}
	refs, err := services.ParseBibliography(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return refs, nil
}

func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".csl":
		return services.FormatCSLJSON
	default:
		return services.FormatBibTeX
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, r *models.AnalysisReport) {
	fmt.Fprintf(w, "\n%s\n", r.PaperTitle)
	fmt.Fprintf(w, "%d citations: %d PASS, %d SUSPECT, %d MISSING (run %s)\n",
		r.TotalCitations, r.PassedCount, r.SuspectCount, r.MissingCount, r.RunID)
	for _, a := range r.AuditedCitations {
		if a.Status == models.StatusPass {
			continue
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", a.Status, a.CitationKey, services.FormatReference(a.Metadata))
		if a.Status == models.StatusMissing {
			fmt.Fprintf(w, "           %s\n", a.ExistenceDetails)
		} else if a.Justification != nil {
			fmt.Fprintf(w, "           %s\n", a.Justification.Rationale)
		}
	}
}
