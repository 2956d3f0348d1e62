package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"securethread/internal/config"
	"securethread/internal/enhance"
	"securethread/internal/job"
	"securethread/internal/logging"
	"securethread/internal/model"
	"securethread/internal/progress"
	"securethread/internal/report"
	"securethread/internal/rules"
	"securethread/internal/scan"
	"securethread/internal/source"
	"securethread/internal/store"
)

var scanFlags struct {
	rulesDir    string
	out         string
	format      string
	maxFileSize int64
	budget      int
	maxGap      int
	batchSize   int
	concurrency int
	enhance     bool
	db          string
	aiBaseURL   string
	aiModel     string
	aiKeyEnv    string
	quiet       bool
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan a source tree for vulnerabilities",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanFlags.rulesDir, "rules", "r", "", "directory of .rule files (required unless configured)")
	f.StringVarP(&scanFlags.out, "out", "o", "", "write a report file")
	f.StringVar(&scanFlags.format, "format", "", "report format: json, markdown, sarif (default: by --out extension)")
	f.Int64Var(&scanFlags.maxFileSize, "max-file-size", scan.DefaultMaxFileSize, "skip files larger than this many bytes")
	f.IntVar(&scanFlags.budget, "budget", scan.DefaultScanBudget, "maximum number of files to scan")
	f.IntVar(&scanFlags.maxGap, "max-gap", scan.DefaultMaxGap, "maximum line gap when grouping matches into one finding")
	f.IntVar(&scanFlags.batchSize, "batch", job.DefaultBatchSize, "detection batch size")
	f.IntVar(&scanFlags.concurrency, "concurrency", enhance.DefaultConcurrency, "enhancement concurrency")
	f.BoolVar(&scanFlags.enhance, "enhance", false, "run AI enhancement after detection")
	f.StringVar(&scanFlags.db, "db", "", "postgres DSN for persistent job state (default: in-memory)")
	f.StringVar(&scanFlags.aiBaseURL, "ai-url", "", "OpenAI-compatible base URL")
	f.StringVar(&scanFlags.aiModel, "ai-model", "", "enhancement model name")
	f.StringVar(&scanFlags.aiKeyEnv, "ai-key-env", "", "environment variable holding the API key")
	f.BoolVarP(&scanFlags.quiet, "quiet", "q", false, "suppress per-file progress output")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyScanConfig(cmd, cfg)

	log, err := logging.New(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if scanFlags.rulesDir == "" {
		return fmt.Errorf("no rules directory: pass --rules or set rules_dir in config")
	}

	cache := rules.NewCache()
	ruleSet, diags, err := rules.LoadDir(scanFlags.rulesDir, cache)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	for _, d := range diags {
		log.Warnw("rule diagnostic", "detail", d.String())
	}
	if len(ruleSet) == 0 {
		return fmt.Errorf("no usable rules in %s (%d diagnostics)", scanFlags.rulesDir, len(diags))
	}
	log.Infow("rule set loaded", "dir", scanFlags.rulesDir, "rules", len(ruleSet), "diagnostics", len(diags))

	var st job.Store
	if scanFlags.db != "" {
		pg, openErr := store.Open(scanFlags.db, log)
		if openErr != nil {
			return fmt.Errorf("open store: %w", openErr)
		}
		defer func() { _ = pg.Close() }()
		st = pg
	} else {
		st = job.NewMemStore()
	}

	var enhancer enhance.Enhancer
	if scanFlags.enhance {
		enhancer = &enhance.OpenAIClient{
			BaseURL:   scanFlags.aiBaseURL,
			Model:     scanFlags.aiModel,
			APIKeyEnv: scanFlags.aiKeyEnv,
		}
	}

	var sink progress.Sink = progress.NoopSink{}
	if !scanFlags.quiet {
		sink = progress.NewPlainSink(os.Stderr)
	}

	runner := &job.Runner{
		Store:    st,
		Source:   source.NewLocal(),
		Enhancer: enhancer,
		Rules:    ruleSet,
		Config: job.Config{
			Selector: scan.SelectorConfig{
				MaxFileSize: scanFlags.maxFileSize,
				Budget:      scanFlags.budget,
			},
			MaxGap:             scanFlags.maxGap,
			BatchSize:          scanFlags.batchSize,
			EnhanceConcurrency: scanFlags.concurrency,
		},
		Log:  log,
		Sink: sink,
	}

	finished, runErr := runner.Run(cmd.Context(), args[0])
	if runErr != nil && finished.ID == "" {
		return runErr
	}

	findings, listErr := st.ListFindings(cmd.Context(), finished.ID)
	if listErr != nil {
		log.Warnw("could not list findings for report", "job", finished.ID, "error", listErr)
	}
	rep := report.Build(finished, findings)
	printScanSummary(cmd, rep)

	if scanFlags.out != "" {
		if err := writeReport(scanFlags.out, scanFlags.format, rep); err != nil {
			return err
		}
		log.Infow("report written", "path", scanFlags.out)
	}

	if runErr != nil {
		return runErr
	}
	if finished.Status != model.JobCompleted {
		return fmt.Errorf("scan ended in status %s: %s", finished.Status, finished.Error)
	}
	return nil
}

// applyScanConfig fills flags the user did not set from the layered config.
func applyScanConfig(cmd *cobra.Command, cfg config.Config) {
	changed := cmd.Flags().Changed

	if !changed("rules") && cfg.RulesDir != "" {
		scanFlags.rulesDir = cfg.RulesDir
	}
	if !changed("max-file-size") && cfg.MaxFileSize != nil {
		scanFlags.maxFileSize = *cfg.MaxFileSize
	}
	if !changed("budget") && cfg.ScanBudget != nil {
		scanFlags.budget = *cfg.ScanBudget
	}
	if !changed("max-gap") && cfg.MaxGap != nil {
		scanFlags.maxGap = *cfg.MaxGap
	}
	if !changed("batch") && cfg.BatchSize != nil {
		scanFlags.batchSize = *cfg.BatchSize
	}
	if !changed("concurrency") && cfg.EnhanceConcurrency != nil {
		scanFlags.concurrency = *cfg.EnhanceConcurrency
	}
	if !changed("enhance") && cfg.Enhance != nil {
		scanFlags.enhance = *cfg.Enhance
	}
	if !changed("db") && cfg.DatabaseDSN != "" {
		scanFlags.db = cfg.DatabaseDSN
	}
	if !changed("ai-url") && cfg.AIBaseURL != "" {
		scanFlags.aiBaseURL = cfg.AIBaseURL
	}
	if !changed("ai-model") && cfg.AIModel != "" {
		scanFlags.aiModel = cfg.AIModel
	}
	if !changed("ai-key-env") && cfg.AIAPIKeyEnv != "" {
		scanFlags.aiKeyEnv = cfg.AIAPIKeyEnv
	}
	if !cmd.Flags().Changed("verbose") && cfg.Verbose != nil {
		verbose = *cfg.Verbose
	}
}

func printScanSummary(cmd *cobra.Command, rep report.Report) {
	out := cmd.OutOrStdout()
	j := rep.Job
	fmt.Fprintf(out, "\nRepository:     %s\n", j.Repository)
	fmt.Fprintf(out, "Status:         %s\n", j.Status)
	fmt.Fprintf(out, "Files:          %d selected, %d scanned, %d skipped, %d errored\n",
		j.FilesSelected, j.FilesScanned, j.FilesSkipped, j.FilesErrored)
	fmt.Fprintf(out, "Findings:       %d", len(rep.Findings))
	if len(rep.Findings) > 0 {
		var parts []string
		for _, sev := range model.KnownSeverities {
			if n := j.SeverityCounts[string(sev)]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		fmt.Fprintf(out, " (%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintf(out, "\nSecurity score: %.1f  grade %s\n", j.SecurityScore, rep.Grade)
}

func writeReport(path, format string, rep report.Report) error {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".markdown":
			format = "markdown"
		case ".sarif":
			format = "sarif"
		default:
			format = "json"
		}
	}
	switch strings.ToLower(format) {
	case "json":
		return report.WriteJSON(path, rep)
	case "markdown", "md":
		return report.WriteMarkdown(path, rep)
	case "sarif":
		return report.WriteSARIF(path, rep)
	default:
		return fmt.Errorf("unknown report format %q (expected json, markdown, or sarif)", format)
	}
}
