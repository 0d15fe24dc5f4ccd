package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"market-stress-go/internal/analysis"
	"market-stress-go/internal/config"
	"market-stress-go/internal/database"
	"market-stress-go/internal/feeds"
	"market-stress-go/internal/logger"
	"market-stress-go/internal/sentiment"
)

// rootCmd runs one batch analysis
var rootCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score news sentiment against daily bars and fit stress models",
	Long: `Fetch headlines for a query and daily bars for a ticker, compute
sentiment and volatility features, flag threshold stress signals, and fit an
isolation forest and a logistic regression on the result.

Examples:
  analyze --query "inflation OR recession" --start 2024-01-01 --end 2024-04-01
  analyze --symbol QQQ --csv ./out/qqq_stress.csv
  analyze --summary ./out/run.yml --config ./configs --no-save`,
	SilenceUsage: true,
	RunE:         runAnalyze,
}

var (
	flagQuery     string
	flagSymbol    string
	flagStart     string
	flagEnd       string
	flagCSV       string
	flagSummary   string
	flagConfigDir string
	flagNoSave    bool
)

func init() {
	rootCmd.Flags().StringVar(&flagQuery, "query", "", "News search query (default from config)")
	rootCmd.Flags().StringVar(&flagSymbol, "symbol", "", "Ticker to fetch daily bars for (default from config)")
	rootCmd.Flags().StringVar(&flagStart, "start", "2024-01-01", "First day of the range (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&flagEnd, "end", "2024-04-01", "Last day of the range (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&flagCSV, "csv", "", "Write the annotated daily table to this file")
	rootCmd.Flags().StringVar(&flagSummary, "summary", "", "Write the run summary as YAML to this file")
	rootCmd.Flags().StringVar(&flagConfigDir, "config", "./configs", "Directory holding config.yml")
	rootCmd.Flags().BoolVar(&flagNoSave, "no-save", false, "Do not record the run in the journal")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	start, end, err := parseRange(flagStart, flagEnd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(flagConfigDir)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewNamed("analyze", cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("could not initialize logger: %w", err)
	}
	defer log.Sync()

	pipeline := analysis.NewPipeline(
		feeds.NewNewsClient(&cfg.News, log),
		feeds.NewBarsClient(&cfg.MarketData, log),
		sentiment.NewAnalyzer(),
		cfg.Analysis,
		log,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := pipeline.Run(ctx, analysis.Request{
		Query:  flagQuery,
		Symbol: flagSymbol,
		Start:  start,
		End:    end,
	})
	switch {
	case errors.Is(err, analysis.ErrNoHeadlines):
		fmt.Fprintln(cmd.OutOrStdout(), "No headlines found.")
		return nil
	case err != nil:
		return err
	}

	if err := report.Render(cmd.OutOrStdout(), cfg.Analysis.HeadlinesShown); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if flagCSV != "" {
		if err := writeCSV(flagCSV, report); err != nil {
			return err
		}
		log.Info("Wrote annotated table", zap.String("path", flagCSV))
	}
	if flagSummary != "" {
		if err := writeSummary(flagSummary, report); err != nil {
			return err
		}
		log.Info("Wrote run summary", zap.String("path", flagSummary))
	}

	if !flagNoSave {
		if err := saveRun(ctx, &cfg.Database, report); err != nil {
			// The report is already printed; a journal failure is not fatal.
			log.Error("Failed to record analysis run", zap.Error(err))
		}
	}
	return nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s must be after --start %s", to, from)
	}
	return start, end, nil
}

func writeCSV(path string, report *analysis.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := report.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

func writeSummary(path string, report *analysis.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	if err := report.WriteYAML(f); err != nil {
		f.Close()
		return fmt.Errorf("write summary: %w", err)
	}
	return f.Close()
}

func saveRun(ctx context.Context, cfg *config.Database, report *analysis.Report) error {
	dbCfg := *cfg
	dbCfg.Reset = false
	db, err := database.NewDatabase(&dbCfg)
	if err != nil {
		return err
	}
	run := runRecord(report)
	return db.WithContext(ctx).Create(&run).Error
}
