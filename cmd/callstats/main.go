// Package main provides the CLI entrypoint for callstats.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PLSysSec/callstats/internal/config"
	"github.com/PLSysSec/callstats/internal/intervals"
	"github.com/PLSysSec/callstats/internal/model"
	"github.com/PLSysSec/callstats/internal/stats"
	"github.com/PLSysSec/callstats/internal/store"
	"github.com/PLSysSec/callstats/internal/tracelog"
)

var (
	configPath string
	verbose    bool

	enterMarker    string
	exitMarker     string
	rejectNegative bool
	showTable      bool
	colorMode      string
	saveRun        bool
	dbPath         string

	historyLast int
	historyCall string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "callstats [flags] FILE...",
		Short: "Average call latency from enter/exit trace logs",
		Long: `Reads trace logs with "[+] Entering name(" and "[-] Exiting name" lines,
pairs adjacent enter/exit events and prints the mean latency of every call
in microseconds. Files are read in argument order; "-" reads stdin.
A trace file named like a subcommand must be given with a path prefix,
for example ./history.`,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setupLogging,
		RunE:              runAnalyzeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log parsing details to stderr")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "run history database")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", stats.ColorAuto, "table color: auto, always or never")

	rootCmd.Flags().StringVar(&enterMarker, "enter-marker", tracelog.DefaultEnterMarker, "substring marking a call entry")
	rootCmd.Flags().StringVar(&exitMarker, "exit-marker", tracelog.DefaultExitMarker, "substring marking a call exit")
	rootCmd.Flags().BoolVar(&rejectNegative, "reject-negative", false, "fail when an exit is stamped before its enter")
	rootCmd.Flags().BoolVar(&showTable, "table", false, "print an aligned table instead of plain lines")
	rootCmd.Flags().BoolVar(&saveRun, "save", false, "record this run in the history database")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())

	return rootCmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logrus.SetLevel(logrus.WarnLevel)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyConfig(cmd, fileCfg)
	return nil
}

func applyConfig(cmd *cobra.Command, fileCfg config.FileConfig) {
	applyStringConfig(cmd, "enter-marker", &enterMarker, fileCfg.Parse.EnterMarker)
	applyStringConfig(cmd, "exit-marker", &exitMarker, fileCfg.Parse.ExitMarker)
	applyBoolConfig(cmd, "reject-negative", &rejectNegative, fileCfg.Parse.RejectNegative)
	applyBoolConfig(cmd, "table", &showTable, fileCfg.Output.Table)
	applyStringConfig(cmd, "color", &colorMode, fileCfg.Output.Color)
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Output.DB)
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	parser := &tracelog.Parser{EnterMarker: enterMarker, ExitMarker: exitMarker}
	if err := parser.Validate(); err != nil {
		return err
	}
	useColor, err := resolveColor(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	events, err := parser.ReadFiles(args)
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	table, err := intervals.Build(events, intervals.Options{RejectNegative: rejectNegative})
	if err != nil {
		return fmt.Errorf("failed to pair events: %w", err)
	}
	rows := stats.Summarize(table)

	if saveRun {
		run := model.RunStats{
			CreatedAt:  time.Now(),
			Files:      args,
			EventCount: len(events),
			PairCount:  table.Pairs(),
		}
		if err := recordRun(cmd.Context(), run, rows); err != nil {
			return err
		}
	}

	if showTable {
		return stats.RenderTable(cmd.OutOrStdout(), rows, useColor)
	}
	return stats.PrintAverages(cmd.OutOrStdout(), rows)
}

func recordRun(ctx context.Context, run model.RunStats, rows []model.CallStats) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logrus.Warnf("failed to close db: %v", cerr)
		}
	}()
	id, err := st.InsertRun(ctx, run, rows)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	logrus.WithField("run", id).Debug("saved run")
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show saved runs and their combined averages",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	cmd.Flags().StringVar(&historyCall, "call", "", "only show this call name")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	useColor, err := resolveColor(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logrus.Warnf("failed to close db: %v", cerr)
		}
	}()

	report, err := stats.BuildReport(cmd.Context(), st, model.HistoryConfig{
		Last: historyLast,
		Call: historyCall,
	})
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	return stats.RenderReport(cmd.OutOrStdout(), report, useColor)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	if err := writeConfigTemplate(configPath); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], configPath)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// writeConfigTemplate creates the config file unless it already exists.
func writeConfigTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func resolveColor(w io.Writer) (bool, error) {
	f, _ := w.(*os.File)
	return stats.ResolveColor(colorMode, f)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# callstats configuration
# Uncomment a value to enable it. CLI flags override config values.

[parse]
# enter-marker = %q       # Substring marking a call entry
# exit-marker = %q        # Substring marking a call exit
# reject-negative = false     # Fail when an exit is stamped before its enter

[output]
# table = false               # Aligned table instead of "<name> <mean>" lines
# color = %q              # auto, always or never
# db = %q
`,
		tracelog.DefaultEnterMarker,
		tracelog.DefaultExitMarker,
		stats.ColorAuto,
		config.DefaultDBPath(),
	)
}
