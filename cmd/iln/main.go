// Command iln runs annotated text through an ILN nexus from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iln-nexus/iln"
	"github.com/iln-nexus/iln/pkg/core"
	ilnlog "github.com/iln-nexus/iln/pkg/logger"
)

var (
	// Global flags
	verbose    bool
	apiKey     string
	configFile string
	output     string
	timeout    time.Duration

	// run flags
	level    int
	backend  string
	priority string
	domain   string
	base     string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "iln",
	Short: "ILN - route intent annotations to the best-suited backend",
	Long: `iln extracts intent annotations such as chan!('jobs', workers) from text,
scores the registered backends against them and dispatches the work at one
of four levels. Levels 1-3 run locally; level 4 needs an ILN Pro key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [text]",
	Short: "Execute annotated text at the given level",
	Long: `Extracts annotations from text and dispatches them.

Examples:
  iln run "chan!('data', process) && own!('memory', safe)"
  iln run "event!('click', handler)" --level 2 --backend nodejs
  iln run "own!('m', buf)" --level 3 --base python --backend rust`,
	Args: cobra.ExactArgs(1),
	RunE: runText,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show version, backends, tags and available levels",
	RunE:  showInfo,
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in examples",
	RunE:  runDemo,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "ILN Pro API key (defaults to ILN_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "JSON or YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")

	runCmd.Flags().IntVarP(&level, "level", "l", 1, "Execution level (1-4)")
	runCmd.Flags().StringVarP(&backend, "backend", "b", "auto", "Target backend, or auto")
	runCmd.Flags().StringVarP(&priority, "priority", "p", "", "Optimization priority: performance, safety, reactive, balanced")
	runCmd.Flags().StringVar(&domain, "domain", "", "Problem domain hint, e.g. data_science")
	runCmd.Flags().StringVar(&base, "base", "", "Base backend for level 3 cascades")

	rootCmd.AddCommand(runCmd, infoCmd, demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newNexus builds a nexus from the global flags. Nexus logs share the
// CLI's zap logger.
func newNexus(ctx context.Context) (*iln.Nexus, error) {
	var opts []iln.Option
	if configFile != "" {
		opts = append(opts, iln.WithConfigFile(configFile))
	}
	if apiKey != "" {
		opts = append(opts, iln.WithAPIKey(apiKey))
	}
	opts = append(opts, iln.WithLogger(ilnlog.WrapZap(logger)))

	cfg, err := iln.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded",
		zap.String("name", cfg.Name),
		zap.Bool("has_pro", cfg.HasPro()),
		zap.Ints("gated_levels", cfg.Pro.GatedLevels),
	)
	return iln.NewWithConfig(ctx, cfg)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runText(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	nx, err := newNexus(ctx)
	if err != nil {
		return err
	}
	defer nx.Close()

	ectx := core.ExecutionContext{Domain: domain, BaseBackend: base}
	var opts map[string]interface{}
	if priority != "" {
		ectx.Priority = core.ParsePriority(priority)
		opts = map[string]interface{}{"priority": string(ectx.Priority)}
	}

	res := nx.Run(ctx, args[0], level, backend, ectx, opts)
	logger.Debug("execution finished",
		zap.Bool("success", res.Success),
		zap.String("backend", res.Backend),
		zap.Duration("duration", res.ExecutionTime),
	)
	if err := render(cmd.OutOrStdout(), output, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("execution failed: %s", res.Error)
	}
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	nx, err := newNexus(ctx)
	if err != nil {
		return err
	}
	defer nx.Close()

	format := output
	if format == "text" {
		format = "json"
	}
	return render(cmd.OutOrStdout(), format, nx.Info(ctx))
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	nx, err := newNexus(ctx)
	if err != nil {
		return err
	}
	defer nx.Close()

	runs := nx.Demo(ctx)
	if output != "text" {
		return render(cmd.OutOrStdout(), output, runs)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "ILN demo")
	fmt.Fprintln(w)
	for _, run := range runs {
		fmt.Fprintf(w, "Level %d: %s\n", run.Example.Level, run.Example.Text)
		writeResult(w, run.Result)
		fmt.Fprintln(w)
	}
	return nil
}
