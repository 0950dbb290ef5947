// Command hpo runs a study file locally and prints the best parameters.
//
//	hpo -study branin.yaml -out results/branin
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/copyleftdev/seqtune/internal/config"
	"github.com/copyleftdev/seqtune/internal/logging"
	"github.com/copyleftdev/seqtune/internal/optimization"
	"github.com/copyleftdev/seqtune/internal/report"
	"github.com/copyleftdev/seqtune/internal/study"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("hpo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	studyPath := fs.String("study", "", "study file (.yaml, .yml or .json)")
	outDir := fs.String("out", cfg.Optimization.ResultsDir, "directory for eval_results.json and convergence.png")
	seed := fs.Int64("seed", 0, "random seed overriding the study (0 keeps the study or OPT_SEED)")
	workers := fs.Int("workers", cfg.Optimization.WorkerCount, "concurrent trials for grid and random search")
	plot := fs.Bool("plot", cfg.Optimization.PlotConvergence, "render the convergence plot")
	logLevel := fs.String("log-level", cfg.Logging.Level, "log level")
	listObjectives := fs.Bool("objectives", false, "list built-in objectives and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listObjectives {
		for _, name := range study.Objectives() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}
	if *studyPath == "" {
		fmt.Fprintln(stderr, "-study is required")
		fs.Usage()
		return 2
	}

	logger, err := logging.NewLogger(&logging.Config{Level: *logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	spec, err := study.Load(*studyPath)
	if err != nil {
		logger.Error("Invalid study", map[string]interface{}{"error": err})
		return 1
	}
	if *seed != 0 {
		spec.Seed = *seed
	}

	zl := logger.Zap().With(zap.String("study", spec.Name))
	driver, err := spec.Build(optimization.DriverConfig{
		Seed:    cfg.Optimization.Seed,
		Workers: *workers,
		Sink:    &report.Directory{Path: *outDir, Plot: *plot, Logger: zl},
		Logger:  zl,
	})
	if err != nil {
		logger.Error("Failed to build study", map[string]interface{}{"error": err})
		return 1
	}

	results, err := driver.Fit(ctx)
	if err != nil {
		fields := map[string]interface{}{"error": err}
		if results != nil {
			fields["trials"] = results.Len()
		}
		logger.Error("Study failed", fields)
		return 1
	}

	best, err := driver.BestParameters()
	if err != nil {
		logger.Error("No finite score", map[string]interface{}{"error": err})
		return 1
	}
	top, _ := driver.RunningBest()

	out := map[string]interface{}{
		"algorithm":  driver.Algorithm(),
		"trials":     results.Len(),
		"best_trial": top.Index,
		"best_score": top.Score,
		"best":       best,
	}
	if spec.EvalOnBest {
		out["score_at_best"] = driver.BestScore()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		logger.Error("Failed to write output", map[string]interface{}{"error": err})
		return 1
	}
	return 0
}
