// Command prodsched loads a production scheduling input file, runs one or
// more capacity scenarios against it, and writes a validated dashboard
// snapshot for each.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scttfrdmn/prodsched/pkg/ingest"
	"github.com/scttfrdmn/prodsched/pkg/logging"
	"github.com/scttfrdmn/prodsched/pkg/metrics"
	"github.com/scttfrdmn/prodsched/pkg/scenario"
	"github.com/scttfrdmn/prodsched/pkg/snapshot"
	"github.com/spf13/cobra"
)

var (
	csvPath         string
	debug           bool
	targetEarliness int
	validateOnly    bool
	diagnose        bool
	variant         string
	outDir          string
	s3Bucket        string
	s3Region        string
	s3Prefix        string
	levelLoading    float64
)

func main() {
	root := &cobra.Command{
		Use:   "prodsched",
		Short: "Finite-capacity production scheduler",
		Long: `prodsched schedules production tasks against a finite-capacity,
precedence-constrained resource ledger and exports a dashboard snapshot for
each capacity scenario it runs.`,
		RunE: runSchedule,
	}

	root.PersistentFlags().StringVar(&csvPath, "csv", "", "path to the sectioned production input file (required)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().IntVar(&targetEarliness, "target-earliness", 5, "days of earliness the simulated-annealing search (S3) targets")
	root.PersistentFlags().BoolVar(&validateOnly, "validate", false, "parse and validate the input file, then exit without scheduling")
	root.PersistentFlags().BoolVar(&diagnose, "diagnose", false, "print a diagnostic report explaining any unscheduled instances")
	root.PersistentFlags().StringVar(&variant, "scenario", "baseline", "scenario to run: baseline, min-headcount, or anneal")
	root.PersistentFlags().StringVar(&outDir, "out", "./snapshots", "local directory snapshots are written to")
	root.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "optional S3 bucket; when set, snapshots are written there instead of --out")
	root.PersistentFlags().StringVar(&s3Region, "s3-region", "us-east-1", "AWS region for --s3-bucket")
	root.PersistentFlags().StringVar(&s3Prefix, "s3-prefix", "", "key prefix for --s3-bucket")
	root.PersistentFlags().Float64Var(&levelLoading, "level-loading", 0, "aggressiveness (0-1) of level-loading slot scoring; 0 disables it and places on earliest-feasible alone")

	if err := root.MarkPersistentFlagRequired("csv"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	log := logging.New(debug)

	ds, err := ingest.Load(csvPath)
	if err != nil {
		return fmt.Errorf("prodsched: failed to load %s: %w", csvPath, err)
	}
	log.Infof("loaded %s: %d task templates, %d product lines", csvPath, len(ds.TaskTemplates), len(ds.Deliveries))

	if validateOnly {
		log.Infof("validation succeeded")
		return nil
	}

	now := time.Now()
	sess, err := scenario.Open(ds, now, log)
	if err != nil {
		return err
	}
	if levelLoading > 0 {
		sess.SetLevelLoading(levelLoading)
	}

	outcome, err := runVariant(sess, ds)
	if err != nil {
		return err
	}

	if len(outcome.Result.Failed) > 0 {
		if diagnose {
			fmt.Print(outcome.Scheduler().Diagnose(outcome.Result).String())
		} else {
			log.Warnf("%d instances failed to schedule; run with --diagnose for details", len(outcome.Result.Failed))
		}
	}

	capacities := map[string]int{}
	for team, h := range outcome.Headcount {
		capacities[team] = h
	}
	summary := metrics.Compute(outcome.Result.Records, ds.Deliveries, capacities, len(outcome.Result.Failed))

	snap := snapshot.Build(outcome.Name, describeScenario(variant), sess.Graph(), outcome.Scheduler(), outcome.Result, capacities, ds.MechanicShifts, ds.Deliveries, summary)

	validator, err := snapshot.NewValidator()
	if err != nil {
		return err
	}
	result, err := validator.Validate(snap)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("prodsched: built an invalid snapshot: %s", result.String())
	}

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	if err := store.Put(cmd.Context(), snap); err != nil {
		return err
	}

	log.Infof("scenario %s: %d scheduled, %d failed, makespan %.1fh", outcome.Name, len(outcome.Result.Records), len(outcome.Result.Failed), summary.Makespan.Hours())
	return nil
}

func runVariant(sess *scenario.Session, ds *ingest.Dataset) (*scenario.Outcome, error) {
	switch variant {
	case "baseline", "":
		return sess.RunBaseline()
	case "min-headcount":
		ceiling := 0
		for _, h := range ds.MechanicCapacity {
			if h > ceiling {
				ceiling = h
			}
		}
		return sess.RunMinimumHeadcount(ceiling * 2)
	case "anneal":
		return sess.RunSimulatedAnnealing(targetEarliness, 300, int64(targetEarliness)+1)
	default:
		return nil, fmt.Errorf("prodsched: unknown scenario %q", variant)
	}
}

func describeScenario(name string) string {
	switch name {
	case "min-headcount":
		return "minimum uniform mechanic headcount search"
	case "anneal":
		return "simulated-annealing workforce search"
	default:
		return "fixed baseline capacity"
	}
}

func openStore(ctx context.Context) (snapshot.Store, error) {
	if s3Bucket != "" {
		return snapshot.NewS3Store(ctx, s3Region, s3Bucket, s3Prefix)
	}
	return snapshot.NewFileStore(outDir)
}
