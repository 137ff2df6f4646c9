package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"krigingpower/pkg/config"
	"krigingpower/pkg/simulation"
	"krigingpower/pkg/visualization"
)

// overrideFlags collects repeated -set key=value arguments
type overrideFlags map[string]string

func (o overrideFlags) String() string {
	parts := make([]string, 0, len(o))
	for k, v := range o {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (o overrideFlags) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	o[strings.TrimSpace(key)] = value
	return nil
}

func main() {
	overrides := overrideFlags{}

	configPath := flag.String("config", "", "YAML configuration file (defaults are used when empty or missing)")
	trials := flag.Int("trials", 0, "Number of Monte-Carlo trials (overrides run.trials)")
	workers := flag.Int("workers", -1, "Number of worker goroutines, 0 for all cores (overrides run.workers)")
	seed := flag.Uint64("seed", 0, "Root random seed (overrides run.seed when non-zero)")
	mapDir := flag.String("map-dir", "", "Write radio map images of one trial to this directory")
	verbose := flag.Bool("v", false, "Enable debug logging")
	writeConfig := flag.String("write-config", "", "Write the effective configuration to this file and exit")
	flag.Var(overrides, "set", "Override a configuration key, e.g. -set trial.samples=30 (repeatable)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		log.WithError(err).Fatal("invalid -set override")
	}
	if *trials > 0 {
		cfg.Run.Trials = *trials
	}
	if *workers >= 0 {
		cfg.Run.Workers = *workers
	}
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *mapDir != "" {
		cfg.Output.MapDir = *mapDir
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if cfg.Output.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *writeConfig != "" {
		if err := cfg.Validate(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}
		if err := config.SaveConfig(cfg, *writeConfig); err != nil {
			log.WithError(err).Fatal("failed to write configuration")
		}
		fmt.Printf("Configuration written to: %s\n", *writeConfig)
		return
	}

	params, err := simulation.ParamsFromConfig(cfg)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	params.Logger = log
	params.Progress = progressPrinter(params.Trials)

	sim, err := simulation.New(params)
	if err != nil {
		log.WithError(err).Fatal("failed to create simulator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("================================")
	fmt.Println("KRIGING-BASED INTERFERENCE POWER CONSTRAINT")
	fmt.Println("================================")
	fmt.Printf("Trials: %d, samples per trial: %d, target outage: %.3f, SIR threshold: %.1f dB\n",
		params.Trials, params.Samples, params.Rule.TargetOutage, params.Rule.SIRThresholdDb)

	metrics, err := sim.Run(ctx)
	fmt.Fprintln(os.Stderr)
	if err != nil && metrics == nil {
		log.WithError(err).Fatal("simulation failed")
	}
	if err != nil {
		log.WithError(err).Warn("simulation stopped early, reporting completed trials")
	}

	fmt.Println()
	if err := metrics.Report(os.Stdout); err != nil {
		log.WithError(err).Fatal("failed to print report")
	}
	fmt.Printf("Completed in %.2f seconds (run %s)\n", metrics.Duration.Seconds(), metrics.RunID)

	if cfg.Output.MapDir != "" {
		if err := saveRadioMap(ctx, sim, cfg, log); err != nil {
			log.WithError(err).Error("failed to save radio map")
			os.Exit(1)
		}
	}
}

// progressPrinter reports progress on stderr at most every 1% of the trials
func progressPrinter(trials int) simulation.ProgressCallback {
	step := max(trials/100, 1)
	return func(completed, total int, message string) {
		if completed%step != 0 && completed != total {
			return
		}
		progress := float64(completed) / float64(total) * 100
		fmt.Fprintf(os.Stderr, "\rRunning %s: %.1f%% complete", message, progress)
	}
}

// saveRadioMap kriges one trial over the measurement area and writes the
// estimate and standard deviation images
func saveRadioMap(ctx context.Context, sim *simulation.Simulator, cfg *config.Config, log logrus.FieldLogger) error {
	field, outcome, err := sim.Snapshot(cfg.Run.Seed)
	if err != nil {
		return err
	}

	p := sim.Params()
	r := p.Radius
	bound := orb.Bound{
		Min: orb.Point{p.Receiver[0] - r, p.Receiver[1] - r},
		Max: orb.Point{p.Receiver[0] + r, p.Receiver[1] + r},
	}

	start := time.Now()
	m, err := visualization.BuildRadioMap(ctx, field.Kriging, bound, cfg.Output.MapResolution)
	if err != nil {
		return err
	}
	if err := m.Save(cfg.Output.MapDir, field.Samples.Locations()); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"dir":        cfg.Output.MapDir,
		"resolution": cfg.Output.MapResolution,
		"model":      field.Fit.Model.String(),
		"r_squared":  field.Fit.RSquared,
		"error_db":   outcome.ErrorDb,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("radio map saved")
	fmt.Printf("Radio map saved to: %s\n", cfg.Output.MapDir)
	return nil
}
