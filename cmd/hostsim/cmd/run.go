package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/hostsim/checkpoint"
	"github.com/sarchlab/hostsim/config"
	"github.com/sarchlab/hostsim/datarecording"
	"github.com/sarchlab/hostsim/examples/sis"
	"github.com/sarchlab/hostsim/monitoring"
	"github.com/sarchlab/hostsim/rng"
	"github.com/sarchlab/hostsim/sim"
	"github.com/sarchlab/hostsim/simulation"
	"github.com/sarchlab/hostsim/survey"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation, resuming from the last checkpoint if any.",
	Long: "Run a simulation. If the checkpoint directory holds a checkpoint, " +
		"the run resumes from it. Settings come from HOSTSIM_* environment " +
		"variables and .env files; flags override both.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		err = applyRunFlags(cmd, &cfg)
		if err != nil {
			return err
		}

		err = cfg.Validate()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		verbose, _ := cmd.Flags().GetBool("verbose")

		return runSimulation(cfg, verbose)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("checkpoint-dir", "", "Directory of the checkpoint files")
	f.String("checkpoint-base", "", "Base name of the checkpoint files")
	f.Bool("compress", false, "Write gzip-compressed checkpoints")
	f.Bool("test-checkpointing", false,
		"Stop halfway through warm-up after writing a checkpoint")
	f.Duration("checkpoint-interval", 0,
		"Wall-clock time between two checkpoints")
	f.Uint64("seed", 0, "Seed of the random number stream")
	f.String("output", "", "Path of the output database, without extension")
	f.Bool("monitor", false, "Serve the progress of the run over HTTP")
	f.Int("monitor-port", 0, "Port of the monitor, random if 0")
	f.Bool("open-monitor", false, "Open the monitor in a browser")
	f.Bool("verbose", false, "Log every step")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	var err error

	set := func(name string, apply func() error) {
		if err != nil || !f.Changed(name) {
			return
		}

		err = apply()
	}

	set("checkpoint-dir", func() (e error) {
		cfg.CheckpointDir, e = f.GetString("checkpoint-dir")
		return e
	})
	set("checkpoint-base", func() (e error) {
		cfg.CheckpointBase, e = f.GetString("checkpoint-base")
		return e
	})
	set("compress", func() (e error) {
		cfg.CompressCheckpoints, e = f.GetBool("compress")
		return e
	})
	set("test-checkpointing", func() (e error) {
		cfg.TestCheckpointing, e = f.GetBool("test-checkpointing")
		return e
	})
	set("checkpoint-interval", func() (e error) {
		cfg.CheckpointInterval, e = f.GetDuration("checkpoint-interval")
		return e
	})
	set("seed", func() (e error) {
		cfg.Seed, e = f.GetUint64("seed")
		return e
	})
	set("output", func() (e error) {
		cfg.OutputPath, e = f.GetString("output")
		return e
	})
	set("monitor", func() (e error) {
		cfg.MonitorEnabled, e = f.GetBool("monitor")
		return e
	})
	set("monitor-port", func() (e error) {
		cfg.MonitorPort, e = f.GetInt("monitor-port")
		return e
	})
	set("open-monitor", func() (e error) {
		cfg.OpenMonitor, e = f.GetBool("open-monitor")
		return e
	})

	if cfg.OpenMonitor {
		cfg.MonitorEnabled = true
	}

	return err
}

func newStore(cfg config.Config, random *rng.Source, logger *log.Logger) *checkpoint.Store {
	return checkpoint.NewStore(cfg.CheckpointDir, cfg.CheckpointBase).
		WithCompression(cfg.CompressCheckpoints).
		WithRandomState(random).
		WithLogger(logger)
}

func newRandom(cfg config.Config) *rng.Source {
	return rng.NewSource(cfg.Seed, cfg.CheckpointDir, cfg.CheckpointBase+"_rng")
}

func runSimulation(cfg config.Config, verbose bool) error {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	err := os.MkdirAll(cfg.CheckpointDir, 0o755)
	if err != nil {
		return err
	}

	interventions, err := cfg.ParseInterventions()
	if err != nil {
		return err
	}

	surveys, err := survey.New(cfg.SurveySteps, cfg.SurveyMeasures)
	if err != nil {
		return err
	}

	random := newRandom(cfg)

	population, transmission := sis.MakeBuilder().
		WithRandom(random).
		WithSurveys(surveys).
		WithSize(cfg.PopulationSize).
		WithMaxLifespan(cfg.MaxHostLifespan).
		WithInitialPrevalence(cfg.InitialPrevalence).
		WithInfectionRate(cfg.InfectionRate).
		WithRecoveryRate(cfg.RecoveryRate).
		WithInterventions(toSISInterventions(interventions)).
		WithInitDuration(cfg.InitDuration).
		WithConvergence(cfg.ConvergenceTolerance, cfg.ExtensionSteps,
			cfg.MaxExtensions).
		Build()

	store := newStore(cfg, random, logger)

	monitor := monitoring.NewMonitor().
		WithPortNumber(cfg.MonitorPort).
		WithCheckpointInterval(cfg.CheckpointInterval)
	store.AcceptHook(monitor)

	stepLogger := sim.NewStepLogger(logger)
	if !verbose {
		stepLogger = stepLogger.PhaseChangesOnly()
	}

	s := simulation.MakeBuilder().
		WithPopulation(population).
		WithTransmissionModel(transmission).
		WithSurveySchedule(surveys).
		WithProgressSink(monitor).
		WithCheckpointStore(store).
		WithMaxHostLifespan(cfg.MaxHostLifespan).
		WithTestCheckpointing(cfg.TestCheckpointing).
		WithHook(monitor).
		WithHook(stepLogger).
		WithLogger(logger).
		Build()

	recorder := datarecording.New(cfg.OutputPath)
	defer recorder.Close()

	surveys.WithRecorder(recorder, s.ID)
	store.AcceptHook(checkpoint.NewRecordingHook(recorder, s.ID))

	if cfg.MonitorEnabled {
		url, err := monitor.StartServer()
		if err != nil {
			return err
		}
		defer monitor.StopServer(context.Background())

		if cfg.OpenMonitor {
			err = browser.OpenURL(url)
			if err != nil {
				logger.Printf("cannot open browser: %v", err)
			}
		}
	}

	outcome, err := s.Run()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Run %s %s\n", s.ID(), outcome)

	if _, ok := outcome.(simulation.Completed); ok && cfg.OutputPath != "" {
		fmt.Fprintf(os.Stderr, "Results written to %s\n",
			filepath.Clean(cfg.OutputPath+".sqlite3"))
	}

	return nil
}

func toSISInterventions(ivs []config.Intervention) []sis.Intervention {
	out := make([]sis.Intervention, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, sis.Intervention{Step: iv.Step, Coverage: iv.Coverage})
	}

	return out
}
