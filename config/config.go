// Package config loads the settings of a hostsim run from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sarchlab/hostsim/survey"
)

// DefaultEnvFile is loaded by Load when no file is named and it exists.
const DefaultEnvFile = ".env"

// Config holds the settings of a run.
type Config struct {
	CheckpointDir       string        `env:"HOSTSIM_CHECKPOINT_DIR" envDefault:"."`
	CheckpointBase      string        `env:"HOSTSIM_CHECKPOINT_BASE" envDefault:"checkpoint"`
	CompressCheckpoints bool          `env:"HOSTSIM_COMPRESS_CHECKPOINTS"`
	TestCheckpointing   bool          `env:"HOSTSIM_TEST_CHECKPOINTING"`
	CheckpointInterval  time.Duration `env:"HOSTSIM_CHECKPOINT_INTERVAL" envDefault:"10m"`

	Seed              uint64  `env:"HOSTSIM_SEED" envDefault:"1"`
	PopulationSize    int     `env:"HOSTSIM_POPULATION_SIZE" envDefault:"1000"`
	MaxHostLifespan   int64   `env:"HOSTSIM_MAX_HOST_LIFESPAN" envDefault:"100"`
	InitialPrevalence float64 `env:"HOSTSIM_INITIAL_PREVALENCE" envDefault:"0.05"`
	InfectionRate     float64 `env:"HOSTSIM_INFECTION_RATE" envDefault:"0.3"`
	RecoveryRate      float64 `env:"HOSTSIM_RECOVERY_RATE" envDefault:"0.1"`

	InitDuration         int64   `env:"HOSTSIM_INIT_DURATION" envDefault:"100"`
	ConvergenceTolerance float64 `env:"HOSTSIM_CONVERGENCE_TOLERANCE" envDefault:"0.01"`
	ExtensionSteps       int64   `env:"HOSTSIM_EXTENSION_STEPS" envDefault:"20"`
	MaxExtensions        int     `env:"HOSTSIM_MAX_EXTENSIONS" envDefault:"5"`

	SurveySteps    []int64  `env:"HOSTSIM_SURVEY_STEPS" envSeparator:"," envDefault:"5,10"`
	SurveyMeasures []string `env:"HOSTSIM_SURVEY_MEASURES" envSeparator:"," envDefault:"nHost,nInfect,nTreatments1"`
	Interventions  []string `env:"HOSTSIM_INTERVENTIONS" envSeparator:","`

	OutputPath string `env:"HOSTSIM_OUTPUT_PATH" envDefault:"hostsim"`

	MonitorEnabled bool `env:"HOSTSIM_MONITOR"`
	MonitorPort    int  `env:"HOSTSIM_MONITOR_PORT"`
	OpenMonitor    bool `env:"HOSTSIM_OPEN_MONITOR"`
}

// An Intervention treats every infected host with the given probability at
// an output step.
type Intervention struct {
	Step     int64
	Coverage float64
}

// Load reads the given .env files, or DefaultEnvFile if it exists, and then
// parses the environment. Variables already set in the environment take
// precedence over the files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_, err := os.Stat(DefaultEnvFile)
		if err == nil {
			envFiles = []string{DefaultEnvFile}
		}
	}

	if len(envFiles) > 0 {
		err := godotenv.Load(envFiles...)
		if err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Validate rejects settings that cannot make a run.
func (c Config) Validate() error {
	var errs []error

	if c.CheckpointBase == "" {
		errs = append(errs, errors.New("checkpoint base name is empty"))
	}

	if c.CheckpointInterval < 0 {
		errs = append(errs, errors.New("checkpoint interval is negative"))
	}

	if c.PopulationSize <= 0 {
		errs = append(errs, fmt.Errorf("population size %d is not positive",
			c.PopulationSize))
	}

	if c.MaxHostLifespan < 0 {
		errs = append(errs, fmt.Errorf("max host lifespan %d is negative",
			c.MaxHostLifespan))
	}

	if c.InitDuration < 0 {
		errs = append(errs, fmt.Errorf("init duration %d is negative",
			c.InitDuration))
	}

	if c.ExtensionSteps <= 0 {
		errs = append(errs, fmt.Errorf("extension steps %d is not positive",
			c.ExtensionSteps))
	}

	if c.MaxExtensions < 0 {
		errs = append(errs, fmt.Errorf("max extensions %d is negative",
			c.MaxExtensions))
	}

	errs = append(errs, checkProbability("initial prevalence",
		c.InitialPrevalence))
	errs = append(errs, checkProbability("infection rate", c.InfectionRate))
	errs = append(errs, checkProbability("recovery rate", c.RecoveryRate))

	if c.ConvergenceTolerance <= 0 {
		errs = append(errs, errors.New("convergence tolerance is not positive"))
	}

	if len(c.SurveySteps) == 0 {
		errs = append(errs, errors.New("no survey step"))
	}

	for _, s := range c.SurveySteps {
		if s <= 0 {
			errs = append(errs, fmt.Errorf("survey step %d is not positive", s))
		}
	}

	_, err := survey.LookupMeasures(c.SurveyMeasures)
	errs = append(errs, err)

	_, err = c.ParseInterventions()
	errs = append(errs, err)

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		errs = append(errs, fmt.Errorf("monitor port %d is out of range",
			c.MonitorPort))
	}

	return errors.Join(errs...)
}

func checkProbability(name string, p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%s %g is not in [0, 1]", name, p)
	}

	return nil
}

// ParseInterventions parses the "step:coverage" entries of Interventions,
// sorted by step.
func (c Config) ParseInterventions() ([]Intervention, error) {
	out := make([]Intervention, 0, len(c.Interventions))

	for _, entry := range c.Interventions {
		stepText, coverageText, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return nil, fmt.Errorf("intervention %q is not step:coverage", entry)
		}

		step, err := strconv.ParseInt(stepText, 10, 64)
		if err != nil || step < 0 {
			return nil, fmt.Errorf("intervention %q has an invalid step", entry)
		}

		coverage, err := strconv.ParseFloat(coverageText, 64)
		if err != nil || coverage < 0 || coverage > 1 {
			return nil, fmt.Errorf("intervention %q has an invalid coverage",
				entry)
		}

		out = append(out, Intervention{Step: step, Coverage: coverage})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Step < out[j].Step
	})

	return out, nil
}
