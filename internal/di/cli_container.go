package di

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/factory"
	"github.com/mikey/submission-guard/internal/logging"
	"github.com/mikey/submission-guard/internal/reputation"
)

// CLI commands
const (
	CommandEvaluate = "evaluate"
	CommandTrain    = "train"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	Command string

	// Input flags
	InputFile   string
	SamplesFile string
	ConfigFile  string

	// Model flags
	ModelPath  string
	MinSamples int

	// LLM flags
	EnableLLM bool
	Provider  string

	// Output flags
	Verbose    bool
	JSONLog    bool
	JSONOutput bool
}

// ParseFlags parses the command and its flags from args, without the program name
func ParseFlags(args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	if len(args) == 0 {
		return nil, fmt.Errorf("a command is required: %s or %s", CommandEvaluate, CommandTrain)
	}
	flags.Command = args[0]
	if flags.Command != CommandEvaluate && flags.Command != CommandTrain {
		return nil, fmt.Errorf("unknown command %q", flags.Command)
	}

	fs := pflag.NewFlagSet(flags.Command, pflag.ContinueOnError)

	fs.StringVarP(&flags.InputFile, "file", "f", "", "Submission JSON file (use stdin if not specified)")
	fs.StringVarP(&flags.SamplesFile, "samples", "s", "", "Labelled training samples, JSON or YAML")
	fs.StringVarP(&flags.ConfigFile, "config", "c", "", "Path to config file")

	fs.StringVar(&flags.ModelPath, "model", "", "Model snapshot path (overrides ml.model_path)")
	fs.IntVar(&flags.MinSamples, "min-samples", 0, "Minimum training samples (overrides ml.min_training_samples)")

	fs.BoolVar(&flags.EnableLLM, "llm", false, "Enable the LLM scorer")
	fs.StringVar(&flags.Provider, "provider", "", "LLM provider (bedrock, gemini, openai)")

	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.BoolVar(&flags.JSONOutput, "json", false, "Print the result as JSON")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if flags.Command == CommandTrain && flags.SamplesFile == "" {
		return nil, fmt.Errorf("--samples is required for %s", CommandTrain)
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := configFromFlags(flags)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		return cfg, cfg.Validate()
	}); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register decision engine without quarantine or notifications
	if err := container.Provide(func(
		f *factory.DetectorFactory,
		gates []core.Detector,
		scorers scorerList,
		store *reputation.Store,
	) (*core.DecisionEngine, error) {
		return f.CreateEngine(gates, scorers, factory.EngineCollaborators{Violations: store})
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// configFromFlags loads the configuration and pins every store to memory so
// that a CLI run never touches shared state
func configFromFlags(flags *CLIFlags) (*config.Config, error) {
	v := config.NewEmptyViper()
	if flags.ConfigFile != "" {
		cfg, err := config.Load(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		v = cfg.GetViper()
	}

	v.Set("ratelimit.store", "memory")
	v.Set("ratelimit.cleanup_frequency", "0s")
	v.Set("reputation.store", "memory")
	v.Set("quarantine.store", "memory")
	v.Set("notify.enabled", false)
	v.Set("ml.corpus_path", "")

	if flags.ModelPath != "" {
		v.Set("ml.model_path", flags.ModelPath)
	}
	if flags.MinSamples > 0 {
		v.Set("ml.min_training_samples", flags.MinSamples)
	}
	if flags.EnableLLM {
		v.Set("llm.enabled", true)
	}
	if flags.Provider != "" {
		v.Set("llm.provider", flags.Provider)
	}

	return config.NewFromViper(v), nil
}
