package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/di"
	"github.com/mikey/submission-guard/internal/ml"
	"go.uber.org/zap"
)

func main() {
	flags, err := di.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nUsage: guardctl evaluate [-f submission.json] | guardctl train -s samples.yaml [--model model.json]\n", err)
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	var cmd interface{} = evaluate
	if flags.Command == di.CommandTrain {
		cmd = train
	}
	if err := container.Invoke(cmd); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// evaluate runs one submission through the full detector pipeline
func evaluate(flags *di.CLIFlags, engine *core.DecisionEngine, llmClient core.LLMClient, logger *zap.Logger) error {
	defer logger.Sync()

	var reader io.Reader = os.Stdin
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
		logger.Info("Reading submission from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading submission from stdin")
	}

	var sub core.Submission
	if err := json.NewDecoder(reader).Decode(&sub); err != nil {
		return fmt.Errorf("failed to parse submission: %w", err)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = time.Now()
	}

	decision, err := engine.Evaluate(context.Background(), &sub)
	if err != nil {
		return fmt.Errorf("failed to evaluate submission: %w", err)
	}

	if closer, ok := llmClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}

	if flags.JSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(decision)
	}

	fmt.Printf("\n=== Submission ===\n")
	fmt.Printf("Form: %s\n", sub.FormKey)
	fmt.Printf("Source IP: %s\n", sub.SourceIP)
	fmt.Printf("Text length: %s characters\n", humanize.Comma(int64(len([]rune(sub.Text())))))

	fmt.Printf("\n=== Decision ===\n")
	fmt.Printf("Outcome: %s\n", strings.ToUpper(string(decision.Outcome)))
	fmt.Printf("Combined score: %s\n", humanize.FtoaWithDigits(decision.CombinedScore, 4))
	fmt.Printf("Degraded: %t\n", decision.Degraded)
	if decision.ModelVersion != "" {
		fmt.Printf("Model version: %s\n", decision.ModelVersion)
	}
	fmt.Printf("Processing time: %v\n", decision.Latency)

	fmt.Printf("\n=== Evidence ===\n")
	for _, s := range decision.Signals {
		state := humanize.FtoaWithDigits(s.Score, 3)
		switch {
		case !s.Available:
			state = "n/a"
		case s.HardRule:
			state = "hard rule"
		}
		fmt.Printf("%-12s %-10s %s\n", s.Detector, state, s.Reason)
	}
	return nil
}

// train fits a model snapshot from a labelled sample file and writes it to the model path
func train(flags *di.CLIFlags, cfg *config.Config, logger *zap.Logger) error {
	defer logger.Sync()

	samples, err := ml.LoadSamples(flags.SamplesFile)
	if err != nil {
		return err
	}
	logger.Info("Loaded training samples", zap.String("file", flags.SamplesFile), zap.Int("samples", len(samples)))

	mlCfg := cfg.GetML()
	start := time.Now()
	snapshot, err := ml.Train(samples, ml.TrainOptions{
		MinSamples:       mlCfg.Trainer.MinSamples,
		MinWordFrequency: mlCfg.Trainer.MinWordFrequency,
		Now:              start,
	})
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}

	if err := ml.SaveSnapshot(mlCfg.ModelPath, snapshot); err != nil {
		return err
	}
	info, err := os.Stat(mlCfg.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to stat model snapshot: %w", err)
	}

	fmt.Printf("\n=== Model ===\n")
	fmt.Printf("Version: %s\n", snapshot.Version)
	fmt.Printf("Samples: %s (%s spam, %s ham)\n",
		humanize.Comma(int64(snapshot.SampleCount)),
		humanize.Comma(int64(snapshot.SpamSamples)),
		humanize.Comma(int64(snapshot.HamSamples)))
	fmt.Printf("Vocabulary: %s words\n", humanize.Comma(int64(snapshot.VocabularySize)))
	fmt.Printf("Written to: %s (%s)\n", mlCfg.ModelPath, humanize.Bytes(uint64(info.Size())))
	fmt.Printf("Training time: %v\n", time.Since(start))
	return nil
}
