package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/di"
	"github.com/mikey/submission-guard/internal/ml"
	"github.com/mikey/submission-guard/internal/ports"
	"github.com/mikey/submission-guard/internal/ratelimit"
	"github.com/mikey/submission-guard/internal/reputation"
	"github.com/spf13/pflag"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to config file")
	pflag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configPath)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type runParams struct {
	dig.In

	Config     *config.Config
	Logger     *zap.Logger
	Intake     ports.Intake
	Reputation *reputation.Store
	Trainer    *ml.Trainer
	Scheduler  *ml.Scheduler
	LLMClient  core.LLMClient
	RateStore  ratelimit.Store
	RepRepo    core.ReputationRepository
	Quarantine core.QuarantineRepository
}

// run is the main application function that gets all dependencies injected
func run(p runParams) error {
	logger := p.Logger
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background maintenance
	p.Reputation.Start()
	trainerDone := make(chan struct{})
	go func() {
		defer close(trainerDone)
		p.Trainer.Run(ctx)
	}()
	if p.Config.GetML().Enabled {
		p.Scheduler.Start()
		logger.Info("Scheduled model retraining", zap.String("schedule", p.Config.GetML().RetrainSchedule))
	}

	// Start the intake
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Intake.Start()
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("Intake stopped unexpectedly", zap.Error(runErr))
		}
	}

	// Stop the intake
	if err := p.Intake.Stop(); err != nil {
		logger.Error("Failed to stop intake", zap.Error(err))
	}

	if p.Config.GetML().Enabled {
		p.Scheduler.Stop()
	}
	cancel()
	<-trainerDone
	p.Reputation.Stop()

	// Close any resources that need closing
	if closer, ok := p.LLMClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
	for _, res := range []interface{}{p.RateStore, p.RepRepo, p.Quarantine} {
		if stopper, ok := res.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}

	logger.Info("Shutdown complete")
	return runErr
}
