package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/submission-guard/internal/adapters/api"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/detector"
	"github.com/mikey/submission-guard/internal/factory"
	"github.com/mikey/submission-guard/internal/iplist"
	"github.com/mikey/submission-guard/internal/logging"
	"github.com/mikey/submission-guard/internal/metrics"
	"github.com/mikey/submission-guard/internal/ml"
	"github.com/mikey/submission-guard/internal/ports"
	"github.com/mikey/submission-guard/internal/ratelimit"
	"github.com/mikey/submission-guard/internal/reputation"
	"github.com/mikey/submission-guard/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// BuildContainer creates and configures a dependency injection container.
// An empty configPath searches the default locations.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register metrics registry
	if err := container.Provide(func() *prometheus.Registry {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(registry)
		return registry
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func() core.DecisionObserver {
		return metrics.Observer{}
	}); err != nil {
		return nil, err
	}

	// Register notifier
	if err := container.Provide(func(f *factory.NotifierFactory) (core.Notifier, error) {
		return f.CreateNotifier()
	}); err != nil {
		return nil, err
	}

	// Register decision engine
	if err := container.Provide(func(
		f *factory.DetectorFactory,
		gates []core.Detector,
		scorers scorerList,
		quarantine core.QuarantineRepository,
		store *reputation.Store,
		trainer *ml.Trainer,
		notifier core.Notifier,
		observer core.DecisionObserver,
	) (*core.DecisionEngine, error) {
		return f.CreateEngine(gates, scorers, factory.EngineCollaborators{
			Quarantine: quarantine,
			Violations: store,
			Feedback:   trainer,
			Notifier:   notifier,
			Observer:   observer,
		})
	}); err != nil {
		return nil, err
	}

	// Register admin service
	if err := container.Provide(func(
		quarantine core.QuarantineRepository,
		trainer *ml.Trainer,
		store *reputation.Store,
		engine *core.DecisionEngine,
		logger *zap.Logger,
	) *core.AdminService {
		return core.NewAdminService(quarantine, trainer, trainer, store, engine, logger)
	}); err != nil {
		return nil, err
	}

	// Register intake
	if err := container.Provide(func(
		cfg *config.Config,
		engine *core.DecisionEngine,
		admin *core.AdminService,
		limiter *ratelimit.Limiter,
		registry *prometheus.Registry,
		logger *zap.Logger,
	) (ports.Intake, error) {
		return api.NewServer(cfg.GetServer(), engine, admin, limiter, registry, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// scorerList distinguishes the scorers from the gates in the container
type scorerList []core.Detector

// provideEngine registers everything the decision pipeline needs except the
// engine itself, which differs between the server and the CLI
func provideEngine(container *dig.Container) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewTextFactory,
		factory.NewStoreFactory,
		factory.NewLLMFactory,
		factory.NewNotifierFactory,
		factory.NewDetectorFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register text processor and lexicon
	if err := container.Provide(func(f *factory.TextFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.TextFactory) (*detector.Lexicon, error) {
		return f.CreateLexicon()
	}); err != nil {
		return err
	}

	// Register repositories
	if err := container.Provide(func(f *factory.StoreFactory) (core.ReputationRepository, error) {
		return f.CreateReputationRepository()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (core.QuarantineRepository, error) {
		return f.CreateQuarantineRepository()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (ratelimit.Store, error) {
		return f.CreateRateLimitStore()
	}); err != nil {
		return err
	}

	// Register rate limiter
	if err := container.Provide(func(cfg *config.Config, store ratelimit.Store, logger *zap.Logger) (*ratelimit.Limiter, error) {
		rl, err := cfg.GetRateLimit()
		if err != nil {
			return nil, err
		}
		return ratelimit.NewLimiter(store, rl, logger)
	}); err != nil {
		return err
	}

	// Register reputation store
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*iplist.Checker, error) {
		lists := cfg.GetIPLists()
		return iplist.NewChecker(lists.Allow, lists.Deny, logger)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		repo core.ReputationRepository,
		lists *iplist.Checker,
		logger *zap.Logger,
	) (*reputation.Store, error) {
		return reputation.NewStore(repo, lists, cfg.GetReputation(), logger)
	}); err != nil {
		return err
	}

	// Register classifier and trainer
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*ml.Classifier, error) {
		return ml.NewClassifier(cfg.GetML().ModelPath, cfg.GetML().Trainer.MinSamples, logger)
	}); err != nil {
		return err
	}
	if err := container.Provide(newTrainer); err != nil {
		return err
	}
	if err := container.Provide(func(cfg *config.Config, trainer *ml.Trainer, logger *zap.Logger) (*ml.Scheduler, error) {
		return ml.NewScheduler(trainer, cfg.GetML().RetrainSchedule, logger)
	}); err != nil {
		return err
	}

	// Register LLM client, nil when the LLM scorer is disabled
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		if !f.Enabled() {
			return nil, nil
		}
		return f.CreateLLMClient()
	}); err != nil {
		return err
	}

	// Register detector pipeline
	if err := container.Provide(func(f *factory.DetectorFactory, limiter *ratelimit.Limiter) []core.Detector {
		return f.CreateGates(limiter)
	}); err != nil {
		return err
	}
	return container.Provide(func(
		f *factory.DetectorFactory,
		lex *detector.Lexicon,
		tp *utils.TextProcessor,
		store *reputation.Store,
		classifier *ml.Classifier,
		llm core.LLMClient,
	) (scorerList, error) {
		return f.CreateScorers(lex, tp, store, classifier, llm)
	})
}

// newTrainer creates the trainer and loads the seed corpus when one is configured
func newTrainer(cfg *config.Config, classifier *ml.Classifier, logger *zap.Logger) (*ml.Trainer, error) {
	mlCfg := cfg.GetML()
	trainer, err := ml.NewTrainer(classifier, mlCfg.Trainer, logger)
	if err != nil {
		return nil, err
	}
	if mlCfg.SeedPath != "" {
		seed, err := ml.LoadSamples(mlCfg.SeedPath)
		if err != nil {
			return nil, err
		}
		for i := range seed {
			seed[i].Source = core.SampleSourceSeed
		}
		trainer.Add(seed...)
		logger.Info("Loaded seed corpus", zap.String("path", mlCfg.SeedPath), zap.Int("samples", len(seed)))
	}
	if active := classifier.Active(); active != nil {
		metrics.SetModelSamples(active.SampleCount)
	}
	trainer.OnRetrain(func(s *ml.Snapshot) {
		metrics.SetModelSamples(s.SampleCount)
	})
	return trainer, nil
}
