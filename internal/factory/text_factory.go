package factory

import (
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/detector"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// TextFactory creates the text processor and the content lexicon
type TextFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTextFactory creates a new TextFactory
func NewTextFactory(cfg *config.Config, logger *zap.Logger) *TextFactory {
	return &TextFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *TextFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateLexicon loads the configured lexicon file, or the built-in lists when none is set
func (f *TextFactory) CreateLexicon() (*detector.Lexicon, error) {
	path := f.cfg.GetLexiconPath()
	if path == "" {
		return detector.DefaultLexicon(), nil
	}
	lex, err := detector.LoadLexicon(path)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Loaded lexicon",
		zap.String("path", path),
		zap.Int("categories", len(lex.Categories)),
		zap.Int("blocked_domains", len(lex.BlockedDomains)))
	return lex, nil
}
