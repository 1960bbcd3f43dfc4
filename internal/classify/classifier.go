// Package classify turns an extracted document into semantic labels.
package classify

//go:generate mockgen -source=classifier.go -destination=mocks/mock_classifier.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// ErrClassification wraps every failure to label a document.
var ErrClassification = errors.New("classification failed")

// Classifier labels one document.
type Classifier interface {
	Classify(ctx context.Context, doc *analysis.Document) (domain.Semantics, error)
}

// New returns the classifier selected by cfg.Provider.
func New(cfg config.ClassifierConfig, log logger.Logger) (Classifier, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewLLMClassifier(cfg, log), nil
	case config.ProviderHeuristic:
		return NewHeuristicClassifier(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

func wrapClassification(err error) error {
	return fmt.Errorf("%w: %w", ErrClassification, err)
}
