package analysis

import (
	"context"
	"log/slog"
	"time"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// Service tries its analyzers in order and degrades to the neutral default
// when all of them fail. It never returns an error.
type Service struct {
	analyzers []ports.Analyzer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService chains analyzers; timeout bounds each attempt when positive.
func NewService(logger *slog.Logger, timeout time.Duration, analyzers ...ports.Analyzer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{analyzers: analyzers, timeout: timeout, logger: logger}
}

// Analyze returns the first successful analysis or domain.DefaultAnalysis.
func (s *Service) Analyze(ctx context.Context, article domain.Article) domain.AnalysisResult {
	for _, analyzer := range s.analyzers {
		result, err := s.run(ctx, analyzer, article)
		if err == nil {
			if result.Topics == nil {
				result.Topics = []string{}
			}
			return result
		}
		s.logger.Warn("analysis failed", "url", article.URL, "error", err)
	}
	return domain.DefaultAnalysis()
}

func (s *Service) run(ctx context.Context, analyzer ports.Analyzer, article domain.Article) (domain.AnalysisResult, error) {
	if s.timeout <= 0 {
		return analyzer.Analyze(ctx, article)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return analyzer.Analyze(callCtx, article)
}
