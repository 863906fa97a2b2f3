package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/inkwell/internal/ai"
	"github.com/DukeRupert/inkwell/internal/domain"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	AssessStoryResponse *ai.AssessmentResult
	AssessStoryError    error

	// Call tracking for testing
	AssessStoryCalls int
	LastParams       ai.AssessStoryParams
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// AssessStory returns a canned assessment
func (p *Provider) AssessStory(ctx context.Context, params ai.AssessStoryParams) (*ai.AssessmentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.AssessStoryCalls++
	p.LastParams = params

	if p.AssessStoryError != nil {
		return nil, p.AssessStoryError
	}
	if p.AssessStoryResponse != nil {
		r := *p.AssessStoryResponse
		return &r, nil
	}

	// Scores vary with length so development data is not uniform.
	words := domain.CountWords(params.Body)
	structure := 5 + float64(words%5)
	return &ai.AssessmentResult{
		Scores: domain.CriterionScores{
			Creativity:      7,
			Prose:           6.5,
			Structure:       structure,
			PromptAdherence: 8,
		},
		Feedback: "A confident opening. The middle section loses momentum; consider cutting the second flashback.",
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  1250,
			OutputTokens: 180,
			Duration:     50 * time.Millisecond,
		},
	}, nil
}

// Calls returns the number of AssessStory calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AssessStoryCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AssessStoryCalls = 0
	p.AssessStoryResponse = nil
	p.AssessStoryError = nil
	p.LastParams = ai.AssessStoryParams{}
}
