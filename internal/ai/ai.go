package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/google/uuid"
)

// Provider scores stories against the judging criteria.
type Provider interface {
	// AssessStory reads a story and returns per-criterion scores with
	// written feedback.
	AssessStory(ctx context.Context, params AssessStoryParams) (*AssessmentResult, error)
}

// AssessStoryParams contains parameters for a story assessment
type AssessStoryParams struct {
	StoryID uuid.UUID // Story ID for tracking
	UserID  uuid.UUID // Owner, for logging only
	Title   string
	Body    string
	Theme   string // Optional competition theme for prompt adherence
}

// AssessmentResult contains a scored assessment of one story
type AssessmentResult struct {
	Scores   domain.CriterionScores
	Feedback string
	Usage    UsageInfo
}

// Assessment converts the result to the stored domain form.
func (r *AssessmentResult) Assessment() domain.Assessment {
	return domain.Assessment{
		Scores:   r.Scores,
		Feedback: r.Feedback,
		Model:    r.Usage.Model,
	}
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// MaxScore is the top of the per-criterion scale.
const MaxScore = 10.0

// ValidateScores checks every criterion score lies in [0, MaxScore].
func ValidateScores(s domain.CriterionScores) error {
	scores := []struct {
		name  string
		value float64
	}{
		{"creativity", s.Creativity},
		{"prose", s.Prose},
		{"structure", s.Structure},
		{"prompt_adherence", s.PromptAdherence},
	}
	for _, sc := range scores {
		if math.IsNaN(sc.value) || sc.value < 0 || sc.value > MaxScore {
			return fmt.Errorf("%w: %s score %v out of range", EAIMalformed, sc.name, sc.value)
		}
	}
	return nil
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidInput indicates the story could not be sent for assessment
	EAIInvalidInput = errors.New("invalid story for assessment")

	// EAIMalformed indicates the model returned output we could not use
	EAIMalformed = errors.New("malformed assessment output")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
