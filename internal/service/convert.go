package service

import (
	"encoding/json"
	"time"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
)

// repoUserToDomain converts a repository.User to domain.User.
func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Tier:      domain.Tier(u.Tier),
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

func repoUsageToDomain(u repository.UsageCounter) domain.UsageCounters {
	return domain.UsageCounters{
		UserID:             u.UserID,
		MonthKey:           domain.MonthKey(u.MonthKey),
		StoriesCreated:     int64(u.StoriesCreated),
		AssessmentUploads:  int64(u.AssessmentUploads),
		AssessmentAttempts: int64(u.AssessmentAttempts),
		CompetitionEntries: int64(u.CompetitionEntries),
	}
}

// repoPurchaseToDomain decodes the bonus payload. Fields missing from the
// stored JSON decode as zero.
func repoPurchaseToDomain(p repository.Purchase) (domain.PurchaseRecord, error) {
	var bonus domain.Bonus
	if len(p.Bonus) > 0 {
		if err := json.Unmarshal(p.Bonus, &bonus); err != nil {
			return domain.PurchaseRecord{}, err
		}
	}
	return domain.PurchaseRecord{
		ID:           p.ID,
		UserID:       p.UserID,
		Type:         domain.PurchaseType(p.PurchaseType),
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		PurchaseDate: p.PurchaseDate,
		Bonus:        bonus,
		ExternalID:   p.ExternalID.String,
	}, nil
}

func repoCompetitionToDomain(c repository.Competition) (*domain.Competition, error) {
	comp := &domain.Competition{
		ID:         c.ID,
		Slug:       c.Slug,
		Month:      c.Month,
		Year:       int(c.Year),
		Phase:      domain.Phase(c.Phase),
		IsActive:   c.IsActive,
		IsArchived: c.IsArchived,
		Schedule: domain.Schedule{
			SubmissionStart: c.SubmissionStart,
			SubmissionEnd:   c.SubmissionEnd,
			JudgingStart:    c.JudgingStart,
			JudgingEnd:      c.JudgingEnd,
			ResultsDate:     c.ResultsDate,
		},
		TotalSubmissions:  int64(c.TotalSubmissions),
		TotalParticipants: int64(c.TotalParticipants),
		Winners:           []domain.Winner{},
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if err := json.Unmarshal(c.JudgingCriteria, &comp.JudgingCriteria); err != nil {
		return nil, err
	}
	if c.Winners.Valid && len(c.Winners.RawMessage) > 0 {
		if err := json.Unmarshal(c.Winners.RawMessage, &comp.Winners); err != nil {
			return nil, err
		}
	}
	return comp, nil
}

func repoEntryToDomain(e repository.Entry) domain.Entry {
	entry := domain.Entry{
		ID:               e.ID,
		CompetitionID:    e.CompetitionID,
		UserID:           e.UserID,
		StoryID:          e.StoryID,
		WordCount:        int(e.WordCount),
		SubmittedAt:      e.SubmittedAt,
		IsWinner:         e.IsWinner,
		AssessmentStatus: domain.AssessmentStatus(e.AssessmentStatus),
	}
	if e.Score.Valid {
		score := e.Score.Float64
		entry.Score = &score
	}
	if e.Rank.Valid {
		rank := int(e.Rank.Int32)
		entry.Rank = &rank
	}
	return entry
}

func repoStoryToDomain(s repository.Story) *domain.Story {
	story := &domain.Story{
		ID:               s.ID,
		UserID:           s.UserID,
		Title:            s.Title,
		Body:             s.Body,
		WordCount:        int(s.WordCount),
		AssessmentStatus: domain.AssessmentStatus(s.AssessmentStatus),
		CreatedAt:        s.CreatedAt,
	}
	if s.Score.Valid {
		score := s.Score.Float64
		story.Score = &score
	}
	return story
}

// monthName returns the English month name stored as the competition identity.
func monthName(m time.Month) string {
	return m.String()
}
