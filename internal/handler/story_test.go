package handler

import (
	"net/http"
	"testing"

	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStory(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)

	rec := app.do(t, user, http.MethodPost, "/api/stories", createStoryRequest{
		Title: "Lighthouse",
		Body:  prose(400),
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	story := decodeBody[domain.Story](t, rec)
	assert.Equal(t, user.ID, story.UserID)
	assert.Equal(t, 400, story.WordCount)
}

func TestCreateStory_QuotaExhausted(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)
	limit := domain.GetTierLimits(domain.TierFree).StoriesCreated

	for i := int64(0); i < limit; i++ {
		rec := app.do(t, user, http.MethodPost, "/api/stories", createStoryRequest{Title: "T", Body: prose(10)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := app.do(t, user, http.MethodPost, "/api/stories", createStoryRequest{Title: "T", Body: prose(10)})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, domain.ReasonQuotaExceeded, body.Error.Reason)
	require.NotNil(t, body.Error.Remaining)
	assert.Zero(t, *body.Error.Remaining)
}

func TestCreateStory_Validation(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)

	rec := app.do(t, user, http.MethodPost, "/api/stories", createStoryRequest{Body: prose(10)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Contains(t, body.Error.Fields, "title")
}

func TestCreateStory_RejectsUnknownFields(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)

	rec := app.do(t, user, http.MethodPost, "/api/stories", `{"title":"T","body":"b","word_count":9000}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoryRoutes_RequireUser(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/api/stories", "/api/submissions"} {
		rec := app.do(t, nil, http.MethodPost, path, "{}")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := app.do(t, nil, http.MethodGet, "/api/usage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetStory_ForeignStoryIsNotFound(t *testing.T) {
	app := newTestApp(t)
	owner := app.createUser(t, domain.TierFree, false)
	other := app.createUser(t, domain.TierFree, false)
	storyID := app.createStory(t, owner.ID, 100)

	rec := app.do(t, owner, http.MethodGet, "/api/stories/"+storyID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, other, http.MethodGet, "/api/stories/"+storyID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, owner, http.MethodGet, "/api/stories/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestAssessment(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)
	storyID := app.createStory(t, user.ID, 400)
	path := "/api/stories/" + storyID.String() + "/assessments"

	rec := app.do(t, user, http.MethodPost, path, nil)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	story := decodeBody[domain.Story](t, rec)
	assert.Equal(t, domain.AssessmentStatusPending, story.AssessmentStatus)

	jobs := app.store.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, worker.JobTypeAssessStory, jobs[0].JobType)

	// A second request while pending conflicts.
	rec = app.do(t, user, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmit(t *testing.T) {
	app := newTestApp(t)
	comp := app.createMarch(t)
	user := app.createUser(t, domain.TierFree, false)
	storyID := app.createStory(t, user.ID, 500)

	rec := app.do(t, user, http.MethodPost, "/api/submissions", submitRequest{StoryID: storyID})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[domain.SubmissionResult](t, rec)
	assert.Equal(t, comp.ID, result.CompetitionID)
	assert.NotEqual(t, uuid.Nil, result.EntryID)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		words      int
		setup      func(t *testing.T, app *testApp)
		wantStatus int
		wantReason string
	}{
		{
			name:       "no active competition",
			words:      500,
			setup:      func(t *testing.T, app *testApp) {},
			wantStatus: http.StatusConflict,
			wantReason: domain.ReasonNoCompetition,
		},
		{
			name:       "too short",
			words:      20,
			setup:      func(t *testing.T, app *testApp) { app.createMarch(t) },
			wantStatus: http.StatusBadRequest,
			wantReason: domain.ReasonWordCount,
		},
		{
			name:  "judging phase",
			words: 500,
			setup: func(t *testing.T, app *testApp) {
				comp := app.createMarch(t)
				app.fixed.Set(comp.Schedule.JudgingStart.AddDate(0, 0, 1))
			},
			wantStatus: http.StatusConflict,
			wantReason: domain.ReasonPhaseClosed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			user := app.createUser(t, domain.TierFree, false)
			storyID := app.createStory(t, user.ID, tt.words)
			tt.setup(t, app)

			rec := app.do(t, user, http.MethodPost, "/api/submissions", submitRequest{StoryID: storyID})

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantReason, decodeError(t, rec).Error.Reason)
		})
	}
}

func TestSubmit_SecondEntryExceedsQuota(t *testing.T) {
	app := newTestApp(t)
	app.createMarch(t)
	user := app.createUser(t, domain.TierFree, false)
	first := app.createStory(t, user.ID, 500)
	second := app.createStory(t, user.ID, 500)

	rec := app.do(t, user, http.MethodPost, "/api/submissions", submitRequest{StoryID: first})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, user, http.MethodPost, "/api/submissions", submitRequest{StoryID: second})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, domain.ReasonQuotaExceeded, decodeError(t, rec).Error.Reason)
}

func TestSubmit_MissingStoryID(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)

	rec := app.do(t, user, http.MethodPost, "/api/submissions", "{}")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Fields, "story_id")
}

func TestUsage(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, domain.TierFree, false)

	rec := app.do(t, user, http.MethodPost, "/api/stories", createStoryRequest{Title: "T", Body: prose(10)})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, user, http.MethodGet, "/api/usage", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	type usageBody struct {
		MonthKey  domain.MonthKey          `json:"month_key"`
		Limits    domain.Limits            `json:"limits"`
		Remaining map[domain.Counter]int64 `json:"remaining"`
	}
	body := decodeBody[usageBody](t, rec)

	free := domain.GetTierLimits(domain.TierFree)
	assert.Equal(t, domain.MonthKey("2025-03"), body.MonthKey)
	assert.Equal(t, free.StoriesCreated, body.Limits.StoriesCreated)
	assert.Equal(t, free.StoriesCreated-1, body.Remaining[domain.CounterStoriesCreated])
	assert.Len(t, body.Remaining, len(domain.Counters))
}
