package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/inkwell/internal/auth"
	"github.com/DukeRupert/inkwell/internal/domain"
	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/DukeRupert/inkwell/internal/repository/memory"
	"github.com/DukeRupert/inkwell/internal/service"
	"github.com/DukeRupert/inkwell/internal/timesource"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// march10 falls inside the submission window of the March 2025 competition.
var march10 = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

// testApp wires every handler against one in-memory store. Requests carry
// the acting user in an X-Test-User header instead of a session token.
type testApp struct {
	store *memory.Store
	fixed *timesource.Fixed
	mux   *http.ServeMux

	users        map[uuid.UUID]*domain.User
	ledger       service.QuotaLedger
	competitions service.CompetitionService
	purchases    service.PurchaseService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	fixed := timesource.NewFixed(march10)
	store := memory.New(memory.WithClock(func() time.Time {
		now, _ := fixed.Now(context.Background())
		return now
	}))
	clock := timesource.NewTrusted(fixed, time.UTC, testLogger())
	ledger := service.NewQuotaLedger(store, service.DefaultLedgerConfig(), testLogger())

	app := &testApp{
		store:  store,
		fixed:  fixed,
		mux:    http.NewServeMux(),
		users:  make(map[uuid.UUID]*domain.User),
		ledger: ledger,
		competitions: service.NewCompetitionService(store, clock, nil, service.CompetitionConfig{
			Schedule: domain.DefaultScheduleConfig(),
		}, testLogger()),
		purchases: service.NewPurchaseService(store, testLogger()),
	}

	stories := service.NewStoryService(store, ledger, clock, time.UTC, testLogger())
	submission := service.NewSubmissionService(store, ledger, clock, service.SubmissionConfig{}, testLogger())
	usage := service.NewUsageResetService(store, clock, time.UTC, testLogger())

	NewStoryHandler(stories, submission, ledger, clock, time.UTC, testLogger()).RegisterRoutes(app.mux, app.requireUser)
	NewCompetitionHandler(app.competitions, testLogger()).RegisterRoutes(app.mux, app.requireUser, app.requireAdmin)
	NewCronHandler(app.competitions, usage, clock, testLogger()).RegisterRoutes(app.mux, func(h http.Handler) http.Handler { return h })
	NewHealthHandler(nil, testLogger()).RegisterRoutes(app.mux)
	return app
}

func (a *testApp) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(r.Header.Get("X-Test-User")); err == nil {
			if u, ok := a.users[id]; ok {
				r = r.WithContext(auth.SetUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *testApp) requireUser(next http.Handler) http.Handler {
	return a.withUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUserFromRequest(r) == nil {
			UnauthorizedResponse(w, r, testLogger())
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (a *testApp) requireAdmin(next http.Handler) http.Handler {
	return a.requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.GetUserFromRequest(r).IsAdmin {
			ForbiddenResponse(w, r, testLogger())
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (a *testApp) createUser(t *testing.T, tier domain.Tier, admin bool) *domain.User {
	t.Helper()
	row, err := a.store.CreateUser(context.Background(), repository.CreateUserParams{
		Email:   uuid.NewString() + "@example.com",
		Name:    "Writer",
		Tier:    string(tier),
		IsAdmin: admin,
	})
	require.NoError(t, err)
	u := &domain.User{ID: row.ID, Email: row.Email, Name: row.Name, Tier: tier, IsAdmin: admin}
	a.users[u.ID] = u
	return u
}

func (a *testApp) createStory(t *testing.T, userID uuid.UUID, words int) uuid.UUID {
	t.Helper()
	body := prose(words)
	s, err := a.store.CreateStory(context.Background(), repository.CreateStoryParams{
		UserID:    userID,
		Title:     "A story",
		Body:      body,
		WordCount: int32(domain.CountWords(body)),
	})
	require.NoError(t, err)
	return s.ID
}

func (a *testApp) createMarch(t *testing.T) *domain.Competition {
	t.Helper()
	comp, _, err := a.competitions.CreateMonthly(context.Background(), domain.CreateCompetitionParams{
		Year:  2025,
		Month: time.March,
	})
	require.NoError(t, err)
	return comp
}

// do sends a request as user (nil for anonymous) and returns the recorder.
func (a *testApp) do(t *testing.T, user *domain.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("X-Test-User", user.ID.String())
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func prose(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}
