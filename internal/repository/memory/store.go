// Package memory provides an in-process repository.Store.
//
// It honors the same conditional-update semantics as the Postgres queries
// (compare-and-set phases, limit-guarded increments, unique constraints) so
// services behave identically against either store. Transactions are
// serialized and rolled back with an undo log.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/inkwell/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type state struct {
	mu   sync.Mutex
	txMu sync.Mutex
	now  func() time.Time

	users        map[uuid.UUID]repository.User
	sessions     map[string]repository.Session
	usage        map[uuid.UUID]repository.UsageCounter
	purchases    map[uuid.UUID]repository.Purchase
	competitions map[uuid.UUID]repository.Competition
	stories      map[uuid.UUID]repository.Story
	entries      map[uuid.UUID]repository.Entry
	jobs         map[uuid.UUID]repository.Job

	failures map[string]error
}

// Store is an in-memory repository.Store. The zero value is not usable; call New.
type Store struct {
	st   *state
	undo *[]func()
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*state)

// WithClock sets the clock used for timestamps and job scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *state) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	st := &state{
		now:          time.Now,
		users:        make(map[uuid.UUID]repository.User),
		sessions:     make(map[string]repository.Session),
		usage:        make(map[uuid.UUID]repository.UsageCounter),
		purchases:    make(map[uuid.UUID]repository.Purchase),
		competitions: make(map[uuid.UUID]repository.Competition),
		stories:      make(map[uuid.UUID]repository.Story),
		entries:      make(map[uuid.UUID]repository.Entry),
		jobs:         make(map[uuid.UUID]repository.Job),
		failures:     make(map[string]error),
	}
	for _, opt := range opts {
		opt(st)
	}
	return &Store{st: st}
}

// FailOn makes the named query return err until cleared with a nil err.
func (s *Store) FailOn(query string, err error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err == nil {
		delete(s.st.failures, query)
		return
	}
	s.st.failures[query] = err
}

// ExecTx runs fn with a transactional view of the store. Writes made through
// that view are undone if fn returns an error.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	if s.undo != nil {
		return fn(s)
	}

	s.st.txMu.Lock()
	defer s.st.txMu.Unlock()

	var undo []func()
	tx := &Store{st: s.st, undo: &undo}
	if err := fn(tx); err != nil {
		s.st.mu.Lock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.st.mu.Unlock()
		return err
	}
	return nil
}

// lock acquires the state mutex and returns the injected failure for query, if any.
func (s *Store) lock(query string) error {
	s.st.mu.Lock()
	return s.st.failures[query]
}

func (s *Store) unlock() {
	s.st.mu.Unlock()
}

// remember records the prior value of table[key] so a failed transaction can
// restore it. Must be called with the state mutex held.
func remember[K comparable, V any](s *Store, table map[K]V, key K) {
	if s.undo == nil {
		return
	}
	old, existed := table[key]
	*s.undo = append(*s.undo, func() {
		if existed {
			table[key] = old
		} else {
			delete(table, key)
		}
	})
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: constraint,
	}
}

// =============================================================================
// Users and sessions
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error) {
	if err := s.lock("CreateUser"); err != nil {
		s.unlock()
		return repository.User{}, err
	}
	defer s.unlock()

	for _, u := range s.st.users {
		if u.Email == arg.Email {
			return repository.User{}, uniqueViolation("users_email_key")
		}
	}
	tier := arg.Tier
	if tier == "" {
		tier = "free"
	}
	u := repository.User{
		ID:        uuid.New(),
		Email:     arg.Email,
		Name:      arg.Name,
		Tier:      tier,
		IsAdmin:   arg.IsAdmin,
		CreatedAt: s.st.now(),
	}
	remember(s, s.st.users, u.ID)
	s.st.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	if err := s.lock("GetUserByID"); err != nil {
		s.unlock()
		return repository.User{}, err
	}
	defer s.unlock()

	u, ok := s.st.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) CreateSession(ctx context.Context, arg repository.CreateSessionParams) (repository.Session, error) {
	if err := s.lock("CreateSession"); err != nil {
		s.unlock()
		return repository.Session{}, err
	}
	defer s.unlock()

	if _, ok := s.st.sessions[arg.TokenHash]; ok {
		return repository.Session{}, uniqueViolation("sessions_token_hash_key")
	}
	sess := repository.Session{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		TokenHash: arg.TokenHash,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: s.st.now(),
	}
	remember(s, s.st.sessions, sess.TokenHash)
	s.st.sessions[sess.TokenHash] = sess
	return sess, nil
}

func (s *Store) GetSessionUser(ctx context.Context, arg repository.GetSessionUserParams) (repository.User, error) {
	if err := s.lock("GetSessionUser"); err != nil {
		s.unlock()
		return repository.User{}, err
	}
	defer s.unlock()

	sess, ok := s.st.sessions[arg.TokenHash]
	if !ok || !sess.ExpiresAt.After(arg.Now) {
		return repository.User{}, sql.ErrNoRows
	}
	u, ok := s.st.users[sess.UserID]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

// =============================================================================
// Usage counters
// =============================================================================

func counterField(u *repository.UsageCounter, counter string) *int32 {
	switch counter {
	case "stories_created":
		return &u.StoriesCreated
	case "assessment_uploads":
		return &u.AssessmentUploads
	case "assessment_attempts":
		return &u.AssessmentAttempts
	case "competition_entries":
		return &u.CompetitionEntries
	}
	return nil
}

func (s *Store) EnsureUsageCounter(ctx context.Context, arg repository.EnsureUsageCounterParams) error {
	if err := s.lock("EnsureUsageCounter"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	if _, ok := s.st.usage[arg.UserID]; ok {
		return nil
	}
	remember(s, s.st.usage, arg.UserID)
	s.st.usage[arg.UserID] = repository.UsageCounter{
		UserID:    arg.UserID,
		MonthKey:  arg.MonthKey,
		UpdatedAt: s.st.now(),
	}
	return nil
}

func (s *Store) GetUsageCounter(ctx context.Context, userID uuid.UUID) (repository.UsageCounter, error) {
	if err := s.lock("GetUsageCounter"); err != nil {
		s.unlock()
		return repository.UsageCounter{}, err
	}
	defer s.unlock()

	u, ok := s.st.usage[userID]
	if !ok {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) resetUsage(u repository.UsageCounter, monthKey string) repository.UsageCounter {
	return repository.UsageCounter{
		UserID:    u.UserID,
		MonthKey:  monthKey,
		Version:   u.Version + 1,
		UpdatedAt: s.st.now(),
	}
}

func (s *Store) ResetStaleUsageCounter(ctx context.Context, arg repository.ResetStaleUsageCounterParams) (int64, error) {
	if err := s.lock("ResetStaleUsageCounter"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	u, ok := s.st.usage[arg.UserID]
	if !ok || u.MonthKey >= arg.MonthKey {
		return 0, nil
	}
	remember(s, s.st.usage, arg.UserID)
	s.st.usage[arg.UserID] = s.resetUsage(u, arg.MonthKey)
	return 1, nil
}

func (s *Store) ResetUsageCountersBefore(ctx context.Context, monthKey string) (int64, error) {
	if err := s.lock("ResetUsageCountersBefore"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	var n int64
	for id, u := range s.st.usage {
		if u.MonthKey >= monthKey {
			continue
		}
		remember(s, s.st.usage, id)
		s.st.usage[id] = s.resetUsage(u, monthKey)
		n++
	}
	return n, nil
}

func (s *Store) IncrementUsageCounter(ctx context.Context, arg repository.IncrementUsageCounterParams) (repository.UsageCounter, error) {
	if err := s.lock("IncrementUsageCounter"); err != nil {
		s.unlock()
		return repository.UsageCounter{}, err
	}
	defer s.unlock()

	u, ok := s.st.usage[arg.UserID]
	if !ok || u.MonthKey != arg.MonthKey {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	field := counterField(&u, arg.Counter)
	if field == nil || *field >= arg.Limit {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	*field++
	u.Version++
	u.UpdatedAt = s.st.now()

	remember(s, s.st.usage, arg.UserID)
	s.st.usage[arg.UserID] = u
	return u, nil
}

func (s *Store) DecrementUsageCounter(ctx context.Context, arg repository.DecrementUsageCounterParams) (int64, error) {
	if err := s.lock("DecrementUsageCounter"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	u, ok := s.st.usage[arg.UserID]
	if !ok || u.MonthKey != arg.MonthKey {
		return 0, nil
	}
	if field := counterField(&u, arg.Counter); field != nil && *field > 0 {
		*field--
	}
	u.Version++
	u.UpdatedAt = s.st.now()

	remember(s, s.st.usage, arg.UserID)
	s.st.usage[arg.UserID] = u
	return 1, nil
}

// =============================================================================
// Purchases
// =============================================================================

func (s *Store) CreatePurchase(ctx context.Context, arg repository.CreatePurchaseParams) (repository.Purchase, error) {
	if err := s.lock("CreatePurchase"); err != nil {
		s.unlock()
		return repository.Purchase{}, err
	}
	defer s.unlock()

	if arg.ExternalID.Valid {
		for _, p := range s.st.purchases {
			if p.ExternalID.Valid && p.ExternalID.String == arg.ExternalID.String {
				return repository.Purchase{}, uniqueViolation("purchases_external_id_key")
			}
		}
	}
	bonus := arg.Bonus
	if len(bonus) == 0 {
		bonus = json.RawMessage(`{}`)
	}
	p := repository.Purchase{
		ID:           uuid.New(),
		UserID:       arg.UserID,
		PurchaseType: arg.PurchaseType,
		AmountCents:  arg.AmountCents,
		Currency:     arg.Currency,
		PurchaseDate: arg.PurchaseDate,
		Bonus:        bonus,
		ExternalID:   arg.ExternalID,
		CreatedAt:    s.st.now(),
	}
	remember(s, s.st.purchases, p.ID)
	s.st.purchases[p.ID] = p
	return p, nil
}

func (s *Store) ListPurchasesSince(ctx context.Context, arg repository.ListPurchasesSinceParams) ([]repository.Purchase, error) {
	if err := s.lock("ListPurchasesSince"); err != nil {
		s.unlock()
		return nil, err
	}
	defer s.unlock()

	var items []repository.Purchase
	for _, p := range s.st.purchases {
		if p.UserID == arg.UserID && !p.PurchaseDate.Before(arg.Since) {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PurchaseDate.Before(items[j].PurchaseDate)
	})
	return items, nil
}

// =============================================================================
// Competitions
// =============================================================================

func (s *Store) CreateCompetition(ctx context.Context, arg repository.CreateCompetitionParams) (repository.Competition, error) {
	if err := s.lock("CreateCompetition"); err != nil {
		s.unlock()
		return repository.Competition{}, err
	}
	defer s.unlock()

	for _, c := range s.st.competitions {
		switch {
		case c.Month == arg.Month && c.Year == arg.Year:
			return repository.Competition{}, uniqueViolation("competitions_month_year_key")
		case c.Slug == arg.Slug:
			return repository.Competition{}, uniqueViolation("competitions_slug_key")
		case c.IsActive:
			return repository.Competition{}, uniqueViolation("idx_competitions_single_active")
		}
	}
	now := s.st.now()
	c := repository.Competition{
		ID:              uuid.New(),
		Slug:            arg.Slug,
		Month:           arg.Month,
		Year:            arg.Year,
		Phase:           "submission",
		IsActive:        true,
		SubmissionStart: arg.SubmissionStart,
		SubmissionEnd:   arg.SubmissionEnd,
		JudgingStart:    arg.JudgingStart,
		JudgingEnd:      arg.JudgingEnd,
		ResultsDate:     arg.ResultsDate,
		JudgingCriteria: arg.JudgingCriteria,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	remember(s, s.st.competitions, c.ID)
	s.st.competitions[c.ID] = c
	return c, nil
}

func (s *Store) GetCompetitionByID(ctx context.Context, id uuid.UUID) (repository.Competition, error) {
	if err := s.lock("GetCompetitionByID"); err != nil {
		s.unlock()
		return repository.Competition{}, err
	}
	defer s.unlock()

	c, ok := s.st.competitions[id]
	if !ok {
		return repository.Competition{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetCompetitionByMonthYear(ctx context.Context, arg repository.GetCompetitionByMonthYearParams) (repository.Competition, error) {
	if err := s.lock("GetCompetitionByMonthYear"); err != nil {
		s.unlock()
		return repository.Competition{}, err
	}
	defer s.unlock()

	for _, c := range s.st.competitions {
		if c.Month == arg.Month && c.Year == arg.Year {
			return c, nil
		}
	}
	return repository.Competition{}, sql.ErrNoRows
}

func (s *Store) GetActiveCompetition(ctx context.Context) (repository.Competition, error) {
	if err := s.lock("GetActiveCompetition"); err != nil {
		s.unlock()
		return repository.Competition{}, err
	}
	defer s.unlock()

	for _, c := range s.st.competitions {
		if c.IsActive {
			return c, nil
		}
	}
	return repository.Competition{}, sql.ErrNoRows
}

func (s *Store) ListUnarchivedCompetitions(ctx context.Context) ([]repository.Competition, error) {
	if err := s.lock("ListUnarchivedCompetitions"); err != nil {
		s.unlock()
		return nil, err
	}
	defer s.unlock()

	var items []repository.Competition
	for _, c := range s.st.competitions {
		if !c.IsArchived {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SubmissionStart.Before(items[j].SubmissionStart)
	})
	return items, nil
}

func (s *Store) DeactivateActiveCompetitions(ctx context.Context) (int64, error) {
	if err := s.lock("DeactivateActiveCompetitions"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	var n int64
	for id, c := range s.st.competitions {
		if !c.IsActive {
			continue
		}
		remember(s, s.st.competitions, id)
		c.IsActive = false
		c.UpdatedAt = s.st.now()
		s.st.competitions[id] = c
		n++
	}
	return n, nil
}

func (s *Store) UpdateCompetitionPhase(ctx context.Context, arg repository.UpdateCompetitionPhaseParams) (repository.Competition, error) {
	if err := s.lock("UpdateCompetitionPhase"); err != nil {
		s.unlock()
		return repository.Competition{}, err
	}
	defer s.unlock()

	c, ok := s.st.competitions[arg.ID]
	if !ok || c.Phase != arg.FromPhase {
		return repository.Competition{}, sql.ErrNoRows
	}
	remember(s, s.st.competitions, arg.ID)
	c.Phase = arg.ToPhase
	c.UpdatedAt = s.st.now()
	s.st.competitions[arg.ID] = c
	return c, nil
}

func (s *Store) ArchiveCompetition(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := s.lock("ArchiveCompetition"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	c, ok := s.st.competitions[id]
	if !ok || c.IsActive || c.IsArchived || (c.Phase != "ended" && c.Phase != "results_published") {
		return 0, nil
	}
	remember(s, s.st.competitions, id)
	c.IsArchived = true
	c.UpdatedAt = s.st.now()
	s.st.competitions[id] = c
	return 1, nil
}

func (s *Store) IncrementCompetitionTotals(ctx context.Context, arg repository.IncrementCompetitionTotalsParams) error {
	if err := s.lock("IncrementCompetitionTotals"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	c, ok := s.st.competitions[arg.ID]
	if !ok {
		return nil
	}
	remember(s, s.st.competitions, arg.ID)
	c.TotalSubmissions += arg.Submissions
	c.TotalParticipants += arg.Participants
	c.UpdatedAt = s.st.now()
	s.st.competitions[arg.ID] = c
	return nil
}

// LockCompetition only checks the row exists; ExecTx already serializes
// transactions.
func (s *Store) LockCompetition(ctx context.Context, id uuid.UUID) error {
	if err := s.lock("LockCompetition"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	if _, ok := s.st.competitions[id]; !ok {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) PublishCompetitionWinners(ctx context.Context, arg repository.PublishCompetitionWinnersParams) (repository.Competition, error) {
	if err := s.lock("PublishCompetitionWinners"); err != nil {
		s.unlock()
		return repository.Competition{}, err
	}
	defer s.unlock()

	c, ok := s.st.competitions[arg.ID]
	if !ok || (c.Phase != "ended" && c.Phase != "results_published") {
		return repository.Competition{}, sql.ErrNoRows
	}
	remember(s, s.st.competitions, arg.ID)
	c.Winners.RawMessage = arg.Winners
	c.Winners.Valid = arg.Winners != nil
	c.Phase = "results_published"
	c.UpdatedAt = s.st.now()
	s.st.competitions[arg.ID] = c
	return c, nil
}

// =============================================================================
// Stories
// =============================================================================

func (s *Store) CreateStory(ctx context.Context, arg repository.CreateStoryParams) (repository.Story, error) {
	if err := s.lock("CreateStory"); err != nil {
		s.unlock()
		return repository.Story{}, err
	}
	defer s.unlock()

	now := s.st.now()
	story := repository.Story{
		ID:               uuid.New(),
		UserID:           arg.UserID,
		Title:            arg.Title,
		Body:             arg.Body,
		WordCount:        arg.WordCount,
		AssessmentStatus: "none",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	remember(s, s.st.stories, story.ID)
	s.st.stories[story.ID] = story
	return story, nil
}

func (s *Store) GetStoryByID(ctx context.Context, id uuid.UUID) (repository.Story, error) {
	if err := s.lock("GetStoryByID"); err != nil {
		s.unlock()
		return repository.Story{}, err
	}
	defer s.unlock()

	story, ok := s.st.stories[id]
	if !ok {
		return repository.Story{}, sql.ErrNoRows
	}
	return story, nil
}

func (s *Store) UpdateStoryAssessmentStatus(ctx context.Context, arg repository.UpdateStoryAssessmentStatusParams) error {
	if err := s.lock("UpdateStoryAssessmentStatus"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	story, ok := s.st.stories[arg.ID]
	if !ok {
		return nil
	}
	remember(s, s.st.stories, arg.ID)
	story.AssessmentStatus = arg.AssessmentStatus
	story.UpdatedAt = s.st.now()
	s.st.stories[arg.ID] = story
	return nil
}

func (s *Store) UpdateStoryAssessment(ctx context.Context, arg repository.UpdateStoryAssessmentParams) error {
	if err := s.lock("UpdateStoryAssessment"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	story, ok := s.st.stories[arg.ID]
	if !ok {
		return nil
	}
	remember(s, s.st.stories, arg.ID)
	story.AssessmentStatus = "assessed"
	story.Score = arg.Score
	story.Assessment = arg.Assessment
	story.UpdatedAt = s.st.now()
	s.st.stories[arg.ID] = story
	return nil
}

// =============================================================================
// Entries
// =============================================================================

func (s *Store) CreateEntry(ctx context.Context, arg repository.CreateEntryParams) (repository.Entry, error) {
	if err := s.lock("CreateEntry"); err != nil {
		s.unlock()
		return repository.Entry{}, err
	}
	defer s.unlock()

	for _, e := range s.st.entries {
		if e.StoryID == arg.StoryID {
			return repository.Entry{}, uniqueViolation("entries_story_id_key")
		}
	}
	e := repository.Entry{
		ID:               uuid.New(),
		CompetitionID:    arg.CompetitionID,
		UserID:           arg.UserID,
		StoryID:          arg.StoryID,
		WordCount:        arg.WordCount,
		SubmittedAt:      arg.SubmittedAt,
		AssessmentStatus: "pending",
	}
	remember(s, s.st.entries, e.ID)
	s.st.entries[e.ID] = e
	return e, nil
}

func (s *Store) GetEntryByID(ctx context.Context, id uuid.UUID) (repository.Entry, error) {
	if err := s.lock("GetEntryByID"); err != nil {
		s.unlock()
		return repository.Entry{}, err
	}
	defer s.unlock()

	e, ok := s.st.entries[id]
	if !ok {
		return repository.Entry{}, sql.ErrNoRows
	}
	return e, nil
}

func (s *Store) GetEntryByStoryID(ctx context.Context, storyID uuid.UUID) (repository.Entry, error) {
	if err := s.lock("GetEntryByStoryID"); err != nil {
		s.unlock()
		return repository.Entry{}, err
	}
	defer s.unlock()

	for _, e := range s.st.entries {
		if e.StoryID == storyID {
			return e, nil
		}
	}
	return repository.Entry{}, sql.ErrNoRows
}

func (s *Store) CountUserEntriesInCompetition(ctx context.Context, arg repository.CountUserEntriesInCompetitionParams) (int64, error) {
	if err := s.lock("CountUserEntriesInCompetition"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	var n int64
	for _, e := range s.st.entries {
		if e.CompetitionID == arg.CompetitionID && e.UserID == arg.UserID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountCompetitionEntriesByIDs(ctx context.Context, arg repository.CountCompetitionEntriesByIDsParams) (int64, error) {
	if err := s.lock("CountCompetitionEntriesByIDs"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	seen := make(map[uuid.UUID]bool, len(arg.IDs))
	var n int64
	for _, id := range arg.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := s.st.entries[id]; ok && e.CompetitionID == arg.CompetitionID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRankedEntries(ctx context.Context, competitionID uuid.UUID) ([]repository.Entry, error) {
	if err := s.lock("ListRankedEntries"); err != nil {
		s.unlock()
		return nil, err
	}
	defer s.unlock()

	var items []repository.Entry
	for _, e := range s.st.entries {
		if e.CompetitionID == competitionID {
			items = append(items, e)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		si, sj := scoreOrLowest(items[i].Score), scoreOrLowest(items[j].Score)
		if si != sj {
			return si > sj
		}
		return items[i].SubmittedAt.Before(items[j].SubmittedAt)
	})
	return items, nil
}

func scoreOrLowest(s sql.NullFloat64) float64 {
	if !s.Valid {
		return math.Inf(-1)
	}
	return s.Float64
}

func (s *Store) ClearCompetitionWinners(ctx context.Context, competitionID uuid.UUID) error {
	if err := s.lock("ClearCompetitionWinners"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	for id, e := range s.st.entries {
		if e.CompetitionID != competitionID {
			continue
		}
		remember(s, s.st.entries, id)
		e.IsWinner = false
		e.Rank = sql.NullInt32{}
		s.st.entries[id] = e
	}
	return nil
}

func (s *Store) MarkEntryWinner(ctx context.Context, arg repository.MarkEntryWinnerParams) (repository.Entry, error) {
	if err := s.lock("MarkEntryWinner"); err != nil {
		s.unlock()
		return repository.Entry{}, err
	}
	defer s.unlock()

	e, ok := s.st.entries[arg.ID]
	if !ok || e.CompetitionID != arg.CompetitionID {
		return repository.Entry{}, sql.ErrNoRows
	}
	remember(s, s.st.entries, arg.ID)
	e.IsWinner = true
	e.Rank = sql.NullInt32{Int32: arg.Rank, Valid: true}
	s.st.entries[arg.ID] = e
	return e, nil
}

func (s *Store) UpdateEntryScore(ctx context.Context, arg repository.UpdateEntryScoreParams) error {
	if err := s.lock("UpdateEntryScore"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	e, ok := s.st.entries[arg.ID]
	if !ok {
		return nil
	}
	remember(s, s.st.entries, arg.ID)
	e.Score = sql.NullFloat64{Float64: arg.Score, Valid: true}
	e.AssessmentStatus = "assessed"
	s.st.entries[arg.ID] = e
	return nil
}

func (s *Store) UpdateEntryAssessmentStatus(ctx context.Context, arg repository.UpdateEntryAssessmentStatusParams) error {
	if err := s.lock("UpdateEntryAssessmentStatus"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	e, ok := s.st.entries[arg.ID]
	if !ok {
		return nil
	}
	remember(s, s.st.entries, arg.ID)
	e.AssessmentStatus = arg.AssessmentStatus
	s.st.entries[arg.ID] = e
	return nil
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Store) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	if err := s.lock("EnqueueJob"); err != nil {
		s.unlock()
		return repository.Job{}, err
	}
	defer s.unlock()

	j := repository.Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     arg.Payload,
		Status:      repository.JobStatusPending,
		Priority:    arg.Priority,
		MaxAttempts: arg.MaxAttempts,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   s.st.now(),
	}
	remember(s, s.st.jobs, j.ID)
	s.st.jobs[j.ID] = j
	return j, nil
}

func (s *Store) DequeueJob(ctx context.Context) (repository.Job, error) {
	if err := s.lock("DequeueJob"); err != nil {
		s.unlock()
		return repository.Job{}, err
	}
	defer s.unlock()

	now := s.st.now()
	var best *repository.Job
	for _, j := range s.st.jobs {
		if j.Status != repository.JobStatusPending || j.ScheduledAt.After(now) {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.ScheduledAt.Before(best.ScheduledAt)) {
			j := j
			best = &j
		}
	}
	if best == nil {
		return repository.Job{}, sql.ErrNoRows
	}
	return *best, nil
}

func (s *Store) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	if err := s.lock("UpdateJobStarted"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	j, ok := s.st.jobs[id]
	if !ok {
		return nil
	}
	remember(s, s.st.jobs, id)
	j.Status = repository.JobStatusRunning
	j.Attempts++
	j.StartedAt = sql.NullTime{Time: s.st.now(), Valid: true}
	s.st.jobs[id] = j
	return nil
}

func (s *Store) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	if err := s.lock("UpdateJobCompleted"); err != nil {
		s.unlock()
		return err
	}
	defer s.unlock()

	j, ok := s.st.jobs[id]
	if !ok {
		return nil
	}
	remember(s, s.st.jobs, id)
	j.Status = repository.JobStatusCompleted
	j.CompletedAt = sql.NullTime{Time: s.st.now(), Valid: true}
	j.ErrorMessage = sql.NullString{}
	s.st.jobs[id] = j
	return nil
}

func (s *Store) UpdateJobFailed(ctx context.Context, arg repository.UpdateJobFailedParams) (repository.Job, error) {
	if err := s.lock("UpdateJobFailed"); err != nil {
		s.unlock()
		return repository.Job{}, err
	}
	defer s.unlock()

	j, ok := s.st.jobs[arg.ID]
	if !ok {
		return repository.Job{}, sql.ErrNoRows
	}
	remember(s, s.st.jobs, arg.ID)
	now := s.st.now()
	j.ErrorMessage = arg.ErrorMessage
	if arg.Permanent || j.Attempts >= j.MaxAttempts {
		j.Status = repository.JobStatusFailed
		j.CompletedAt = sql.NullTime{Time: now, Valid: true}
	} else {
		j.Status = repository.JobStatusPending
		backoff := 30 * time.Second * time.Duration(1<<max(j.Attempts-1, 0))
		j.ScheduledAt = now.Add(backoff)
		j.CompletedAt = sql.NullTime{}
	}
	s.st.jobs[arg.ID] = j
	return j, nil
}

func (s *Store) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	if err := s.lock("RecoverStaleJobs"); err != nil {
		s.unlock()
		return 0, err
	}
	defer s.unlock()

	cutoff := s.st.now().Add(-time.Duration(thresholdSeconds * float64(time.Second)))
	var n int64
	for id, j := range s.st.jobs {
		if j.Status != repository.JobStatusRunning || !j.StartedAt.Valid || !j.StartedAt.Time.Before(cutoff) {
			continue
		}
		remember(s, s.st.jobs, id)
		j.Status = repository.JobStatusPending
		j.StartedAt = sql.NullTime{}
		s.st.jobs[id] = j
		n++
	}
	return n, nil
}

// ListJobs returns every job, oldest first.
func (s *Store) ListJobs() []repository.Job {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	items := make([]repository.Job, 0, len(s.st.jobs))
	for _, j := range s.st.jobs {
		items = append(items, j)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}
