package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skillproof/skillproof-api/internal/catalog"
	"github.com/skillproof/skillproof-api/internal/storage"
)

// Engine owns the assessment session flow: building sessions, scoring
// answers, maintaining rollups, driving the lifecycle, and assembling
// reports. All mutations for one session are serialized by a per-session
// lock; stores add transactional atomicity underneath.
type Engine struct {
	store   Store
	catalog catalog.Store
	blobs   storage.BlobStore
	locks   *sessionLocks
	now     func() time.Time
	newID   func() string
}

// NewEngine wires an engine. blobs may be nil when report persistence is
// not configured; SaveReport then fails cleanly.
func NewEngine(store Store, cat catalog.Store, blobs storage.BlobStore) *Engine {
	return &Engine{
		store:   store,
		catalog: cat,
		blobs:   blobs,
		locks:   newSessionLocks(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// StartSession validates the filters, pulls the eligible question set in
// catalog display order, and creates a fresh in_progress session with the
// question order pinned. The returned questions still carry their answer
// keys; callers serving takers must strip them.
func (e *Engine) StartSession(ctx context.Context, userID string, f catalog.Filters, meta SessionMeta) (Session, []catalog.Question, error) {
	if err := e.validateFilters(ctx, f); err != nil {
		return Session{}, nil, err
	}
	qs, err := e.catalog.ListActiveQuestions(ctx, f)
	if err != nil {
		return Session{}, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(qs) == 0 {
		return Session{}, nil, ErrNoQuestionsAvailable
	}
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	s := Session{
		ID:          e.newID(),
		UserID:      userID,
		StartTime:   e.now().UTC(),
		Status:      StatusInProgress,
		QuestionIDs: ids,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	}
	if err := e.store.CreateSession(ctx, s); err != nil {
		return Session{}, nil, fmt.Errorf("create session: %w", err)
	}
	return s, qs, nil
}

func (e *Engine) validateFilters(ctx context.Context, f catalog.Filters) error {
	for _, id := range f.CategoryIDs {
		if _, err := e.catalog.GetCategory(ctx, id); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, id)
			}
			return err
		}
	}
	for _, id := range f.SubThemeIDs {
		if _, err := e.catalog.GetSubTheme(ctx, id); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("%w: unknown sub-theme %q", ErrInvalidFilter, id)
			}
			return err
		}
	}
	for _, t := range f.Tiers {
		if _, err := catalog.ParseTier(string(t)); err != nil {
			return fmt.Errorf("%w: unknown difficulty tier %q", ErrInvalidFilter, string(t))
		}
	}
	return nil
}

// SubmitAnswer validates, scores, and commits one answer, updating the
// session totals and all three rollups as a single unit.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, in SubmitInput) (SubmitResult, error) {
	if in.TimeSpentSeconds < 0 {
		return SubmitResult{}, fmt.Errorf("%w: time_spent_seconds must be non-negative", ErrInvalidSubmission)
	}
	if in.DontKnow && len(in.SelectedOptionIDs) > 0 {
		return SubmitResult{}, fmt.Errorf("%w: selections must be empty when dont_know is set", ErrInvalidSubmission)
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if s.Status.Terminal() {
		return SubmitResult{}, ErrSessionNotActive
	}
	if !s.HasQuestion(in.QuestionID) {
		return SubmitResult{}, fmt.Errorf("%w: question %q is not part of this session", ErrInvalidSubmission, in.QuestionID)
	}
	answered, err := e.store.HasResponse(ctx, sessionID, in.QuestionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if answered {
		return SubmitResult{}, ErrDuplicateAnswer
	}

	q, err := e.catalog.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load question: %w", err)
	}
	seen := make(map[string]bool, len(in.SelectedOptionIDs))
	for _, oid := range in.SelectedOptionIDs {
		if !q.HasOption(oid) {
			return SubmitResult{}, fmt.Errorf("%w: option %q does not belong to question %q", ErrInvalidSubmission, oid, q.ID)
		}
		if seen[oid] {
			return SubmitResult{}, fmt.Errorf("%w: option %q selected more than once", ErrInvalidSubmission, oid)
		}
		seen[oid] = true
	}

	correct, earned := ScoreAnswer(q, in.SelectedOptionIDs, in.DontKnow)

	answeredBefore, err := e.store.CountResponses(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	tiers, err := e.store.TierProgress(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	cats, err := e.store.CategoryProgress(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	subs, err := e.store.SubThemeProgress(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	s.TotalScore += earned
	s.TotalPossibleScore += q.Points()
	s.CompletionPercentage = completionPercentage(s.TotalScore, s.TotalPossibleScore)

	rec := AnswerRecord{
		Response: Response{
			ID:               e.newID(),
			SessionID:        sessionID,
			QuestionID:       q.ID,
			ResponseTime:     e.now().UTC(),
			TimeSpentSeconds: in.TimeSpentSeconds,
			DontKnow:         in.DontKnow,
			Correct:          correct,
			ScoreEarned:      earned,
			OptionIDs:        append([]string(nil), in.SelectedOptionIDs...),
		},
		Session:  s,
		Tier:     nextTierProgress(findTierProgress(tiers, q.Tier), q, correct, earned),
		Category: nextDimProgress(findDimProgress(cats, q.CategoryID), q.CategoryID, q.CategoryName, correct, earned),
		SubTheme: nextDimProgress(findDimProgress(subs, q.SubThemeID), q.SubThemeID, q.SubThemeName, correct, earned),
	}
	if err := e.store.ApplyAnswer(ctx, rec); err != nil {
		return SubmitResult{}, err
	}

	total := len(s.QuestionIDs)
	count := answeredBefore + 1
	status := s.Status
	if count == total {
		fs, err := e.store.FinishSession(ctx, sessionID, StatusCompleted, e.now().UTC())
		if err != nil {
			return SubmitResult{}, fmt.Errorf("auto-complete session: %w", err)
		}
		status = fs.Status
	}
	return SubmitResult{
		Correct:              correct,
		ScoreEarned:          earned,
		PointsPossible:       q.Points(),
		TotalScore:           s.TotalScore,
		TotalPossibleScore:   s.TotalPossibleScore,
		CompletionPercentage: s.CompletionPercentage,
		QuestionsAnswered:    count,
		QuestionsRemaining:   total - count,
		SessionStatus:        status,
	}, nil
}

// Session returns the raw session row (for ownership checks and listings).
func (e *Engine) Session(ctx context.Context, id string) (Session, error) {
	return e.store.GetSession(ctx, id)
}

func (e *Engine) SessionsForUser(ctx context.Context, userID string) ([]Session, error) {
	return e.store.ListSessionsByUser(ctx, userID)
}

// Progress reports where the taker is: the next unanswered question
// (answer-stripped) plus running counts. Valid for terminal sessions too.
func (e *Engine) Progress(ctx context.Context, sessionID string) (ProgressSnapshot, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	resps, err := e.store.ListResponses(ctx, sessionID)
	if err != nil {
		return ProgressSnapshot{}, err
	}
	answered := make(map[string]bool, len(resps))
	for _, r := range resps {
		answered[r.QuestionID] = true
	}
	snap := ProgressSnapshot{
		SessionID:          s.ID,
		Status:             s.Status,
		QuestionsAnswered:  len(resps),
		QuestionsRemaining: len(s.QuestionIDs) - len(resps),
		ScoreEarned:        s.TotalScore,
	}
	if s.EndTime != nil {
		snap.TimeElapsedSeconds = s.EndTime.Sub(s.StartTime).Seconds()
	} else {
		snap.TimeElapsedSeconds = e.now().UTC().Sub(s.StartTime).Seconds()
	}
	if s.Status == StatusInProgress {
		for _, qid := range s.QuestionIDs {
			if answered[qid] {
				continue
			}
			q, err := e.catalog.GetQuestion(ctx, qid)
			if err != nil {
				return ProgressSnapshot{}, fmt.Errorf("load question: %w", err)
			}
			safe := q.StripAnswers()
			snap.NextQuestion = &safe
			break
		}
	}
	return snap, nil
}

// CompleteSession finishes an in_progress session explicitly.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (Session, error) {
	return e.finish(ctx, sessionID, StatusCompleted)
}

// AbandonSession marks an in_progress session abandoned.
func (e *Engine) AbandonSession(ctx context.Context, sessionID string) (Session, error) {
	return e.finish(ctx, sessionID, StatusAbandoned)
}

func (e *Engine) finish(ctx context.Context, sessionID string, status Status) (Session, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()
	return e.store.FinishSession(ctx, sessionID, status, e.now().UTC())
}

// AbandonIdleSessions abandons every in_progress session idle longer than
// olderThan. Used by the periodic sweep; returns how many were abandoned.
func (e *Engine) AbandonIdleSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := e.now().UTC().Add(-olderThan)
	ids, err := e.store.ListIdleSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := e.AbandonSession(ctx, id); err != nil {
			if errors.Is(err, ErrSessionNotActive) {
				continue // finished concurrently
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Report assembles the detailed report from current state. It is pure with
// respect to the session: repeated calls against unchanged state serialize
// identically (all sections are deterministically ordered).
func (e *Engine) Report(ctx context.Context, sessionID string) (DetailedReport, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return DetailedReport{}, err
	}
	resps, err := e.store.ListResponses(ctx, sessionID)
	if err != nil {
		return DetailedReport{}, err
	}
	tiers, err := e.store.TierProgress(ctx, sessionID)
	if err != nil {
		return DetailedReport{}, err
	}
	cats, err := e.store.CategoryProgress(ctx, sessionID)
	if err != nil {
		return DetailedReport{}, err
	}
	subs, err := e.store.SubThemeProgress(ctx, sessionID)
	if err != nil {
		return DetailedReport{}, err
	}

	rep := DetailedReport{
		Session: SessionSnapshot{
			Session:           s,
			DurationSecs:      s.DurationSeconds(),
			QuestionsAnswered: len(resps),
			QuestionsTotal:    len(s.QuestionIDs),
		},
		DifficultyBreakdown: []TierBreakdown{},
		CategoryBreakdown:   []DimBreakdown{},
		SubThemeBreakdown:   []DimBreakdown{},
		QuestionDetails:     []QuestionDetail{},
	}

	sort.Slice(tiers, func(i, j int) bool {
		return catalog.TierOrder(tiers[i].Tier) < catalog.TierOrder(tiers[j].Tier)
	})
	for _, tp := range tiers {
		pts, _ := catalog.PointsFor(tp.Tier)
		rep.DifficultyBreakdown = append(rep.DifficultyBreakdown, TierBreakdown{
			Tier:         tp.Tier,
			Points:       pts,
			TierProgress: tp,
		})
	}
	rep.CategoryBreakdown = dimBreakdown(cats)
	rep.SubThemeBreakdown = dimBreakdown(subs)

	// details follow the session's question order
	byQuestion := make(map[string]Response, len(resps))
	for _, r := range resps {
		byQuestion[r.QuestionID] = r
	}
	for _, qid := range s.QuestionIDs {
		r, ok := byQuestion[qid]
		if !ok {
			continue
		}
		q, err := e.catalog.GetQuestion(ctx, qid)
		if err != nil {
			return DetailedReport{}, fmt.Errorf("load question: %w", err)
		}
		selected := append([]string(nil), r.OptionIDs...)
		sort.Strings(selected)
		if selected == nil {
			selected = []string{}
		}
		rep.QuestionDetails = append(rep.QuestionDetails, QuestionDetail{
			QuestionID:        q.ID,
			QuestionText:      q.Text,
			QuestionType:      q.Type,
			Tier:              q.Tier,
			SelectedOptionIDs: selected,
			DontKnow:          r.DontKnow,
			Correct:           r.Correct,
			ScoreEarned:       r.ScoreEarned,
			PointsPossible:    q.Points(),
			Rationale:         q.Rationale,
		})
	}
	return rep, nil
}

func dimBreakdown(rows []DimProgress) []DimBreakdown {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].DimensionID < rows[j].DimensionID
	})
	out := make([]DimBreakdown, 0, len(rows))
	for _, r := range rows {
		out = append(out, DimBreakdown{
			ID:                 r.DimensionID,
			Name:               r.Name,
			QuestionsAttempted: r.QuestionsAttempted,
			QuestionsCorrect:   r.QuestionsCorrect,
			ScoreEarned:        r.ScoreEarned,
			AccuracyPercentage: r.AccuracyPercentage(),
		})
	}
	return out
}

// summaryReport mirrors the completion summary shape.
type summaryReport struct {
	SessionID          string   `json:"session_id"`
	Status             Status   `json:"status"`
	TotalScore         float64  `json:"total_score"`
	TotalPossibleScore float64  `json:"total_possible_score"`
	Percentage         float64  `json:"percentage"`
	DurationSeconds    *float64 `json:"duration_seconds,omitempty"`
	QuestionsAnswered  int      `json:"questions_answered"`
	QuestionsCorrect   int      `json:"questions_correct"`
}

type certificateReport struct {
	SessionID   string     `json:"session_id"`
	UserID      string     `json:"user_id"`
	TotalScore  float64    `json:"total_score"`
	Percentage  float64    `json:"percentage"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SaveReport persists an immutable snapshot of the given type: the payload
// goes to the blob store, the row to the database.
func (e *Engine) SaveReport(ctx context.Context, sessionID string, typ ReportType) (Report, error) {
	switch typ {
	case ReportSummary, ReportDetailed, ReportCertificate:
	default:
		return Report{}, fmt.Errorf("unknown report type %q", typ)
	}
	if e.blobs == nil {
		return Report{}, errors.New("report storage not configured")
	}
	full, err := e.Report(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}

	var payload any
	switch typ {
	case ReportDetailed:
		payload = full
	case ReportSummary:
		correct := 0
		for _, d := range full.QuestionDetails {
			if d.Correct {
				correct++
			}
		}
		payload = summaryReport{
			SessionID:          full.Session.ID,
			Status:             full.Session.Status,
			TotalScore:         full.Session.TotalScore,
			TotalPossibleScore: full.Session.TotalPossibleScore,
			Percentage:         full.Session.CompletionPercentage,
			DurationSeconds:    full.Session.DurationSecs,
			QuestionsAnswered:  full.Session.QuestionsAnswered,
			QuestionsCorrect:   correct,
		}
	case ReportCertificate:
		payload = certificateReport{
			SessionID:   full.Session.ID,
			UserID:      full.Session.UserID,
			TotalScore:  full.Session.TotalScore,
			Percentage:  full.Session.CompletionPercentage,
			CompletedAt: full.Session.EndTime,
		}
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return Report{}, err
	}
	r := Report{
		ID:          e.newID(),
		SessionID:   sessionID,
		Type:        typ,
		GeneratedAt: e.now().UTC(),
	}
	r.BlobPath = path.Join("reports", sessionID, r.ID+".json")
	if _, err := e.blobs.Put(r.BlobPath, bytes.NewReader(buf)); err != nil {
		return Report{}, fmt.Errorf("store report payload: %w", err)
	}
	if err := e.store.PutReport(ctx, r); err != nil {
		return Report{}, err
	}
	return r, nil
}

// ReportPayload loads a persisted snapshot row and its JSON payload.
func (e *Engine) ReportPayload(ctx context.Context, reportID string) (Report, []byte, error) {
	r, err := e.store.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, nil, err
	}
	if e.blobs == nil {
		return Report{}, nil, errors.New("report storage not configured")
	}
	rc, err := e.blobs.Get(r.BlobPath)
	if err != nil {
		return Report{}, nil, fmt.Errorf("load report payload: %w", err)
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return Report{}, nil, err
	}
	return r, buf, nil
}
