package assessment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skillproof/skillproof-api/internal/assessment"
	"github.com/skillproof/skillproof-api/internal/catalog"
	"github.com/skillproof/skillproof-api/internal/storage"
)

func newEnv(t *testing.T) (*assessment.Engine, catalog.Store, assessment.Store) {
	t.Helper()
	cat := catalog.NewInMemoryStore()
	sess := assessment.NewInMemoryStore()
	bs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	return assessment.NewEngine(sess, cat, bs), cat, sess
}

// seedCatalog loads one category ("Network Security") with one sub-theme and
// the given questions, all active.
func seedCatalog(t *testing.T, cat catalog.Store, qs ...catalog.Question) {
	t.Helper()
	ctx := context.Background()
	if err := cat.PutCategory(ctx, catalog.Category{ID: "cat-1", Name: "Network Security", DisplayOrder: 1}); err != nil {
		t.Fatalf("put category: %v", err)
	}
	if err := cat.PutSubTheme(ctx, catalog.SubTheme{ID: "st-1", CategoryID: "cat-1", Name: "Firewalls", DisplayOrder: 1}); err != nil {
		t.Fatalf("put sub-theme: %v", err)
	}
	for _, q := range qs {
		q.Active = true
		if err := cat.PutQuestion(ctx, q); err != nil {
			t.Fatalf("put question %s: %v", q.ID, err)
		}
	}
}

func mustStart(t *testing.T, eng *assessment.Engine, userID string, f catalog.Filters) assessment.Session {
	t.Helper()
	s, _, err := eng.StartSession(context.Background(), userID, f, assessment.SessionMeta{})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s
}

func mustSubmit(t *testing.T, eng *assessment.Engine, sessionID string, in assessment.SubmitInput) assessment.SubmitResult {
	t.Helper()
	res, err := eng.SubmitAnswer(context.Background(), sessionID, in)
	if err != nil {
		t.Fatalf("submit %s: %v", in.QuestionID, err)
	}
	return res
}

func TestStartSessionPinsQuestionOrder(t *testing.T) {
	eng, cat, _ := newEnv(t)
	seedCatalog(t, cat,
		question("q-nov", catalog.SingleChoice, catalog.TierNovice, "A"),
		question("q-exp", catalog.SingleChoice, catalog.TierExpert, "A"),
		question("q-ama", catalog.SingleChoice, catalog.TierAmateur, "A"),
	)

	s, qs, err := eng.StartSession(context.Background(), "u1", catalog.Filters{}, assessment.SessionMeta{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != assessment.StatusInProgress {
		t.Errorf("status = %s, want in_progress", s.Status)
	}
	if len(qs) != 3 || len(s.QuestionIDs) != 3 {
		t.Fatalf("got %d questions, %d pinned IDs, want 3/3", len(qs), len(s.QuestionIDs))
	}
	// Same catalog order (tier ascending within the sub-theme) in both.
	wantOrder := []string{"q-nov", "q-ama", "q-exp"}
	for i, want := range wantOrder {
		if qs[i].ID != want {
			t.Errorf("qs[%d] = %s, want %s", i, qs[i].ID, want)
		}
		if s.QuestionIDs[i] != want {
			t.Errorf("QuestionIDs[%d] = %s, want %s", i, s.QuestionIDs[i], want)
		}
	}
}

func TestStartSessionUnknownFilter(t *testing.T) {
	eng, cat, _ := newEnv(t)
	seedCatalog(t, cat, question("q1", catalog.SingleChoice, catalog.TierNovice, "A"))

	_, _, err := eng.StartSession(context.Background(), "u1",
		catalog.Filters{CategoryIDs: []string{"no-such-cat"}}, assessment.SessionMeta{})
	if !errors.Is(err, assessment.ErrInvalidFilter) {
		t.Errorf("unknown category: got %v, want ErrInvalidFilter", err)
	}

	_, _, err = eng.StartSession(context.Background(), "u1",
		catalog.Filters{Tiers: []catalog.Tier{"legendary"}}, assessment.SessionMeta{})
	if !errors.Is(err, assessment.ErrInvalidFilter) {
		t.Errorf("unknown tier: got %v, want ErrInvalidFilter", err)
	}
}

func TestStartSessionNoQuestions(t *testing.T) {
	eng, cat, _ := newEnv(t)
	seedCatalog(t, cat, question("q1", catalog.SingleChoice, catalog.TierNovice, "A"))

	_, _, err := eng.StartSession(context.Background(), "u1",
		catalog.Filters{Tiers: []catalog.Tier{catalog.TierExpert}}, assessment.SessionMeta{})
	if !errors.Is(err, assessment.ErrNoQuestionsAvailable) {
		t.Errorf("got %v, want ErrNoQuestionsAvailable", err)
	}
}

func TestSubmitAllCorrectAutoCompletes(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "B")
	q3 := question("q3", catalog.MultipleChoice, catalog.TierAmateur, "A", "C")
	seedCatalog(t, cat, q1, q2, q3)

	s := mustStart(t, eng, "u1", catalog.Filters{})

	r1 := mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})
	if !r1.Correct || r1.ScoreEarned != 0.5 || r1.TotalScore != 0.5 || r1.TotalPossibleScore != 0.5 {
		t.Errorf("first answer: %+v", r1)
	}
	if r1.CompletionPercentage != 100 {
		t.Errorf("first answer completion = %v, want 100", r1.CompletionPercentage)
	}
	if r1.QuestionsAnswered != 1 || r1.QuestionsRemaining != 2 {
		t.Errorf("first answer counts: %+v", r1)
	}
	if r1.SessionStatus != assessment.StatusInProgress {
		t.Errorf("first answer status = %s", r1.SessionStatus)
	}

	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q2", SelectedOptionIDs: opts(q2, "B")})
	r3 := mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q3", SelectedOptionIDs: opts(q3, "C", "A")})

	if r3.TotalScore != 2.0 || r3.TotalPossibleScore != 2.0 {
		t.Errorf("final totals: %v / %v, want 2.0 / 2.0", r3.TotalScore, r3.TotalPossibleScore)
	}
	if r3.CompletionPercentage != 100 {
		t.Errorf("final completion = %v, want 100", r3.CompletionPercentage)
	}
	if r3.SessionStatus != assessment.StatusCompleted {
		t.Errorf("final status = %s, want completed", r3.SessionStatus)
	}
	if r3.QuestionsRemaining != 0 {
		t.Errorf("remaining = %d, want 0", r3.QuestionsRemaining)
	}

	got, err := eng.Session(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != assessment.StatusCompleted || got.EndTime == nil {
		t.Errorf("stored session: status=%s endTime=%v", got.Status, got.EndTime)
	}
}

func TestSubmitWrongAnswerRaisesPossibleOnly(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierExpert, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierExpert, "A")
	seedCatalog(t, cat, q1, q2)

	s := mustStart(t, eng, "u1", catalog.Filters{})
	res := mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "B")})
	if res.Correct || res.ScoreEarned != 0 {
		t.Errorf("wrong answer scored: %+v", res)
	}
	if res.TotalScore != 0 || res.TotalPossibleScore != 5.5 {
		t.Errorf("totals: %v / %v, want 0 / 5.5", res.TotalScore, res.TotalPossibleScore)
	}
	if res.CompletionPercentage != 0 {
		t.Errorf("completion = %v, want 0", res.CompletionPercentage)
	}
}

func TestSubmitDuplicateAnswer(t *testing.T) {
	eng, cat, store := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "A")
	seedCatalog(t, cat, q1, q2)

	s := mustStart(t, eng, "u1", catalog.Filters{})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})

	_, err := eng.SubmitAnswer(context.Background(), s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "B")})
	if !errors.Is(err, assessment.ErrDuplicateAnswer) {
		t.Fatalf("got %v, want ErrDuplicateAnswer", err)
	}
	n, err := store.CountResponses(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("responses = %d, want 1", n)
	}
	// Totals unchanged by the rejected duplicate.
	got, _ := eng.Session(context.Background(), s.ID)
	if got.TotalScore != 0.5 || got.TotalPossibleScore != 0.5 {
		t.Errorf("totals after duplicate: %v / %v", got.TotalScore, got.TotalPossibleScore)
	}
}

func TestSubmitValidation(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "A")
	stray := question("stray", catalog.SingleChoice, catalog.TierNovice, "A")
	seedCatalog(t, cat, q1, q2)

	s := mustStart(t, eng, "u1", catalog.Filters{})
	ctx := context.Background()

	cases := []struct {
		name string
		in   assessment.SubmitInput
	}{
		{"dont_know with selections", assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A"), DontKnow: true}},
		{"negative time spent", assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A"), TimeSpentSeconds: -1}},
		{"foreign option", assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(stray, "A")}},
		{"question outside session", assessment.SubmitInput{QuestionID: "stray", SelectedOptionIDs: opts(stray, "A")}},
		{"repeated option", assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A", "A")}},
	}
	for _, tc := range cases {
		if _, err := eng.SubmitAnswer(ctx, s.ID, tc.in); !errors.Is(err, assessment.ErrInvalidSubmission) {
			t.Errorf("%s: got %v, want ErrInvalidSubmission", tc.name, err)
		}
	}

	// A rejected submission must leave the question answerable.
	if _, err := eng.SubmitAnswer(ctx, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")}); err != nil {
		t.Fatalf("submit after rejections: %v", err)
	}
}

func TestSubmitDontKnowRecordsZero(t *testing.T) {
	eng, cat, store := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierProfessional, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierProfessional, "A")
	seedCatalog(t, cat, q1, q2)

	s := mustStart(t, eng, "u1", catalog.Filters{})
	res := mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", DontKnow: true})
	if res.Correct || res.ScoreEarned != 0 {
		t.Errorf("dont_know result: %+v", res)
	}
	if res.TotalPossibleScore != 3.5 {
		t.Errorf("possible = %v, want 3.5", res.TotalPossibleScore)
	}
	resps, err := store.ListResponses(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	if len(resps) != 1 || !resps[0].DontKnow || resps[0].Correct || len(resps[0].OptionIDs) != 0 {
		t.Errorf("stored response: %+v", resps[0])
	}
}

func TestSubmitOnTerminalSession(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "A")
	seedCatalog(t, cat, q1, q2)

	s := mustStart(t, eng, "u1", catalog.Filters{})
	if _, err := eng.AbandonSession(context.Background(), s.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	_, err := eng.SubmitAnswer(context.Background(), s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})
	if !errors.Is(err, assessment.ErrSessionNotActive) {
		t.Errorf("got %v, want ErrSessionNotActive", err)
	}
}

func TestTierBonus(t *testing.T) {
	eng, cat, store := newEnv(t)
	s1 := question("s1", catalog.SingleChoice, catalog.TierInitiate, "A")
	s2 := question("s2", catalog.SingleChoice, catalog.TierInitiate, "B")
	m1 := question("m1", catalog.MultipleChoice, catalog.TierInitiate, "A", "B")
	m2 := question("m2", catalog.MultipleChoice, catalog.TierInitiate, "C", "D")
	seedCatalog(t, cat, s1, s2, m1, m2)

	s := mustStart(t, eng, "u1", catalog.Filters{})
	ctx := context.Background()

	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "s1", SelectedOptionIDs: opts(s1, "A")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "s2", SelectedOptionIDs: opts(s2, "B")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "m1", SelectedOptionIDs: opts(m1, "A", "B")})

	tiers, err := store.TierProgress(ctx, s.ID)
	if err != nil {
		t.Fatalf("tier progress: %v", err)
	}
	if len(tiers) != 1 {
		t.Fatalf("tier rows = %d, want 1", len(tiers))
	}
	if tiers[0].BonusEarned {
		t.Error("bonus set after 3 of 4 correct")
	}

	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "m2", SelectedOptionIDs: opts(m2, "C", "D")})
	tiers, _ = store.TierProgress(ctx, s.ID)
	p := tiers[0]
	if !p.BonusEarned {
		t.Error("bonus not set after 2 single + 2 multiple correct")
	}
	if p.SingleChoiceCorrect != 2 || p.MultipleChoiceCorrect != 2 || p.QuestionsCorrect != 4 {
		t.Errorf("tier counters: %+v", p)
	}
	if p.ScoreEarned != 8.0 {
		t.Errorf("tier score = %v, want 8.0", p.ScoreEarned)
	}
}

func TestTierBonusNotEarnedWithMiss(t *testing.T) {
	eng, cat, store := newEnv(t)
	s1 := question("s1", catalog.SingleChoice, catalog.TierInitiate, "A")
	s2 := question("s2", catalog.SingleChoice, catalog.TierInitiate, "B")
	m1 := question("m1", catalog.MultipleChoice, catalog.TierInitiate, "A", "B")
	m2 := question("m2", catalog.MultipleChoice, catalog.TierInitiate, "C", "D")
	seedCatalog(t, cat, s1, s2, m1, m2)

	s := mustStart(t, eng, "u1", catalog.Filters{})

	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "s1", SelectedOptionIDs: opts(s1, "A")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "s2", SelectedOptionIDs: opts(s2, "B")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "m1", SelectedOptionIDs: opts(m1, "A", "B")})
	// Miss the last multiple-choice question.
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "m2", SelectedOptionIDs: opts(m2, "C")})

	tiers, err := store.TierProgress(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("tier progress: %v", err)
	}
	p := tiers[0]
	if p.BonusEarned {
		t.Error("bonus set despite a miss")
	}
	if p.QuestionsAttempted != 4 || p.QuestionsCorrect != 3 {
		t.Errorf("tier counters: %+v", p)
	}
}

func TestRollupsPerDimension(t *testing.T) {
	eng, cat, store := newEnv(t)
	ctx := context.Background()
	// Second category to verify rollups stay separate.
	if err := cat.PutCategory(ctx, catalog.Category{ID: "cat-2", Name: "Cryptography", DisplayOrder: 2}); err != nil {
		t.Fatalf("put category: %v", err)
	}
	if err := cat.PutSubTheme(ctx, catalog.SubTheme{ID: "st-2", CategoryID: "cat-2", Name: "Hashing", DisplayOrder: 1}); err != nil {
		t.Fatalf("put sub-theme: %v", err)
	}
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "B")
	seedCatalog(t, cat, q1)
	q2.SubThemeID = "st-2"
	q2.Active = true
	if err := cat.PutQuestion(ctx, q2); err != nil {
		t.Fatalf("put question: %v", err)
	}

	s := mustStart(t, eng, "u1", catalog.Filters{})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q2", SelectedOptionIDs: opts(q2, "C")})

	cats, err := store.CategoryProgress(ctx, s.ID)
	if err != nil {
		t.Fatalf("category progress: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("category rows = %d, want 2", len(cats))
	}
	for _, p := range cats {
		switch p.DimensionID {
		case "cat-1":
			if p.QuestionsAttempted != 1 || p.QuestionsCorrect != 1 || p.ScoreEarned != 0.5 {
				t.Errorf("cat-1 rollup: %+v", p)
			}
			if p.AccuracyPercentage() != 100 {
				t.Errorf("cat-1 accuracy = %v", p.AccuracyPercentage())
			}
		case "cat-2":
			if p.QuestionsAttempted != 1 || p.QuestionsCorrect != 0 || p.ScoreEarned != 0 {
				t.Errorf("cat-2 rollup: %+v", p)
			}
			if p.AccuracyPercentage() != 0 {
				t.Errorf("cat-2 accuracy = %v", p.AccuracyPercentage())
			}
		default:
			t.Errorf("unexpected dimension %q", p.DimensionID)
		}
	}

	subs, err := store.SubThemeProgress(ctx, s.ID)
	if err != nil {
		t.Fatalf("sub-theme progress: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("sub-theme rows = %d, want 2", len(subs))
	}
}

func TestLifecycle(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "A")
	seedCatalog(t, cat, q1, q2)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})
	done, err := eng.CompleteSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != assessment.StatusCompleted || done.EndTime == nil {
		t.Errorf("completed session: %+v", done)
	}
	if d := done.DurationSeconds(); d == nil || *d < 0 {
		t.Errorf("duration = %v", d)
	}

	// Terminal states reject further transitions.
	if _, err := eng.CompleteSession(ctx, s.ID); !errors.Is(err, assessment.ErrSessionNotActive) {
		t.Errorf("complete twice: got %v, want ErrSessionNotActive", err)
	}
	if _, err := eng.AbandonSession(ctx, s.ID); !errors.Is(err, assessment.ErrSessionNotActive) {
		t.Errorf("abandon after complete: got %v, want ErrSessionNotActive", err)
	}

	if _, err := eng.CompleteSession(ctx, "no-such-session"); !errors.Is(err, assessment.ErrSessionNotActive) {
		t.Errorf("complete unknown: got %v, want ErrSessionNotActive", err)
	}
}

func TestAbandonIdleSessions(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierNovice, "A")
	seedCatalog(t, cat, q1, q2)
	ctx := context.Background()

	idle := mustStart(t, eng, "u1", catalog.Filters{})
	finished := mustStart(t, eng, "u2", catalog.Filters{})
	if _, err := eng.CompleteSession(ctx, finished.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// A generous timeout keeps fresh sessions alive.
	n, err := eng.AbandonIdleSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("swept %d sessions with an hour timeout", n)
	}

	time.Sleep(10 * time.Millisecond)
	n, err = eng.AbandonIdleSessions(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d sessions, want 1", n)
	}
	got, _ := eng.Session(ctx, idle.ID)
	if got.Status != assessment.StatusAbandoned || got.EndTime == nil {
		t.Errorf("idle session after sweep: status=%s endTime=%v", got.Status, got.EndTime)
	}
}

func TestProgressNextQuestion(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierAmateur, "B")
	seedCatalog(t, cat, q1, q2)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})
	snap, err := eng.Progress(ctx, s.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if snap.QuestionsAnswered != 0 || snap.QuestionsRemaining != 2 {
		t.Errorf("initial counts: %+v", snap)
	}
	if snap.NextQuestion == nil || snap.NextQuestion.ID != "q1" {
		t.Fatalf("next question = %+v, want q1", snap.NextQuestion)
	}
	// Served questions never leak the answer key.
	for _, o := range snap.NextQuestion.Options {
		if o.IsCorrect {
			t.Errorf("option %s leaked is_correct", o.ID)
		}
	}
	if snap.NextQuestion.Rationale != "" {
		t.Error("next question leaked rationale")
	}

	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})
	snap, err = eng.Progress(ctx, s.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if snap.NextQuestion == nil || snap.NextQuestion.ID != "q2" {
		t.Fatalf("next after q1 = %+v, want q2", snap.NextQuestion)
	}

	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q2", SelectedOptionIDs: opts(q2, "B")})
	snap, err = eng.Progress(ctx, s.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if snap.NextQuestion != nil {
		t.Errorf("next after all answered = %+v, want nil", snap.NextQuestion)
	}
	if snap.Status != assessment.StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
}

func TestReportDeterministic(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.MultipleChoice, catalog.TierExpert, "B", "D")
	seedCatalog(t, cat, q1, q2)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q2", SelectedOptionIDs: opts(q2, "D", "B")})

	first, err := eng.Report(ctx, s.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		rep, err := eng.Report(ctx, s.ID)
		if err != nil {
			t.Fatalf("report #%d: %v", i, err)
		}
		b, err := json.Marshal(rep)
		if err != nil {
			t.Fatalf("marshal #%d: %v", i, err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("report serialization differs on run %d:\n%s\n%s", i, a, b)
		}
	}
}

func TestReportContents(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	q2 := question("q2", catalog.MultipleChoice, catalog.TierExpert, "B", "D")
	seedCatalog(t, cat, q1, q2)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q2", SelectedOptionIDs: opts(q2, "D", "B")})

	rep, err := eng.Report(ctx, s.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Session.QuestionsAnswered != 2 || rep.Session.QuestionsTotal != 2 {
		t.Errorf("session head: %+v", rep.Session)
	}
	if rep.Session.TotalScore != 6.0 || rep.Session.TotalPossibleScore != 6.0 {
		t.Errorf("totals: %v / %v, want 6.0 / 6.0", rep.Session.TotalScore, rep.Session.TotalPossibleScore)
	}

	if len(rep.DifficultyBreakdown) != 2 {
		t.Fatalf("difficulty rows = %d, want 2", len(rep.DifficultyBreakdown))
	}
	// Easiest tier first.
	if rep.DifficultyBreakdown[0].Tier != catalog.TierNovice || rep.DifficultyBreakdown[1].Tier != catalog.TierExpert {
		t.Errorf("tier order: %s, %s", rep.DifficultyBreakdown[0].Tier, rep.DifficultyBreakdown[1].Tier)
	}
	if rep.DifficultyBreakdown[0].Points != 0.5 || rep.DifficultyBreakdown[1].Points != 5.5 {
		t.Errorf("tier points: %v, %v", rep.DifficultyBreakdown[0].Points, rep.DifficultyBreakdown[1].Points)
	}

	if len(rep.CategoryBreakdown) != 1 || rep.CategoryBreakdown[0].Name != "Network Security" {
		t.Errorf("category breakdown: %+v", rep.CategoryBreakdown)
	}
	if rep.CategoryBreakdown[0].AccuracyPercentage != 100 {
		t.Errorf("category accuracy = %v", rep.CategoryBreakdown[0].AccuracyPercentage)
	}

	if len(rep.QuestionDetails) != 2 {
		t.Fatalf("question details = %d, want 2", len(rep.QuestionDetails))
	}
	// Details follow the session question order; selections come back sorted.
	if rep.QuestionDetails[0].QuestionID != "q1" || rep.QuestionDetails[1].QuestionID != "q2" {
		t.Errorf("detail order: %s, %s", rep.QuestionDetails[0].QuestionID, rep.QuestionDetails[1].QuestionID)
	}
	sel := rep.QuestionDetails[1].SelectedOptionIDs
	if len(sel) != 2 || sel[0] > sel[1] {
		t.Errorf("selected IDs not sorted: %v", sel)
	}
	if rep.QuestionDetails[0].Rationale == "" {
		t.Error("report detail missing rationale")
	}
}

func TestSaveAndLoadReport(t *testing.T) {
	eng, cat, _ := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierNovice, "A")
	seedCatalog(t, cat, q1)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})
	mustSubmit(t, eng, s.ID, assessment.SubmitInput{QuestionID: "q1", SelectedOptionIDs: opts(q1, "A")})

	for _, typ := range []assessment.ReportType{assessment.ReportSummary, assessment.ReportDetailed, assessment.ReportCertificate} {
		rep, err := eng.SaveReport(ctx, s.ID, typ)
		if err != nil {
			t.Fatalf("save %s: %v", typ, err)
		}
		got, payload, err := eng.ReportPayload(ctx, rep.ID)
		if err != nil {
			t.Fatalf("load %s: %v", typ, err)
		}
		if got.SessionID != s.ID || got.Type != typ {
			t.Errorf("loaded row: %+v", got)
		}
		if !json.Valid(payload) {
			t.Errorf("%s payload is not valid JSON", typ)
		}
	}

	if _, err := eng.SaveReport(ctx, s.ID, "poster"); err == nil {
		t.Error("SaveReport accepted an unknown type")
	}
	if _, _, err := eng.ReportPayload(ctx, "no-such-report"); !errors.Is(err, assessment.ErrReportNotFound) {
		t.Errorf("unknown report: got %v, want ErrReportNotFound", err)
	}
}

func TestConcurrentSameQuestion(t *testing.T) {
	eng, cat, store := newEnv(t)
	q1 := question("q1", catalog.SingleChoice, catalog.TierAmateur, "A")
	q2 := question("q2", catalog.SingleChoice, catalog.TierAmateur, "A")
	seedCatalog(t, cat, q1, q2)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.SubmitAnswer(ctx, s.ID, assessment.SubmitInput{
				QuestionID:        "q1",
				SelectedOptionIDs: opts(q1, "A"),
			})
		}(i)
	}
	wg.Wait()

	okCount, dupCount := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, assessment.ErrDuplicateAnswer):
			dupCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || dupCount != workers-1 {
		t.Errorf("winners = %d, duplicates = %d, want 1 and %d", okCount, dupCount, workers-1)
	}
	n, _ := store.CountResponses(ctx, s.ID)
	if n != 1 {
		t.Errorf("responses = %d, want 1", n)
	}
	got, _ := eng.Session(ctx, s.ID)
	if got.TotalScore != 1.0 || got.TotalPossibleScore != 1.0 {
		t.Errorf("totals: %v / %v, want 1.0 / 1.0", got.TotalScore, got.TotalPossibleScore)
	}
}

func TestConcurrentDifferentQuestions(t *testing.T) {
	eng, cat, _ := newEnv(t)
	var qs []catalog.Question
	ids := []string{"qa", "qb", "qc", "qd", "qe"}
	for _, id := range ids {
		qs = append(qs, question(id, catalog.SingleChoice, catalog.TierAmateur, "A"))
	}
	seedCatalog(t, cat, qs...)
	ctx := context.Background()

	s := mustStart(t, eng, "u1", catalog.Filters{})

	var wg sync.WaitGroup
	for _, q := range qs {
		wg.Add(1)
		go func(q catalog.Question) {
			defer wg.Done()
			if _, err := eng.SubmitAnswer(ctx, s.ID, assessment.SubmitInput{
				QuestionID:        q.ID,
				SelectedOptionIDs: opts(q, "A"),
			}); err != nil {
				t.Errorf("submit %s: %v", q.ID, err)
			}
		}(q)
	}
	wg.Wait()

	got, err := eng.Session(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	want := float64(len(ids)) * 1.0
	if got.TotalScore != want || got.TotalPossibleScore != want {
		t.Errorf("totals: %v / %v, want %v / %v", got.TotalScore, got.TotalPossibleScore, want, want)
	}
	if got.Status != assessment.StatusCompleted {
		t.Errorf("status = %s, want completed after all answered", got.Status)
	}
	if got.CompletionPercentage != 100 {
		t.Errorf("completion = %v, want 100", got.CompletionPercentage)
	}
}

func TestSessionsForUser(t *testing.T) {
	eng, cat, _ := newEnv(t)
	seedCatalog(t, cat, question("q1", catalog.SingleChoice, catalog.TierNovice, "A"))
	ctx := context.Background()

	mustStart(t, eng, "alice", catalog.Filters{})
	mustStart(t, eng, "alice", catalog.Filters{})
	mustStart(t, eng, "bob", catalog.Filters{})

	got, err := eng.SessionsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("alice sessions = %d, want 2", len(got))
	}
	for _, s := range got {
		if s.UserID != "alice" {
			t.Errorf("foreign session in listing: %+v", s)
		}
	}
}
