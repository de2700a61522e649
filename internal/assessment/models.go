package assessment

import (
	"time"

	"github.com/skillproof/skillproof-api/internal/catalog"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

type ReportType string

const (
	ReportSummary     ReportType = "summary"
	ReportDetailed    ReportType = "detailed"
	ReportCertificate ReportType = "certificate"
)

// Session is one assessment run. QuestionIDs is the ordered question set
// fixed when the session starts; totals are maintained by the answer
// processor and never recomputed from scratch outside it.
type Session struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Status               Status     `json:"status"`
	TotalScore           float64    `json:"total_score"`
	TotalPossibleScore   float64    `json:"total_possible_score"`
	CompletionPercentage float64    `json:"completion_percentage"`
	QuestionIDs          []string   `json:"question_ids"`
	IPAddress            string     `json:"ip_address,omitempty"`
	UserAgent            string     `json:"user_agent,omitempty"`
}

// DurationSeconds is nil while the session has no end time.
func (s Session) DurationSeconds() *float64 {
	if s.EndTime == nil {
		return nil
	}
	d := s.EndTime.Sub(s.StartTime).Seconds()
	return &d
}

func (s Session) HasQuestion(questionID string) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Response records one answered question; at most one exists per
// (session, question).
type Response struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	QuestionID       string    `json:"question_id"`
	ResponseTime     time.Time `json:"response_time"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	DontKnow         bool      `json:"dont_know"`
	Correct          bool      `json:"is_correct"`
	ScoreEarned      float64   `json:"score_earned"`
	OptionIDs        []string  `json:"selected_option_ids"`
}

// TierProgress is the per-difficulty rollup for one session. BonusEarned is
// recomputed on every update, not latched.
type TierProgress struct {
	Tier                  catalog.Tier `json:"difficulty_tier"`
	QuestionsAttempted    int          `json:"questions_attempted"`
	QuestionsCorrect      int          `json:"questions_correct"`
	SingleChoiceCorrect   int          `json:"single_choice_correct"`
	MultipleChoiceCorrect int          `json:"multiple_choice_correct"`
	BonusEarned           bool         `json:"bonus_earned"`
	ScoreEarned           float64      `json:"score_earned"`
}

// DimProgress is the per-category or per-sub-theme rollup for one session.
type DimProgress struct {
	DimensionID        string  `json:"-"`
	Name               string  `json:"-"`
	QuestionsAttempted int     `json:"questions_attempted"`
	QuestionsCorrect   int     `json:"questions_correct"`
	ScoreEarned        float64 `json:"score_earned"`
}

// AccuracyPercentage is a derived read, never stored.
func (p DimProgress) AccuracyPercentage() float64 {
	if p.QuestionsAttempted == 0 {
		return 0
	}
	return float64(p.QuestionsCorrect) / float64(p.QuestionsAttempted) * 100
}

// SubmitInput is one answer submission.
type SubmitInput struct {
	QuestionID        string   `json:"question_id"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	DontKnow          bool     `json:"dont_know"`
	TimeSpentSeconds  int      `json:"time_spent_seconds"`
}

// SubmitResult is the running state returned after a scored answer.
type SubmitResult struct {
	Correct              bool    `json:"is_correct"`
	ScoreEarned          float64 `json:"score_earned"`
	PointsPossible       float64 `json:"points_possible"`
	TotalScore           float64 `json:"total_score"`
	TotalPossibleScore   float64 `json:"total_possible_score"`
	CompletionPercentage float64 `json:"completion_percentage"`
	QuestionsAnswered    int     `json:"questions_answered"`
	QuestionsRemaining   int     `json:"questions_remaining"`
	SessionStatus        Status  `json:"session_status"`
}

// SessionMeta is request-scoped context recorded on the session row.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// ProgressSnapshot is the mid-session view: where the taker is and what
// comes next. NextQuestion is answer-stripped and nil once everything is
// answered.
type ProgressSnapshot struct {
	SessionID          string            `json:"session_id"`
	Status             Status            `json:"status"`
	NextQuestion       *catalog.Question `json:"current_question,omitempty"`
	QuestionsAnswered  int               `json:"questions_answered"`
	QuestionsRemaining int               `json:"questions_remaining"`
	ScoreEarned        float64           `json:"score_earned"`
	TimeElapsedSeconds float64           `json:"time_elapsed_seconds"`
}

// SessionSnapshot heads the detailed report.
type SessionSnapshot struct {
	Session
	DurationSecs      *float64 `json:"duration_seconds,omitempty"`
	QuestionsAnswered int      `json:"questions_answered"`
	QuestionsTotal    int      `json:"questions_total"`
}

type TierBreakdown struct {
	Tier   catalog.Tier `json:"difficulty"`
	Points float64      `json:"points"`
	TierProgress
}

type DimBreakdown struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	QuestionsAttempted int     `json:"questions_attempted"`
	QuestionsCorrect   int     `json:"questions_correct"`
	ScoreEarned        float64 `json:"score_earned"`
	AccuracyPercentage float64 `json:"accuracy_percentage"`
}

type QuestionDetail struct {
	QuestionID        string               `json:"question_id"`
	QuestionText      string               `json:"question_text"`
	QuestionType      catalog.QuestionType `json:"question_type"`
	Tier              catalog.Tier         `json:"difficulty_tier"`
	SelectedOptionIDs []string             `json:"selected_option_ids"`
	DontKnow          bool                 `json:"dont_know"`
	Correct           bool                 `json:"is_correct"`
	ScoreEarned       float64              `json:"score_earned"`
	PointsPossible    float64              `json:"points_possible"`
	Rationale         string               `json:"rationale,omitempty"`
}

// DetailedReport is the full on-demand report. Assembly is side-effect-free
// and deterministic, so the same session state serializes identically.
type DetailedReport struct {
	Session             SessionSnapshot  `json:"session"`
	DifficultyBreakdown []TierBreakdown  `json:"difficulty_breakdown"`
	CategoryBreakdown   []DimBreakdown   `json:"category_breakdown"`
	SubThemeBreakdown   []DimBreakdown   `json:"sub_theme_breakdown"`
	QuestionDetails     []QuestionDetail `json:"question_details"`
}

// Report is a persisted, immutable snapshot row; the payload lives in the
// blob store under BlobPath.
type Report struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Type        ReportType `json:"report_type"`
	GeneratedAt time.Time  `json:"generated_at"`
	BlobPath    string     `json:"-"`
}
