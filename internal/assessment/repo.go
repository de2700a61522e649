package assessment

import (
	"context"
	"time"
)

// AnswerRecord is the full effect of one scored answer: the response row,
// the session with its updated totals, and the three rollup rows at their
// post-answer values. A store persists the whole record atomically and
// returns ErrDuplicateAnswer when the (session, question) uniqueness is
// violated.
type AnswerRecord struct {
	Response Response
	Session  Session
	Tier     TierProgress
	Category DimProgress
	SubTheme DimProgress
}

type Store interface {
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]Session, error)

	// ApplyAnswer commits an AnswerRecord as one atomic unit.
	ApplyAnswer(ctx context.Context, rec AnswerRecord) error
	HasResponse(ctx context.Context, sessionID, questionID string) (bool, error)
	CountResponses(ctx context.Context, sessionID string) (int, error)
	ListResponses(ctx context.Context, sessionID string) ([]Response, error)

	// FinishSession transitions an in_progress session to a terminal status
	// and stamps end_time; it returns ErrSessionNotActive otherwise.
	FinishSession(ctx context.Context, id string, status Status, end time.Time) (Session, error)

	// ListIdleSessions returns in_progress session IDs whose last activity
	// (latest response, else start) predates cutoff.
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)

	TierProgress(ctx context.Context, sessionID string) ([]TierProgress, error)
	CategoryProgress(ctx context.Context, sessionID string) ([]DimProgress, error)
	SubThemeProgress(ctx context.Context, sessionID string) ([]DimProgress, error)

	PutReport(ctx context.Context, r Report) error
	GetReport(ctx context.Context, id string) (Report, error)
}
