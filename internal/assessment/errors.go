package assessment

import "errors"

// Domain error kinds. Handlers map these to HTTP statuses with errors.Is;
// detail is attached by wrapping (fmt.Errorf("%w: ...", Err...)). Anything
// not matching one of these is an infrastructure failure.
var (
	// ErrInvalidFilter: a session-start filter names an unknown category,
	// sub-theme, or tier.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrNoQuestionsAvailable: the filtered question set is empty.
	ErrNoQuestionsAvailable = errors.New("no questions available for the given filters")

	// ErrSessionNotActive: the session does not exist or is terminal.
	ErrSessionNotActive = errors.New("session not active")

	// ErrDuplicateAnswer: the question was already answered in this session.
	ErrDuplicateAnswer = errors.New("question already answered in this session")

	// ErrInvalidSubmission: the submission itself is malformed (dont_know
	// with selections, negative time spent, options foreign to the
	// question, or a question outside the session's set).
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrReportNotFound: no persisted report snapshot with that ID.
	ErrReportNotFound = errors.New("report not found")
)
