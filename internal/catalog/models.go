package catalog

import "errors"

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
)

// OptionsPerQuestion is fixed by the question format: every question is
// authored with exactly four answer options.
const OptionsPerQuestion = 4

type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

type SubTheme struct {
	ID           string `json:"id"`
	CategoryID   string `json:"category_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order"`
}

type AnswerOption struct {
	ID           string `json:"id"`
	OptionText   string `json:"option_text"`
	IsCorrect    bool   `json:"is_correct,omitempty"`
	DisplayOrder int    `json:"display_order"`
}

type Question struct {
	ID         string         `json:"id"`
	SubThemeID string         `json:"sub_theme_id"`
	Tier       Tier           `json:"difficulty_tier"`
	Type       QuestionType   `json:"question_type"`
	Text       string         `json:"question_text"`
	Rationale  string         `json:"rationale,omitempty"`
	Active     bool           `json:"is_active"`
	Options    []AnswerOption `json:"options"`
	CreatedAt  int64          `json:"created_at,omitempty"`

	// Denormalized from the owning sub-theme and category. Populated on
	// reads so callers can roll up and order without extra lookups.
	CategoryID    string `json:"category_id,omitempty"`
	CategoryName  string `json:"category,omitempty"`
	SubThemeName  string `json:"sub_theme,omitempty"`
	CategoryOrder int    `json:"-"`
	SubThemeOrder int    `json:"-"`
}

// Points returns the tier point value; 0 for an unknown tier.
func (q Question) Points() float64 {
	p, _ := PointsFor(q.Tier)
	return p
}

// CorrectOptionIDs returns the IDs of the options marked correct.
func (q Question) CorrectOptionIDs() []string {
	var out []string
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o.ID)
		}
	}
	return out
}

// HasOption reports whether id names one of q's answer options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// StripAnswers returns a copy of q safe to serve to an assessment taker:
// correct flags and the rationale are removed.
func (q Question) StripAnswers() Question {
	out := q
	out.Rationale = ""
	out.Options = make([]AnswerOption, len(q.Options))
	for i, o := range q.Options {
		o.IsCorrect = false
		out.Options[i] = o
	}
	return out
}

// ValidateQuestion enforces the authoring invariants: a known tier, exactly
// four options, and a correct-option count consistent with the question
// type (exactly one for single choice, one to four for multiple choice).
func ValidateQuestion(q Question) error {
	if _, err := PointsFor(q.Tier); err != nil {
		return err
	}
	if q.Type != SingleChoice && q.Type != MultipleChoice {
		return errors.New("question_type must be single_choice or multiple_choice")
	}
	if len(q.Options) != OptionsPerQuestion {
		return errors.New("question must have exactly 4 answer options")
	}
	correct := len(q.CorrectOptionIDs())
	switch q.Type {
	case SingleChoice:
		if correct != 1 {
			return errors.New("single_choice question must have exactly 1 correct option")
		}
	case MultipleChoice:
		if correct < 1 || correct > OptionsPerQuestion {
			return errors.New("multiple_choice question must have between 1 and 4 correct options")
		}
	}
	return nil
}
