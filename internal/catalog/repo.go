package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned for lookups of unknown catalog entities.
var ErrNotFound = errors.New("catalog: not found")

// Filters narrows a question listing. A nil/empty slice leaves that axis
// unrestricted.
type Filters struct {
	CategoryIDs []string
	SubThemeIDs []string
	Tiers       []Tier
}

// ListOpts is the paging/filter shape for catalog management listings.
type ListOpts struct {
	SubThemeID string
	Tier       Tier
	Type       QuestionType
	ActiveOnly *bool // nil = unfiltered
	Limit      int
	Offset     int
}

// Store is the catalog accessor. The assessment engine consumes only the
// read side (ListActiveQuestions, GetQuestion, the Get* lookups); the
// write side serves catalog management.
type Store interface {
	// ListActiveQuestions returns active questions matching f, with answer
	// keys and denormalized category/sub-theme fields, ordered by catalog
	// display order (category, then sub-theme, then tier, then question ID).
	ListActiveQuestions(ctx context.Context, f Filters) ([]Question, error)
	GetQuestion(ctx context.Context, id string) (Question, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	GetSubTheme(ctx context.Context, id string) (SubTheme, error)

	ListCategories(ctx context.Context) ([]Category, error)
	PutCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, id string) error

	ListSubThemes(ctx context.Context, categoryID string) ([]SubTheme, error)
	PutSubTheme(ctx context.Context, st SubTheme) error
	DeleteSubTheme(ctx context.Context, id string) error

	ListQuestions(ctx context.Context, opts ListOpts) ([]Question, error)
	PutQuestion(ctx context.Context, q Question) error
	DeleteQuestion(ctx context.Context, id string) error
}
