package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const questionCols = `q.id, q.sub_theme_id, q.difficulty_tier, q.question_type,
	q.question_text, q.rationale, q.is_active, q.created_at,
	st.name, st.display_order, c.id, c.name, c.display_order`

const questionJoin = `
	FROM questions q
	JOIN sub_themes st ON st.id = q.sub_theme_id
	JOIN categories c ON c.id = st.category_id`

// display order: category, sub-theme, tier (via a per-row rank), question ID
const questionOrder = ` ORDER BY c.display_order, st.display_order,
	CASE q.difficulty_tier
		WHEN 'novice' THEN 0 WHEN 'amateur' THEN 1 WHEN 'initiate' THEN 2
		WHEN 'professional' THEN 3 WHEN 'expert' THEN 4 ELSE 5 END,
	q.id`

func (s *SQLStore) ListActiveQuestions(ctx context.Context, f Filters) ([]Question, error) {
	where := []string{"q.is_active = TRUE"}
	var args []any
	if len(f.CategoryIDs) > 0 {
		where = append(where, "c.id IN ("+placeholders(len(args)+1, len(f.CategoryIDs))+")")
		for _, id := range f.CategoryIDs {
			args = append(args, id)
		}
	}
	if len(f.SubThemeIDs) > 0 {
		where = append(where, "st.id IN ("+placeholders(len(args)+1, len(f.SubThemeIDs))+")")
		for _, id := range f.SubThemeIDs {
			args = append(args, id)
		}
	}
	if len(f.Tiers) > 0 {
		where = append(where, "q.difficulty_tier IN ("+placeholders(len(args)+1, len(f.Tiers))+")")
		for _, t := range f.Tiers {
			args = append(args, string(t))
		}
	}
	query := "SELECT " + questionCols + questionJoin + " WHERE " + strings.Join(where, " AND ") + questionOrder
	return s.queryQuestions(ctx, query, args...)
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	qs, err := s.queryQuestions(ctx, "SELECT "+questionCols+questionJoin+" WHERE q.id=$1", id)
	if err != nil {
		return Question{}, err
	}
	if len(qs) == 0 {
		return Question{}, ErrNotFound
	}
	return qs[0], nil
}

func (s *SQLStore) GetCategory(ctx context.Context, id string) (Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, display_order FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

func (s *SQLStore) GetSubTheme(ctx context.Context, id string) (SubTheme, error) {
	var st SubTheme
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, category_id, name, description, display_order FROM sub_themes WHERE id=$1`, id).
		Scan(&st.ID, &st.CategoryID, &st.Name, &desc, &st.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return SubTheme{}, ErrNotFound
	}
	st.Description = desc.String
	return st, err
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_order FROM categories ORDER BY display_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutCategory(ctx context.Context, c Category) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name, display_order)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, display_order=EXCLUDED.display_order`,
		c.ID, c.Name, c.DisplayOrder)
	return err
}

func (s *SQLStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *SQLStore) ListSubThemes(ctx context.Context, categoryID string) ([]SubTheme, error) {
	query := `SELECT id, category_id, name, description, display_order FROM sub_themes`
	var args []any
	if categoryID != "" {
		query += ` WHERE category_id=$1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY display_order, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SubTheme
	for rows.Next() {
		var st SubTheme
		var desc sql.NullString
		if err := rows.Scan(&st.ID, &st.CategoryID, &st.Name, &desc, &st.DisplayOrder); err != nil {
			return nil, err
		}
		st.Description = desc.String
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutSubTheme(ctx context.Context, st SubTheme) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sub_themes (id, category_id, name, description, display_order)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET category_id=EXCLUDED.category_id, name=EXCLUDED.name,
			description=EXCLUDED.description, display_order=EXCLUDED.display_order`,
		st.ID, st.CategoryID, st.Name, st.Description, st.DisplayOrder)
	return err
}

func (s *SQLStore) DeleteSubTheme(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sub_themes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *SQLStore) ListQuestions(ctx context.Context, opts ListOpts) ([]Question, error) {
	where := []string{"1=1"}
	var args []any
	if opts.SubThemeID != "" {
		args = append(args, opts.SubThemeID)
		where = append(where, fmt.Sprintf("q.sub_theme_id=$%d", len(args)))
	}
	if opts.Tier != "" {
		args = append(args, string(opts.Tier))
		where = append(where, fmt.Sprintf("q.difficulty_tier=$%d", len(args)))
	}
	if opts.Type != "" {
		args = append(args, string(opts.Type))
		where = append(where, fmt.Sprintf("q.question_type=$%d", len(args)))
	}
	if opts.ActiveOnly != nil {
		args = append(args, *opts.ActiveOnly)
		where = append(where, fmt.Sprintf("q.is_active=$%d", len(args)))
	}
	query := "SELECT " + questionCols + questionJoin + " WHERE " + strings.Join(where, " AND ") + questionOrder
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryQuestions(ctx, query, args...)
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	if err := ValidateQuestion(q); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := q.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO questions
		(id, sub_theme_id, difficulty_tier, question_type, question_text, rationale, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET sub_theme_id=EXCLUDED.sub_theme_id,
			difficulty_tier=EXCLUDED.difficulty_tier, question_type=EXCLUDED.question_type,
			question_text=EXCLUDED.question_text, rationale=EXCLUDED.rationale,
			is_active=EXCLUDED.is_active`,
		q.ID, q.SubThemeID, string(q.Tier), string(q.Type), q.Text, q.Rationale, q.Active, created)
	if err != nil {
		return err
	}
	// options are replaced wholesale on edit
	if _, err := tx.ExecContext(ctx, `DELETE FROM answer_options WHERE question_id=$1`, q.ID); err != nil {
		return err
	}
	for _, o := range q.Options {
		if _, err := tx.ExecContext(ctx, `INSERT INTO answer_options
			(id, question_id, option_text, is_correct, display_order)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, q.ID, o.OptionText, o.IsCorrect, o.DisplayOrder); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRows(res)
}

func (s *SQLStore) queryQuestions(ctx context.Context, query string, args ...any) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var rationale sql.NullString
		var tier, typ string
		if err := rows.Scan(&q.ID, &q.SubThemeID, &tier, &typ, &q.Text, &rationale,
			&q.Active, &q.CreatedAt, &q.SubThemeName, &q.SubThemeOrder,
			&q.CategoryID, &q.CategoryName, &q.CategoryOrder); err != nil {
			return nil, err
		}
		q.Tier = Tier(tier)
		q.Type = QuestionType(typ)
		q.Rationale = rationale.String
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachOptions(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) attachOptions(ctx context.Context, qs []Question) error {
	if len(qs) == 0 {
		return nil
	}
	byID := make(map[string]*Question, len(qs))
	ids := make([]any, 0, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
		ids = append(ids, qs[i].ID)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, question_id, option_text, is_correct, display_order
		FROM answer_options WHERE question_id IN (`+placeholders(1, len(ids))+`)
		ORDER BY display_order, id`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var o AnswerOption
		var qid string
		if err := rows.Scan(&o.ID, &qid, &o.OptionText, &o.IsCorrect, &o.DisplayOrder); err != nil {
			return err
		}
		if q, ok := byID[qid]; ok {
			q.Options = append(q.Options, o)
		}
	}
	return rows.Err()
}

func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
