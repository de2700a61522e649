package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skillproof/skillproof-api/internal/catalog"
)

// SQLStore persists sessions, responses, and rollups over database/sql.
// Placeholders are $N, which both the pgx and modernc sqlite drivers accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CreateSession(ctx context.Context, sess Session) error {
	qids, err := json.Marshal(sess.QuestionIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assessment_sessions
		(id, user_id, start_time, end_time, status, total_score, total_possible_score,
		 completion_percentage, question_ids, ip_address, user_agent)
		VALUES ($1,$2,$3,NULL,$4,$5,$6,$7,$8,$9,$10)`,
		sess.ID, sess.UserID, sess.StartTime.Unix(), string(sess.Status),
		sess.TotalScore, sess.TotalPossibleScore, sess.CompletionPercentage,
		string(qids), sess.IPAddress, sess.UserAgent)
	return err
}

const sessionCols = `id, user_id, start_time, end_time, status, total_score,
	total_possible_score, completion_percentage, question_ids, ip_address, user_agent`

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM assessment_sessions WHERE id=$1`, id))
}

func (s *SQLStore) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM assessment_sessions WHERE user_id=$1
		 ORDER BY start_time DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanSession(row rowScanner) (Session, error) {
	var sess Session
	var start int64
	var end sql.NullInt64
	var status, qids string
	var ip, ua sql.NullString
	err := row.Scan(&sess.ID, &sess.UserID, &start, &end, &status, &sess.TotalScore,
		&sess.TotalPossibleScore, &sess.CompletionPercentage, &qids, &ip, &ua)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotActive
	}
	if err != nil {
		return Session{}, err
	}
	sess.StartTime = time.Unix(start, 0).UTC()
	if end.Valid {
		t := time.Unix(end.Int64, 0).UTC()
		sess.EndTime = &t
	}
	sess.Status = Status(status)
	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	if err := json.Unmarshal([]byte(qids), &sess.QuestionIDs); err != nil {
		return Session{}, fmt.Errorf("decode question_ids: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) ApplyAnswer(ctx context.Context, rec AnswerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r := rec.Response
	_, err = tx.ExecContext(ctx, `INSERT INTO user_responses
		(id, session_id, question_id, response_time, time_spent_seconds, dont_know, is_correct, score_earned)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.SessionID, r.QuestionID, r.ResponseTime.Unix(),
		r.TimeSpentSeconds, r.DontKnow, r.Correct, r.ScoreEarned)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAnswer
		}
		return err
	}
	for i, oid := range r.OptionIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO response_answers
			(id, user_response_id, answer_option_id)
			VALUES ($1,$2,$3)`, fmt.Sprintf("%s-%d", r.ID, i), r.ID, oid); err != nil {
			return err
		}
	}

	sess := rec.Session
	if _, err := tx.ExecContext(ctx, `UPDATE assessment_sessions
		SET total_score=$1, total_possible_score=$2, completion_percentage=$3
		WHERE id=$4`,
		sess.TotalScore, sess.TotalPossibleScore, sess.CompletionPercentage, sess.ID); err != nil {
		return err
	}

	tp := rec.Tier
	if _, err := tx.ExecContext(ctx, `INSERT INTO difficulty_progress
		(session_id, difficulty_tier, questions_attempted, questions_correct,
		 single_choice_correct, multiple_choice_correct, bonus_earned, score_earned)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (session_id, difficulty_tier) DO UPDATE SET
			questions_attempted=EXCLUDED.questions_attempted,
			questions_correct=EXCLUDED.questions_correct,
			single_choice_correct=EXCLUDED.single_choice_correct,
			multiple_choice_correct=EXCLUDED.multiple_choice_correct,
			bonus_earned=EXCLUDED.bonus_earned,
			score_earned=EXCLUDED.score_earned`,
		sess.ID, string(tp.Tier), tp.QuestionsAttempted, tp.QuestionsCorrect,
		tp.SingleChoiceCorrect, tp.MultipleChoiceCorrect, tp.BonusEarned, tp.ScoreEarned); err != nil {
		return err
	}
	if err := upsertDim(ctx, tx, "category_progress", "category_id", sess.ID, rec.Category); err != nil {
		return err
	}
	if err := upsertDim(ctx, tx, "sub_theme_progress", "sub_theme_id", sess.ID, rec.SubTheme); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertDim(ctx context.Context, tx *sql.Tx, table, dimCol, sessionID string, p DimProgress) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO `+table+`
		(session_id, `+dimCol+`, questions_attempted, questions_correct, score_earned)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, `+dimCol+`) DO UPDATE SET
			questions_attempted=EXCLUDED.questions_attempted,
			questions_correct=EXCLUDED.questions_correct,
			score_earned=EXCLUDED.score_earned`,
		sessionID, p.DimensionID, p.QuestionsAttempted, p.QuestionsCorrect, p.ScoreEarned)
	return err
}

func (s *SQLStore) HasResponse(ctx context.Context, sessionID, questionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_responses WHERE session_id=$1 AND question_id=$2`,
		sessionID, questionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) CountResponses(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_responses WHERE session_id=$1`, sessionID).Scan(&n)
	return n, err
}

func (s *SQLStore) ListResponses(ctx context.Context, sessionID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, question_id, response_time,
		time_spent_seconds, dont_know, is_correct, score_earned
		FROM user_responses WHERE session_id=$1 ORDER BY response_time, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Response
	for rows.Next() {
		var r Response
		var ts int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &ts,
			&r.TimeSpentSeconds, &r.DontKnow, &r.Correct, &r.ScoreEarned); err != nil {
			return nil, err
		}
		r.ResponseTime = time.Unix(ts, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		ids, err := s.responseOptionIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].OptionIDs = ids
	}
	return out, nil
}

func (s *SQLStore) responseOptionIDs(ctx context.Context, responseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT answer_option_id FROM response_answers WHERE user_response_id=$1 ORDER BY answer_option_id`,
		responseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) FinishSession(ctx context.Context, id string, status Status, end time.Time) (Session, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE assessment_sessions
		SET status=$1, end_time=COALESCE(end_time, $2)
		WHERE id=$3 AND status=$4`,
		string(status), end.Unix(), id, string(StatusInProgress))
	if err != nil {
		return Session{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Session{}, err
	}
	if n == 0 {
		// missing or already terminal
		return Session{}, ErrSessionNotActive
	}
	return s.GetSession(ctx, id)
}

func (s *SQLStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.id
		FROM assessment_sessions s
		LEFT JOIN user_responses r ON r.session_id = s.id
		WHERE s.status=$1
		GROUP BY s.id, s.start_time
		HAVING COALESCE(MAX(r.response_time), s.start_time) < $2
		ORDER BY s.id`, string(StatusInProgress), cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) TierProgress(ctx context.Context, sessionID string) ([]TierProgress, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT difficulty_tier, questions_attempted,
		questions_correct, single_choice_correct, multiple_choice_correct, bonus_earned, score_earned
		FROM difficulty_progress WHERE session_id=$1
		ORDER BY CASE difficulty_tier
			WHEN 'novice' THEN 0 WHEN 'amateur' THEN 1 WHEN 'initiate' THEN 2
			WHEN 'professional' THEN 3 WHEN 'expert' THEN 4 ELSE 5 END`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TierProgress
	for rows.Next() {
		var p TierProgress
		var tier string
		if err := rows.Scan(&tier, &p.QuestionsAttempted, &p.QuestionsCorrect,
			&p.SingleChoiceCorrect, &p.MultipleChoiceCorrect, &p.BonusEarned, &p.ScoreEarned); err != nil {
			return nil, err
		}
		p.Tier = catalog.Tier(tier)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) CategoryProgress(ctx context.Context, sessionID string) ([]DimProgress, error) {
	return s.dimProgress(ctx, `SELECT p.category_id, COALESCE(c.name,''), p.questions_attempted,
		p.questions_correct, p.score_earned
		FROM category_progress p LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.session_id=$1 ORDER BY p.category_id`, sessionID)
}

func (s *SQLStore) SubThemeProgress(ctx context.Context, sessionID string) ([]DimProgress, error) {
	return s.dimProgress(ctx, `SELECT p.sub_theme_id, COALESCE(st.name,''), p.questions_attempted,
		p.questions_correct, p.score_earned
		FROM sub_theme_progress p LEFT JOIN sub_themes st ON st.id = p.sub_theme_id
		WHERE p.session_id=$1 ORDER BY p.sub_theme_id`, sessionID)
}

func (s *SQLStore) dimProgress(ctx context.Context, query, sessionID string) ([]DimProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DimProgress
	for rows.Next() {
		var p DimProgress
		if err := rows.Scan(&p.DimensionID, &p.Name, &p.QuestionsAttempted,
			&p.QuestionsCorrect, &p.ScoreEarned); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutReport(ctx context.Context, r Report) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO assessment_reports
		(id, session_id, report_type, generated_at, blob_path)
		VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.SessionID, string(r.Type), r.GeneratedAt.Unix(), r.BlobPath)
	return err
}

func (s *SQLStore) GetReport(ctx context.Context, id string) (Report, error) {
	var r Report
	var typ string
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT id, session_id, report_type, generated_at, blob_path
		FROM assessment_reports WHERE id=$1`, id).
		Scan(&r.ID, &r.SessionID, &typ, &ts, &r.BlobPath)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrReportNotFound
	}
	if err != nil {
		return Report{}, err
	}
	r.Type = ReportType(typ)
	r.GeneratedAt = time.Unix(ts, 0).UTC()
	return r, nil
}

// isUniqueViolation sniffs driver-specific unique-index errors so the race
// loser on (session_id, question_id) surfaces as ErrDuplicateAnswer.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value violates unique") // postgres
}
