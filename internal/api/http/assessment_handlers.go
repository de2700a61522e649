package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillproof/skillproof-api/internal/assessment"
	authmw "github.com/skillproof/skillproof-api/internal/auth/middleware"
	"github.com/skillproof/skillproof-api/internal/catalog"
)

// POST /assessments
// { "category_ids": [...], "sub_theme_ids": [...], "difficulty_tiers": [...] }
func StartAssessmentHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CategoryIDs []string `json:"category_ids"`
			SubThemeIDs []string `json:"sub_theme_ids"`
			Tiers       []string `json:"difficulty_tiers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		f := catalog.Filters{
			CategoryIDs: req.CategoryIDs,
			SubThemeIDs: req.SubThemeIDs,
		}
		for _, t := range req.Tiers {
			f.Tiers = append(f.Tiers, catalog.Tier(t))
		}
		meta := assessment.SessionMeta{
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
		}
		s, qs, err := eng.StartSession(r.Context(), authmw.SubjectFromContext(r.Context()), f, meta)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		first := qs[0].StripAnswers()
		writeJSON(w, http.StatusCreated, map[string]any{
			"session":          s,
			"questions_total":  len(qs),
			"current_question": first,
		})
	}
}

// POST /assessments/{sessionID}/answers
func SubmitAnswerHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, err := eng.Session(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canTouchSession(r, s) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var in assessment.SubmitInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		res, err := eng.SubmitAnswer(r.Context(), id, in)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /assessments/{sessionID}/progress
func GetProgressHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, err := eng.Session(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canViewSession(r, s) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		snap, err := eng.Progress(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// POST /assessments/{sessionID}/complete
func CompleteAssessmentHandler(eng *assessment.Engine) http.HandlerFunc {
	return finishHandler(eng, (*assessment.Engine).CompleteSession)
}

// POST /assessments/{sessionID}/abandon
func AbandonAssessmentHandler(eng *assessment.Engine) http.HandlerFunc {
	return finishHandler(eng, (*assessment.Engine).AbandonSession)
}

func finishHandler(eng *assessment.Engine, fn func(*assessment.Engine, context.Context, string) (assessment.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, err := eng.Session(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canTouchSession(r, s) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		out, err := fn(eng, r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /assessments/{sessionID}/report
func GetReportHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, err := eng.Session(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canViewSession(r, s) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		rep, err := eng.Report(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// POST /assessments/{sessionID}/reports  { "report_type": "summary|detailed|certificate" }
func SaveReportHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, err := eng.Session(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canViewSession(r, s) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req struct {
			ReportType string `json:"report_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		rep, err := eng.SaveReport(r.Context(), id, assessment.ReportType(req.ReportType))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rep)
	}
}

// GET /reports/{reportID}
func GetSavedReportHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, payload, err := eng.ReportPayload(r.Context(), chi.URLParam(r, "reportID"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		s, err := eng.Session(r.Context(), rep.SessionID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canViewSession(r, s) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"report": rep,
			"data":   json.RawMessage(payload),
		})
	}
}

// GET /assessments lists the caller's sessions; viewers-of-all may pass ?user_id=.
func ListAssessmentsHandler(eng *assessment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		userID := sub
		if q := r.URL.Query().Get("user_id"); q != "" && viewerSeesAll(r) {
			userID = q
		}
		out, err := eng.SessionsForUser(r.Context(), userID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if out == nil {
			out = []assessment.Session{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
