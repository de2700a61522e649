package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillproof/skillproof-api/internal/catalog"
)

// ListCategoriesHandler serves GET /catalog/categories.
func ListCategoriesHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := store.ListCategories(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if cats == nil {
			cats = []catalog.Category{}
		}
		writeJSON(w, http.StatusOK, cats)
	}
}

// GET /catalog/categories/{categoryID}/sub-themes
func ListSubThemesHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		catID := chi.URLParam(r, "categoryID")
		if _, err := store.GetCategory(r.Context(), catID); err != nil {
			writeEngineError(w, err)
			return
		}
		sts, err := store.ListSubThemes(r.Context(), catID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if sts == nil {
			sts = []catalog.SubTheme{}
		}
		writeJSON(w, http.StatusOK, sts)
	}
}

// ListQuestionsHandler serves GET /catalog/questions. Answer keys are
// stripped unless the caller holds catalog:manage. defaultActiveOnly
// applies when the caller does not pass ?active= explicitly.
func ListQuestionsHandler(store catalog.Store, defaultActiveOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := catalog.ListOpts{
			SubThemeID: q.Get("sub_theme_id"),
			Tier:       catalog.Tier(q.Get("difficulty_tier")),
			Type:       catalog.QuestionType(q.Get("question_type")),
			Limit:      intParam(q.Get("limit"), 50),
			Offset:     intParam(q.Get("offset"), 0),
		}
		if raw := q.Get("active"); raw != "" {
			v := raw == "true" || raw == "1"
			opts.ActiveOnly = &v
		} else if defaultActiveOnly {
			v := true
			opts.ActiveOnly = &v
		}
		qs, err := store.ListQuestions(r.Context(), opts)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		manage := canManageCatalog(r)
		out := make([]catalog.Question, 0, len(qs))
		for _, item := range qs {
			if manage {
				out = append(out, item)
			} else {
				out = append(out, item.StripAnswers())
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /catalog/questions/{questionID}
func GetQuestionHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !canManageCatalog(r) {
			q = q.StripAnswers()
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// PUT-or-create handlers below require catalog:manage at the route level.

func UpsertCategoryHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c catalog.Category
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if c.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		created := c.ID == ""
		if created {
			c.ID = uuid.NewString()
		}
		if err := store.PutCategory(r.Context(), c); err != nil {
			writeEngineError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, c)
	}
}

func DeleteCategoryHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpsertSubThemeHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var st catalog.SubTheme
		if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if st.Name == "" || st.CategoryID == "" {
			http.Error(w, "name and category_id required", http.StatusBadRequest)
			return
		}
		if _, err := store.GetCategory(r.Context(), st.CategoryID); err != nil {
			writeEngineError(w, err)
			return
		}
		created := st.ID == ""
		if created {
			st.ID = uuid.NewString()
		}
		if err := store.PutSubTheme(r.Context(), st); err != nil {
			writeEngineError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, st)
	}
}

func DeleteSubThemeHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteSubTheme(r.Context(), chi.URLParam(r, "subThemeID")); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpsertQuestionHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q catalog.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if q.SubThemeID == "" {
			http.Error(w, "sub_theme_id required", http.StatusBadRequest)
			return
		}
		if _, err := store.GetSubTheme(r.Context(), q.SubThemeID); err != nil {
			writeEngineError(w, err)
			return
		}
		created := q.ID == ""
		if created {
			q.ID = uuid.NewString()
		}
		for i := range q.Options {
			if q.Options[i].ID == "" {
				q.Options[i].ID = uuid.NewString()
			}
		}
		if err := catalog.ValidateQuestion(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutQuestion(r.Context(), q); err != nil {
			writeEngineError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, q)
	}
}

func DeleteQuestionHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
