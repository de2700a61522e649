package catalog

import (
	"context"
	"sort"
	"sync"
)

// memoryStore backs tests and single-process dev runs.
type memoryStore struct {
	mu         sync.RWMutex
	categories map[string]Category
	subThemes  map[string]SubTheme
	questions  map[string]Question
}

func NewInMemoryStore() Store {
	return &memoryStore{
		categories: map[string]Category{},
		subThemes:  map[string]SubTheme{},
		questions:  map[string]Question{},
	}
}

func (m *memoryStore) ListActiveQuestions(ctx context.Context, f Filters) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	catSet := toSet(f.CategoryIDs)
	subSet := toSet(f.SubThemeIDs)
	tierSet := map[Tier]bool{}
	for _, t := range f.Tiers {
		tierSet[t] = true
	}

	var out []Question
	for _, q := range m.questions {
		if !q.Active {
			continue
		}
		st, ok := m.subThemes[q.SubThemeID]
		if !ok {
			continue
		}
		if len(subSet) > 0 && !subSet[q.SubThemeID] {
			continue
		}
		if len(catSet) > 0 && !catSet[st.CategoryID] {
			continue
		}
		if len(tierSet) > 0 && !tierSet[q.Tier] {
			continue
		}
		out = append(out, m.denormalize(q))
	}
	sortQuestions(out)
	return out, nil
}

func (m *memoryStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return m.denormalize(q), nil
}

func (m *memoryStore) GetCategory(ctx context.Context, id string) (Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	return c, nil
}

func (m *memoryStore) GetSubTheme(ctx context.Context, id string) (SubTheme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.subThemes[id]
	if !ok {
		return SubTheme{}, ErrNotFound
	}
	return st, nil
}

func (m *memoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) PutCategory(ctx context.Context, c Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return nil
}

func (m *memoryStore) DeleteCategory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return ErrNotFound
	}
	delete(m.categories, id)
	for sid, st := range m.subThemes {
		if st.CategoryID != id {
			continue
		}
		delete(m.subThemes, sid)
		for qid, q := range m.questions {
			if q.SubThemeID == sid {
				delete(m.questions, qid)
			}
		}
	}
	return nil
}

func (m *memoryStore) ListSubThemes(ctx context.Context, categoryID string) ([]SubTheme, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SubTheme
	for _, st := range m.subThemes {
		if categoryID != "" && st.CategoryID != categoryID {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) PutSubTheme(ctx context.Context, st SubTheme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[st.CategoryID]; !ok {
		return ErrNotFound
	}
	m.subThemes[st.ID] = st
	return nil
}

func (m *memoryStore) DeleteSubTheme(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subThemes[id]; !ok {
		return ErrNotFound
	}
	delete(m.subThemes, id)
	for qid, q := range m.questions {
		if q.SubThemeID == id {
			delete(m.questions, qid)
		}
	}
	return nil
}

func (m *memoryStore) ListQuestions(ctx context.Context, opts ListOpts) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Question
	for _, q := range m.questions {
		if opts.SubThemeID != "" && q.SubThemeID != opts.SubThemeID {
			continue
		}
		if opts.Tier != "" && q.Tier != opts.Tier {
			continue
		}
		if opts.Type != "" && q.Type != opts.Type {
			continue
		}
		if opts.ActiveOnly != nil && q.Active != *opts.ActiveOnly {
			continue
		}
		out = append(out, m.denormalize(q))
	}
	sortQuestions(out)
	out = page(out, opts.Offset, opts.Limit)
	return out, nil
}

func (m *memoryStore) PutQuestion(ctx context.Context, q Question) error {
	if err := ValidateQuestion(q); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subThemes[q.SubThemeID]; !ok {
		return ErrNotFound
	}
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) DeleteQuestion(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrNotFound
	}
	delete(m.questions, id)
	return nil
}

// denormalize fills the category/sub-theme fields used for ordering and
// rollups. Caller holds at least the read lock.
func (m *memoryStore) denormalize(q Question) Question {
	if st, ok := m.subThemes[q.SubThemeID]; ok {
		q.SubThemeName = st.Name
		q.SubThemeOrder = st.DisplayOrder
		q.CategoryID = st.CategoryID
		if c, ok := m.categories[st.CategoryID]; ok {
			q.CategoryName = c.Name
			q.CategoryOrder = c.DisplayOrder
		}
	}
	q.Options = append([]AnswerOption(nil), q.Options...)
	sort.Slice(q.Options, func(i, j int) bool { return q.Options[i].DisplayOrder < q.Options[j].DisplayOrder })
	return q
}

// sortQuestions applies the catalog display order: category order, sub-theme
// order, tier order, then question ID as the stable tie-break.
func sortQuestions(qs []Question) {
	sort.Slice(qs, func(i, j int) bool {
		a, b := qs[i], qs[j]
		if a.CategoryOrder != b.CategoryOrder {
			return a.CategoryOrder < b.CategoryOrder
		}
		if a.SubThemeOrder != b.SubThemeOrder {
			return a.SubThemeOrder < b.SubThemeOrder
		}
		if ta, tb := TierOrder(a.Tier), TierOrder(b.Tier); ta != tb {
			return ta < tb
		}
		return a.ID < b.ID
	})
}

func toSet(ids []string) map[string]bool {
	s := map[string]bool{}
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func page(qs []Question, offset, limit int) []Question {
	if offset >= len(qs) {
		return nil
	}
	qs = qs[offset:]
	if limit > 0 && limit < len(qs) {
		qs = qs[:limit]
	}
	return qs
}
