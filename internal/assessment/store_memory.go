package assessment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skillproof/skillproof-api/internal/catalog"
)

// memoryStore keeps everything in maps behind one mutex. The engine's
// per-session lock already serializes read-modify-write cycles; this lock
// only protects map access itself.
type memoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	responses map[string]map[string]Response // sessionID -> questionID -> response
	tiers     map[string]map[catalog.Tier]TierProgress
	cats      map[string]map[string]DimProgress
	subs      map[string]map[string]DimProgress
	reports   map[string]Report
}

func NewInMemoryStore() Store {
	return &memoryStore{
		sessions:  map[string]Session{},
		responses: map[string]map[string]Response{},
		tiers:     map[string]map[catalog.Tier]TierProgress{},
		cats:      map[string]map[string]DimProgress{},
		subs:      map[string]map[string]DimProgress{},
		reports:   map[string]Report{},
	}
}

func (m *memoryStore) CreateSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	m.responses[s.ID] = map[string]Response{}
	m.tiers[s.ID] = map[catalog.Tier]TierProgress{}
	m.cats[s.ID] = map[string]DimProgress{}
	m.subs[s.ID] = map[string]DimProgress{}
	return nil
}

func (m *memoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotActive
	}
	return cloneSession(s), nil
}

func (m *memoryStore) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) ApplyAnswer(ctx context.Context, rec AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid := rec.Session.ID
	if _, ok := m.sessions[sid]; !ok {
		return ErrSessionNotActive
	}
	if _, exists := m.responses[sid][rec.Response.QuestionID]; exists {
		return ErrDuplicateAnswer
	}
	m.responses[sid][rec.Response.QuestionID] = rec.Response
	m.sessions[sid] = cloneSession(rec.Session)
	m.tiers[sid][rec.Tier.Tier] = rec.Tier
	m.cats[sid][rec.Category.DimensionID] = rec.Category
	m.subs[sid][rec.SubTheme.DimensionID] = rec.SubTheme
	return nil
}

func (m *memoryStore) HasResponse(ctx context.Context, sessionID, questionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.responses[sessionID][questionID]
	return ok, nil
}

func (m *memoryStore) CountResponses(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.responses[sessionID]), nil
}

func (m *memoryStore) ListResponses(ctx context.Context, sessionID string) ([]Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Response, 0, len(m.responses[sessionID]))
	for _, r := range m.responses[sessionID] {
		r.OptionIDs = append([]string(nil), r.OptionIDs...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ResponseTime.Equal(out[j].ResponseTime) {
			return out[i].ResponseTime.Before(out[j].ResponseTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) FinishSession(ctx context.Context, id string, status Status, end time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status.Terminal() {
		return Session{}, ErrSessionNotActive
	}
	s.Status = status
	if s.EndTime == nil {
		e := end
		s.EndTime = &e
	}
	m.sessions[id] = s
	return cloneSession(s), nil
}

func (m *memoryStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, s := range m.sessions {
		if s.Status != StatusInProgress {
			continue
		}
		last := s.StartTime
		for _, r := range m.responses[id] {
			if r.ResponseTime.After(last) {
				last = r.ResponseTime
			}
		}
		if last.Before(cutoff) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) TierProgress(ctx context.Context, sessionID string) ([]TierProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TierProgress, 0, len(m.tiers[sessionID]))
	for _, p := range m.tiers[sessionID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return catalog.TierOrder(out[i].Tier) < catalog.TierOrder(out[j].Tier)
	})
	return out, nil
}

func (m *memoryStore) CategoryProgress(ctx context.Context, sessionID string) ([]DimProgress, error) {
	return m.dimProgress(m.cats, sessionID)
}

func (m *memoryStore) SubThemeProgress(ctx context.Context, sessionID string) ([]DimProgress, error) {
	return m.dimProgress(m.subs, sessionID)
}

func (m *memoryStore) dimProgress(src map[string]map[string]DimProgress, sessionID string) ([]DimProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DimProgress, 0, len(src[sessionID]))
	for _, p := range src[sessionID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DimensionID < out[j].DimensionID })
	return out, nil
}

func (m *memoryStore) PutReport(ctx context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

func (m *memoryStore) GetReport(ctx context.Context, id string) (Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return r, nil
}

func cloneSession(s Session) Session {
	s.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	if s.EndTime != nil {
		e := *s.EndTime
		s.EndTime = &e
	}
	return s
}
