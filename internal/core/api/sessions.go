package api

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/types"
)

// StartSessionRequest starts a stepwise evaluation. With SessionID set the
// existing session is restarted with the new request instead.
type StartSessionRequest struct {
	RuleSetID string        `json:"ruleSetId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Request   types.Request `json:"request"`
}

// SessionRef names a live session.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// RuleRef identifies a rule by its sorted position.
type RuleRef struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// SessionView is the state returned by every session operation.
type SessionView struct {
	SessionID    types.SessionID   `json:"sessionId"`
	RuleSetID    types.RuleSetID   `json:"ruleSetId"`
	State        string            `json:"state"`
	Position     int               `json:"position"`
	RuleCount    int               `json:"ruleCount"`
	LastStep     *rules.Step       `json:"lastStep,omitempty"`
	NextRule     *RuleRef          `json:"nextRule,omitempty"`
	ActiveLabels []string          `json:"activeLabels"`
	Projection   *rules.Projection `json:"projection,omitempty"`
}

// CloseSessionResponse confirms a session was dropped.
type CloseSessionResponse struct {
	Closed bool `json:"closed"`
}

// sessionEntry serializes operations on one session; rules.Session is not
// safe for concurrent use.
type sessionEntry struct {
	mu          sync.Mutex
	workspaceID string
	ruleSetID   types.RuleSetID
	session     *rules.Session
}

// sessionStore holds live sessions. Entries expire ttl after their last use.
type sessionStore struct {
	cache *expirable.LRU[types.SessionID, *sessionEntry]
}

func newSessionStore(size int, ttl time.Duration) *sessionStore {
	return &sessionStore{cache: expirable.NewLRU[types.SessionID, *sessionEntry](size, nil, ttl)}
}

func (s *sessionStore) add(id types.SessionID, e *sessionEntry) {
	s.cache.Add(id, e)
}

// get returns the caller's session and refreshes its expiry. Sessions of
// other workspaces are reported as not found.
func (s *sessionStore) get(workspaceID string, id types.SessionID) (*sessionEntry, error) {
	e, ok := s.cache.Get(id)
	if !ok || e.workspaceID != workspaceID {
		return nil, types.ErrSessionNotFound
	}
	s.cache.Add(id, e)
	return e, nil
}

func (s *sessionStore) remove(id types.SessionID) {
	s.cache.Remove(id)
}

func (s *sessionStore) len() int {
	return s.cache.Len()
}

// StartSession creates a session over a stored rule set and evaluates the
// first rule, or restarts an existing session.
func (s *DebuggerService) StartSession(ctx context.Context, req *StartSessionRequest) (*SessionView, error) {
	httpReq := req.Request.Normalize()

	if req.SessionID != "" {
		return s.withSession(ctx, req.SessionID, func(_ types.SessionID, e *sessionEntry) (*rules.Step, error) {
			step, err := e.session.Start(httpReq)
			return &step, err
		})
	}

	loaded, ruleSetID, err := s.loadRuleSet(ctx, req.RuleSetID)
	if err != nil {
		return nil, err
	}

	session := rules.NewSessionFromSet(s.engine, loaded.set)
	step, err := session.Start(httpReq)
	if err != nil {
		return nil, toStatus(err)
	}

	id := types.NewSessionID()
	e := &sessionEntry{workspaceID: loaded.workspaceID, ruleSetID: ruleSetID, session: session}
	s.sessions.add(id, e)
	return newSessionView(id, e, &step), nil
}

// StepForward evaluates the next rule of a session.
func (s *DebuggerService) StepForward(ctx context.Context, req *SessionRef) (*SessionView, error) {
	return s.withSession(ctx, req.SessionID, func(_ types.SessionID, e *sessionEntry) (*rules.Step, error) {
		step, err := e.session.StepForward()
		return &step, err
	})
}

// StepBackward undoes the last step of a session.
func (s *DebuggerService) StepBackward(ctx context.Context, req *SessionRef) (*SessionView, error) {
	return s.withSession(ctx, req.SessionID, func(_ types.SessionID, e *sessionEntry) (*rules.Step, error) {
		return nil, e.session.StepBackward()
	})
}

// ResetSession returns a session to the empty state.
func (s *DebuggerService) ResetSession(ctx context.Context, req *SessionRef) (*SessionView, error) {
	return s.withSession(ctx, req.SessionID, func(_ types.SessionID, e *sessionEntry) (*rules.Step, error) {
		e.session.Reset()
		return nil, nil
	})
}

// GetSession returns a session's state without changing it.
func (s *DebuggerService) GetSession(ctx context.Context, req *SessionRef) (*SessionView, error) {
	return s.withSession(ctx, req.SessionID, func(types.SessionID, *sessionEntry) (*rules.Step, error) {
		return nil, nil
	})
}

// CloseSession drops a session.
func (s *DebuggerService) CloseSession(ctx context.Context, req *SessionRef) (*CloseSessionResponse, error) {
	ws, err := workspace(ctx)
	if err != nil {
		return nil, err
	}
	id, err := types.ParseSessionID(req.SessionID)
	if err != nil {
		return nil, invalidArgument("invalid session_id %q", req.SessionID)
	}
	if _, err := s.sessions.get(ws, id); err != nil {
		return nil, toStatus(err)
	}
	s.sessions.remove(id)
	return &CloseSessionResponse{Closed: true}, nil
}

// withSession resolves a session and runs op under its lock. A nil step
// from op means the view reports the last recorded step.
func (s *DebuggerService) withSession(ctx context.Context, rawID string, op func(types.SessionID, *sessionEntry) (*rules.Step, error)) (*SessionView, error) {
	ws, err := workspace(ctx)
	if err != nil {
		return nil, err
	}
	id, err := types.ParseSessionID(rawID)
	if err != nil {
		return nil, invalidArgument("invalid session_id %q", rawID)
	}
	e, err := s.sessions.get(ws, id)
	if err != nil {
		return nil, toStatus(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	step, err := op(id, e)
	if err != nil {
		return nil, toStatus(err)
	}
	return newSessionView(id, e, step), nil
}

// newSessionView snapshots e. Caller holds e.mu.
func newSessionView(id types.SessionID, e *sessionEntry, step *rules.Step) *SessionView {
	sess := e.session
	view := &SessionView{
		SessionID:    id,
		RuleSetID:    e.ruleSetID,
		State:        sess.State().String(),
		Position:     sess.Position(),
		RuleCount:    sess.RuleCount(),
		ActiveLabels: sess.ActiveLabels(),
	}

	history := sess.History()
	if step == nil && len(history) > 0 {
		step = &history[len(history)-1]
	}
	view.LastStep = step

	if sess.State() == rules.SessionRunning {
		projection := sess.Projection()
		view.Projection = &projection
		if next := sess.Position(); next < sess.RuleCount() {
			rule := sess.Rule(next)
			view.NextRule = &RuleRef{Index: next, Name: rule.Name, Priority: rule.Priority}
		}
	}
	return view
}
