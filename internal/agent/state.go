package agent

import (
	"context"
	"sync"

	adkagent "google.golang.org/adk/agent"
)

// requestState is shared by every agent run of one top-level request,
// including agent tools that ADK runs in their own sessions.
type requestState struct {
	mu       sync.Mutex
	turns    map[string]int
	failure  error
	tripwire *TripwireError
	usage    Usage
}

type stateKey struct{}

func withState(ctx context.Context) (context.Context, *requestState) {
	if st := stateFrom(ctx); st != nil {
		return ctx, st
	}
	st := &requestState{turns: map[string]int{}}
	return context.WithValue(ctx, stateKey{}, st), st
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey{}).(*requestState)
	return st
}

// Fail records err as the cause that aborts the current request: the next
// model call of any agent in the request halts with it. Only the first
// failure is kept. Tools use it for errors the model must not retry around.
func Fail(ctx context.Context, err error) {
	stateFrom(ctx).fail(err)
}

func (s *requestState) fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = err
	}
}

func (s *requestState) err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *requestState) trip(t *TripwireError) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tripwire == nil {
		s.tripwire = t
	}
}

func (s *requestState) tripped() *TripwireError {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripwire
}

// turn counts one model call in session and returns the new count.
func (s *requestState) turn(session string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[session]++
	return s.turns[session]
}

func (s *requestState) turnsIn(session string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns[session]
}

func (s *requestState) addUsage(in, out int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.InputTokens += in
	s.usage.OutputTokens += out
}

func (s *requestState) totalUsage() Usage {
	if s == nil {
		return Usage{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

func sessionKey(ctx adkagent.ReadonlyContext) string {
	return ctx.AppName() + "/" + ctx.SessionID()
}
