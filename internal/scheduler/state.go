package scheduler

import (
	"sync"
	"time"
)

// runtimeState is the scheduler-owned in-memory bookkeeping: last attempt
// time and consecutive-failure count per job. It lives for the process
// only; a restart clears backoff, which is fine because a fresh start is
// not a failure signal.
type runtimeState struct {
	mu       sync.Mutex
	lastPoll map[string]time.Time
	retries  map[string]int
}

func newRuntimeState() *runtimeState {
	return &runtimeState{
		lastPoll: make(map[string]time.Time),
		retries:  make(map[string]int),
	}
}

func (s *runtimeState) LastPoll(jobID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastPoll[jobID]
	return t, ok
}

func (s *runtimeState) SetLastPoll(jobID string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPoll[jobID] = t
}

// ClearLastPoll makes the job immediately eligible on the next tick.
func (s *runtimeState) ClearLastPoll(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastPoll, jobID)
}

// BumpRetries increments and returns the consecutive-failure count.
func (s *runtimeState) BumpRetries(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[jobID]++
	return s.retries[jobID]
}

func (s *runtimeState) ResetRetries(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retries, jobID)
}

// Clear drops all bookkeeping for a job that reached a terminal status.
func (s *runtimeState) Clear(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastPoll, jobID)
	delete(s.retries, jobID)
}

func (s *runtimeState) TrackedJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastPoll)
}
