// staging.go - Staged proof request awaiting user approval.

package proof

import (
	"sync"

	"privacypool/internal/metrics"
	"privacypool/internal/poolerr"
)

// StagingArea holds at most one request awaiting approval.
type StagingArea struct {
	mu  sync.Mutex
	req *Request
}

// Put stages req. It fails with StagingBusy while another request is staged.
func (s *StagingArea) Put(req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.req != nil {
		return poolerr.ErrStagingBusy
	}
	s.req = req
	metrics.StagedRequests.Set(1)
	return nil
}

// Peek returns the staged request without removing it.
func (s *StagingArea) Peek() (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req, s.req != nil
}

// Take removes and returns the staged request if its id matches. An empty id
// matches any staged request. Read and delete happen under one lock, so two
// concurrent Takes never both receive the request.
func (s *StagingArea) Take(id string) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.req == nil || (id != "" && s.req.ID != id) {
		return nil, false
	}
	req := s.req
	s.req = nil
	metrics.StagedRequests.Set(0)
	return req, true
}

// Discard removes the staged request if it has the given id.
func (s *StagingArea) Discard(id string) bool {
	_, ok := s.Take(id)
	return ok
}

// Clear drops whatever is staged and returns it.
func (s *StagingArea) Clear() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.req
	s.req = nil
	metrics.StagedRequests.Set(0)
	return req
}
