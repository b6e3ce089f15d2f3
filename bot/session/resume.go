package session

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Resume keys used by the handlers. A resume entry stores the action
// token of the screen a nested flow should return to.
const (
	ResumeExport = "export"
)

// ContentHash derives a short stable identifier from payload. Callback
// tokens embed it so they never carry the raw payload, which may be too
// long or hold bytes the token charset forbids. n limits the hex digest
// length to keep tokens short.
func ContentHash(payload string, n int) string {
	sum := md5.Sum([]byte(payload))
	digest := hex.EncodeToString(sum[:])
	if n > 0 && n < len(digest) {
		digest = digest[:n]
	}
	return digest
}

// PendingKey namespaces a content hash for the pending map, so the same
// payload staged for two purposes yields two independent entries.
func PendingKey(purpose, hash string) string {
	return purpose + ":" + hash
}

// ContentKey combines ContentHash and PendingKey. Identical payloads
// within one purpose share a key, so a repeated proposal overwrites
// rather than accumulates.
func ContentKey(purpose, payload string, n int) string {
	return PendingKey(purpose, ContentHash(payload, n))
}

// PutPending stages a proposal payload under key until the user either
// confirms it or cancels the flow.
func (s *Session) PutPending(key, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = payload
}

// Pending returns a staged proposal payload by key.
func (s *Session) Pending(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.pending[key]
	return v, ok
}

// TakePending returns and removes a staged proposal payload.
func (s *Session) TakePending(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	return v, ok
}

// PendingCount returns the number of staged proposals.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ReturnPoint snapshots the schedule screen a nested flow should come
// back to, for example after an export detour.
type ReturnPoint struct {
	Mode      Mode
	Query     string
	Date      time.Time
	Pages     []string
	PageIndex int
}

// SaveReturnPoint records where a nested flow should resume.
func (s *Session) SaveReturnPoint(flow string, rp ReturnPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resume[flow] = rp
}

// TakeReturnPoint returns and removes the saved return point for a flow.
func (s *Session) TakeReturnPoint(flow string) (ReturnPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.resume[flow]
	if ok {
		delete(s.resume, flow)
	}
	return rp, ok
}

// PeekReturnPoint returns the saved return point without removing it.
func (s *Session) PeekReturnPoint(flow string) (ReturnPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.resume[flow]
	return rp, ok
}

// RestoreReturnPoint consumes the return point for a flow and reapplies
// the snapshot to the session, so Current() shows the saved page again.
func (s *Session) RestoreReturnPoint(flow string) (ReturnPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rp, ok := s.resume[flow]
	if !ok {
		return ReturnPoint{}, false
	}
	delete(s.resume, flow)
	s.mode = rp.Mode
	s.lastQuery = rp.Query
	s.date = rp.Date
	s.pages = rp.Pages
	s.pageIndex = clamp(rp.PageIndex, len(rp.Pages))
	return rp, true
}
