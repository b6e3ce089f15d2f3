package session

// SetPages replaces the paginated view with freshly rendered pages and
// positions the cursor. An out-of-range index is clamped into bounds.
func (s *Session) SetPages(pages []string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
	s.pageIndex = clamp(index, len(pages))
}

// Current returns the page under the cursor along with its index and
// the total page count. With no pages it returns ("", 0, 0).
func (s *Session) Current() (string, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return "", 0, 0
	}
	return s.pages[s.pageIndex], s.pageIndex, len(s.pages)
}

// Next advances the cursor by one page. At the last page the cursor
// stays put and changed is false, so the caller can answer the tap
// without editing the message.
func (s *Session) Next() (page string, index int, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return "", 0, false
	}
	if s.pageIndex >= len(s.pages)-1 {
		return s.pages[s.pageIndex], s.pageIndex, false
	}
	s.pageIndex++
	return s.pages[s.pageIndex], s.pageIndex, true
}

// Prev moves the cursor back by one page, clamping at the first page.
func (s *Session) Prev() (page string, index int, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return "", 0, false
	}
	if s.pageIndex <= 0 {
		return s.pages[s.pageIndex], s.pageIndex, false
	}
	s.pageIndex--
	return s.pages[s.pageIndex], s.pageIndex, true
}

// Pages returns a copy of the stored pages.
func (s *Session) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pages))
	copy(out, s.pages)
	return out
}

// PageCount returns the number of stored pages.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func clamp(i, n int) int {
	if n == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
