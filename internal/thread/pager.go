package thread

import (
	"context"
	"errors"

	"teejay/api/internal/metrics"
)

// pagerState tracks cursor pagination of the top-level comment list. Total
// is captured from the first page only; later pages never update it.
type pagerState struct {
	cursor   string
	hasMore  bool
	total    int
	totalSet bool
	fetching bool
	started  bool
}

// Initialize seeds the pager with a page that was already fetched alongside
// the surrounding content, avoiding a redundant request on first render.
// Only the first call has any effect.
func (t *Thread) Initialize(seed Page) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.pager.started {
		return
	}
	t.pager.started = true
	t.pager.total = seed.Total
	t.pager.totalSet = true
	t.pager.cursor = seed.NextCursor
	t.pager.hasMore = seed.NextCursor != ""
	t.mergeLocked("", seed.Comments, false)
}

// FetchNext loads the next top-level page and appends it, preserving the
// order of everything already rendered. It is a silent no-op while a fetch
// is in flight or once pagination is exhausted.
func (t *Thread) FetchNext(ctx context.Context) error {
	t.mu.Lock()
	if t.closed || t.pager.fetching || (t.pager.started && !t.pager.hasMore) {
		t.mu.Unlock()
		return nil
	}
	t.pager.fetching = true
	cursor := t.pager.cursor
	t.mu.Unlock()

	page, err := t.fetcher.ListTopLevel(ctx, t.postID, cursor, t.pageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pager.fetching = false
	if t.closed {
		return nil
	}
	if err != nil {
		metrics.ThreadFetchFailures.WithLabelValues("top").Inc()
		if errors.Is(err, ErrInvalidCursor) {
			t.resetTopLevelLocked()
		}
		return err
	}

	t.pager.started = true
	if !t.pager.totalSet {
		t.pager.total = page.Total
		t.pager.totalSet = true
	}
	t.mergeLocked("", page.Comments, false)
	t.pager.cursor = page.NextCursor
	t.pager.hasMore = page.NextCursor != ""
	return nil
}

// Total reports the top-level count captured with the first page. Advisory:
// it is not updated by later pages.
func (t *Thread) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pager.total
}

func (t *Thread) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.pager.started || t.pager.hasMore
}

// resetTopLevelLocked restarts top-level pagination after a cursor desync:
// accumulated top-level pages (and their subtrees) are discarded, other
// levels are untouched.
func (t *Thread) resetTopLevelLocked() {
	t.tree.removeLevel("")
	t.pruneStateLocked()
	t.pager.cursor = ""
	t.pager.hasMore = true
	t.pager.started = false
}
