package thread

import (
	"context"
	"errors"
	"log"
	"time"

	"teejay/api/internal/metrics"
)

type LoaderState int

const (
	// StateCollapsed: children not loaded, no network activity.
	StateCollapsed LoaderState = iota
	// StateLoading: the first fetch for this parent is in flight.
	StateLoading
	// StateOpen: children visible, background refresh timer running.
	StateOpen
	// StateClosed: collapsed by the viewer; children stay cached so
	// re-opening is instant.
	StateClosed
	// StatePlaceholder: the parent vanished server-side; passive, no retry.
	StatePlaceholder
)

// loader manages load-and-refresh for one parent's direct children.
type loader struct {
	state    LoaderState
	timer    *time.Timer
	inflight bool
	failures int
}

func (l *loader) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (t *Thread) loaderFor(parentID string) *loader {
	l, ok := t.loaders[parentID]
	if !ok {
		l = &loader{state: StateCollapsed}
		t.loaders[parentID] = l
	}
	return l
}

// State reports the loader state for a parent. Parents never expanded are
// Collapsed.
func (t *Thread) State(parentID string) LoaderState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.loaders[parentID]; ok {
		return l.state
	}
	return StateCollapsed
}

// Expand opens a parent's subtree. The first expansion fetches its children;
// re-expanding a Closed subtree serves the cache immediately and refreshes
// in the background. Expanding an Open or Loading subtree is a no-op.
func (t *Thread) Expand(ctx context.Context, parentID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	l := t.loaderFor(parentID)

	switch l.state {
	case StateOpen, StateLoading:
		t.mu.Unlock()
		return nil
	case StateClosed:
		if t.tree.ChildrenLoaded(parentID) {
			l.state = StateOpen
			t.scope.setOpen(parentID, true)
			t.scheduleRefreshLocked(parentID, l)
			t.mu.Unlock()
			go t.refreshTick(parentID)
			return nil
		}
		// cache gone, fall through to a blocking load
	}

	if l.inflight {
		t.mu.Unlock()
		return nil
	}
	l.state = StateLoading
	l.inflight = true
	t.mu.Unlock()

	comments, err := t.fetchAllChildren(ctx, parentID)

	t.mu.Lock()
	defer t.mu.Unlock()
	l.inflight = false
	if t.closed {
		return nil
	}
	if err != nil {
		metrics.ThreadFetchFailures.WithLabelValues("subtree").Inc()
		if errors.Is(err, ErrNotFound) {
			l.state = StatePlaceholder
		} else {
			l.state = StateCollapsed
		}
		return err
	}

	t.mergeLocked(parentID, comments, true)
	l.state = StateOpen
	l.failures = 0
	t.scope.setOpen(parentID, true)
	t.scheduleRefreshLocked(parentID, l)
	return nil
}

// Collapse closes an open subtree: the refresh timer stops, the cached
// children stay. An already in-flight fetch is not cancelled; its result is
// discarded on arrival.
func (t *Thread) Collapse(parentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.loaders[parentID]
	if !ok || l.state != StateOpen {
		return
	}
	l.state = StateClosed
	l.stopTimerLocked()
	t.scope.setOpen(parentID, false)
}

// ensureOpenLocked brings a parent whose children are already present into
// the Open state without fetching.
func (t *Thread) ensureOpenLocked(parentID string) {
	if !t.tree.ChildrenLoaded(parentID) {
		return
	}
	l := t.loaderFor(parentID)
	if l.state == StateOpen {
		return
	}
	l.state = StateOpen
	t.scope.setOpen(parentID, true)
	t.scheduleRefreshLocked(parentID, l)
}

func (t *Thread) scheduleRefreshLocked(parentID string, l *loader) {
	l.stopTimerLocked()
	l.timer = time.AfterFunc(t.refreshEvery, func() {
		t.refreshTick(parentID)
	})
}

// refreshTick is the background refresh entry for one open subtree. Failures
// are contained to this parent: prior content stays rendered and the timer
// keeps running, except NotFound, which parks the subtree as a placeholder.
func (t *Thread) refreshTick(parentID string) {
	t.mu.Lock()
	l, ok := t.loaders[parentID]
	if !ok || t.closed || l.state != StateOpen {
		t.mu.Unlock()
		return
	}
	if l.inflight {
		t.scheduleRefreshLocked(parentID, l)
		t.mu.Unlock()
		return
	}
	l.inflight = true
	t.mu.Unlock()

	metrics.ThreadRefreshTicks.Inc()
	comments, err := t.fetchAllChildren(t.ctx, parentID)

	t.mu.Lock()
	defer t.mu.Unlock()
	l.inflight = false
	if t.closed {
		return
	}
	if err != nil {
		metrics.ThreadFetchFailures.WithLabelValues("refresh").Inc()
		if errors.Is(err, ErrNotFound) {
			l.state = StatePlaceholder
			l.stopTimerLocked()
			t.scope.setOpen(parentID, false)
			return
		}
		l.failures++
		log.Printf("thread refresh failed post=%s parent=%s failures=%d: %v", t.postID, parentID, l.failures, err)
		if l.state == StateOpen {
			t.scheduleRefreshLocked(parentID, l)
		}
		return
	}
	if l.state != StateOpen {
		// closed while the fetch was in flight
		return
	}

	t.mergeLocked(parentID, comments, true)
	l.failures = 0
	t.scheduleRefreshLocked(parentID, l)
}

// fetchAllChildren follows the cursor until the parent's child list is
// complete, so refresh merges always see the authoritative sibling set.
func (t *Thread) fetchAllChildren(ctx context.Context, parentID string) ([]Comment, error) {
	var all []Comment
	cursor := ""
	for {
		page, err := t.fetcher.ListChildren(ctx, t.postID, parentID, cursor, t.pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Comments...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
