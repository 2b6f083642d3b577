package thread

import (
	"context"
	"sync"
	"time"

	"teejay/api/internal/metrics"
)

const (
	defaultPageSize        = 20
	defaultRefreshInterval = 5 * time.Second
)

type Options struct {
	PageSize        int
	RefreshInterval time.Duration
}

// Thread owns all client state for one viewed post: the comment tree, the
// top-level pager, per-parent subtree loaders and the UI scope. All state
// changes are serialized behind one mutex; timers and network completions
// re-enter through methods that take it, so merges for a given parent never
// interleave.
type Thread struct {
	mu       sync.Mutex
	postID   string
	fetcher  Fetcher
	viewport Viewport

	tree    *Tree
	scope   *Scope
	loaders map[string]*loader
	pager   pagerState

	pendingFocus string

	pageSize     int
	refreshEvery time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewThread(postID string, fetcher Fetcher, viewport Viewport, opts Options) *Thread {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	refreshEvery := opts.RefreshInterval
	if refreshEvery <= 0 {
		refreshEvery = defaultRefreshInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Thread{
		postID:       postID,
		fetcher:      fetcher,
		viewport:     viewport,
		tree:         NewTree(),
		scope:        newScope(),
		loaders:      make(map[string]*loader),
		pageSize:     pageSize,
		refreshEvery: refreshEvery,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close tears the thread down on navigation away: every refresh timer stops
// and every pending fetch is cancelled. The tree is not reusable afterwards.
func (t *Thread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.cancel()
	for _, l := range t.loaders {
		l.stopTimerLocked()
	}
}

// Node returns a copy of one node.
func (t *Thread) Node(id string) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.tree.node(id)
	if n == nil {
		return Node{}, false
	}
	return *n, true
}

// ChildIDs returns the rendered child order for a parent ("" for top-level)
// and whether that level has been loaded.
func (t *Thread) ChildIDs(parentID string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.ChildIDs(parentID)
}

func (t *Thread) ChildrenLoaded(parentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.ChildrenLoaded(parentID)
}

// OpenComposer marks a reply composer as targeting the given comment ("" for
// a new top-level comment). While set, the target is protected from removal
// by refreshes.
func (t *Thread) OpenComposer(parentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scope.setComposer(parentID)
}

func (t *Thread) CloseComposer(parentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scope.clearComposer(parentID)
}

func (t *Thread) ComposerTarget(parentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scope.hasComposer(parentID)
}

// mergeLocked folds a fresh sibling set into the tree and brings loaders for
// any preloaded subtrees into the Open state so they start polling.
func (t *Thread) mergeLocked(parentID string, fresh []Comment, removeMissing bool) {
	t.tree.Merge(parentID, fresh, removeMissing, t.removalGuardLocked)
	metrics.ThreadMergesApplied.Inc()
	t.openPreloadedLocked(fresh)
	if removeMissing {
		t.pruneStateLocked()
	}
}

func (t *Thread) openPreloadedLocked(fresh []Comment) {
	for i := range fresh {
		f := &fresh[i]
		if f.Children == nil {
			continue
		}
		t.ensureOpenLocked(f.ID)
		t.openPreloadedLocked(*f.Children)
	}
}

// removalGuardLocked defers removal of a child while the viewer is actively
// interacting with it: a composer targets it or its subtree fetch is in
// flight.
func (t *Thread) removalGuardLocked(commentID string) bool {
	if t.scope.hasComposer(commentID) {
		return true
	}
	if l, ok := t.loaders[commentID]; ok && l.inflight {
		return true
	}
	return false
}

// pruneStateLocked drops loaders and scope entries for nodes that a merge
// removed from the tree.
func (t *Thread) pruneStateLocked() {
	for id, l := range t.loaders {
		if t.tree.node(id) == nil {
			l.stopTimerLocked()
			delete(t.loaders, id)
			t.scope.forget(id)
		}
	}
}

// Scope tracks transient UI state per comment id: whether its subtree is
// expanded in the viewport and whether a reply composer targets it. It is
// owned by the Thread mutex.
type Scope struct {
	open      map[string]bool
	composers map[string]bool
}

func newScope() *Scope {
	return &Scope{
		open:      make(map[string]bool),
		composers: make(map[string]bool),
	}
}

func (s *Scope) setOpen(id string, open bool) {
	if open {
		s.open[id] = true
		return
	}
	delete(s.open, id)
}

func (s *Scope) isOpen(id string) bool {
	return s.open[id]
}

func (s *Scope) setComposer(id string) {
	s.composers[id] = true
}

func (s *Scope) clearComposer(id string) {
	delete(s.composers, id)
}

func (s *Scope) hasComposer(id string) bool {
	return s.composers[id]
}

func (s *Scope) forget(id string) {
	delete(s.open, id)
	delete(s.composers, id)
}
