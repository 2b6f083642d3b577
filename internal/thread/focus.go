package thread

import "context"

// Reply creates a comment under parentID ("" for top-level) and weaves the
// result back into the tree: the composer targeting the parent is cleared,
// the parent's subtree is forced open so the reply is visible, and the new
// node is queued for the scroll decision made in NotifyRendered.
func (t *Thread) Reply(ctx context.Context, parentID, content string) (Comment, error) {
	created, err := t.fetcher.CreateComment(ctx, t.postID, parentID, content)
	if err != nil {
		return Comment{}, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return created, nil
	}
	t.scope.clearComposer(parentID)
	t.pendingFocus = created.ID

	if parentID == "" {
		t.mergeLocked("", []Comment{created}, false)
		t.mu.Unlock()
		return created, nil
	}

	if t.tree.ChildrenLoaded(parentID) {
		t.mergeLocked(parentID, []Comment{created}, false)
		if n := t.tree.node(parentID); n != nil {
			ids, _ := t.tree.ChildIDs(parentID)
			n.ChildCount = len(ids)
		}
		t.ensureOpenLocked(parentID)
		t.mu.Unlock()
		// fold in anything else that arrived since the last refresh
		go t.refreshTick(parentID)
		return created, nil
	}
	t.mu.Unlock()

	// Collapsed parent: the blocking load includes the new reply.
	if err := t.Expand(ctx, parentID); err != nil {
		return created, err
	}
	return created, nil
}

// NotifyRendered is called by the UI once the updated subtree has been laid
// out. If a freshly created reply is pending focus and sits outside the
// viewport, it is scrolled into view; a reply already on screen is left
// alone.
func (t *Thread) NotifyRendered() {
	t.mu.Lock()
	id := t.pendingFocus
	t.pendingFocus = ""
	exists := id != "" && t.tree.node(id) != nil
	t.mu.Unlock()

	if !exists || t.viewport == nil {
		return
	}
	if t.viewport.IsVisible(id) {
		return
	}
	t.viewport.ScrollTo(id)
}

// Vote applies the viewer's vote and updates the target node's score and
// vote state in place. No other node changes.
func (t *Thread) Vote(ctx context.Context, commentID string, sign VoteSign) error {
	result, err := t.fetcher.SetVote(ctx, commentID, sign)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if n := t.tree.node(commentID); n != nil {
		n.Score = result.Score
		n.ViewerVote = result.ViewerVote
	}
	return nil
}
