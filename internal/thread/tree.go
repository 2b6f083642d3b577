package thread

import "time"

// Node is one comment held in the tree. Identity and content are fixed once
// created; Score, ViewerVote and ChildCount are updated in place on refresh.
type Node struct {
	ID         string
	PostID     string
	ParentID   string
	Content    string
	Author     Author
	CreatedAt  time.Time
	Score      int
	ViewerVote VoteSign
	ChildCount int
}

// Tree is a flat arena: nodes keyed by id plus an ordered child-id adjacency
// list per parent. The root level uses the empty parent id. A parent's entry
// in children being present (even empty) means its child list was loaded;
// absence means not loaded yet.
type Tree struct {
	nodes    map[string]*Node
	children map[string][]string
}

func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
	}
}

func (t *Tree) node(id string) *Node {
	return t.nodes[id]
}

// ChildIDs returns the ordered child ids of a parent and whether the child
// list has been loaded at all.
func (t *Tree) ChildIDs(parentID string) ([]string, bool) {
	ids, loaded := t.children[parentID]
	if !loaded {
		return nil, false
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, true
}

func (t *Tree) ChildrenLoaded(parentID string) bool {
	_, loaded := t.children[parentID]
	return loaded
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// RemovalGuard reports whether a node scheduled for removal must be kept for
// now (active composer or in-flight subtree fetch); deferred removals happen
// on a later refresh cycle.
type RemovalGuard func(commentID string) bool

// Merge reconciles a freshly fetched sibling set into parentID's child list.
//
// Every fresh node is upserted by id: existing nodes get their mutable fields
// updated in place, new ones are inserted. A fresh node carrying a preloaded
// Children slice is merged recursively; a fresh node without one never
// disturbs an existing deeper-loaded subtree.
//
// With removeMissing, the fetched set is authoritative: existing children
// absent from it are removed with their subtrees unless the guard defers
// them, and the new sibling order is the fetched order with deferred
// survivors kept at their prior position relative to surviving siblings.
// Without removeMissing (page append, single-reply fold-in), existing order
// is untouched and unseen fresh nodes append after it.
func (t *Tree) Merge(parentID string, fresh []Comment, removeMissing bool, guard RemovalGuard) {
	existing := t.children[parentID]

	freshSet := make(map[string]bool, len(fresh))
	for i := range fresh {
		f := &fresh[i]
		if freshSet[f.ID] {
			continue
		}
		freshSet[f.ID] = true
		t.upsert(parentID, f)
		if f.Children != nil {
			t.Merge(f.ID, *f.Children, removeMissing, guard)
		}
	}

	if !removeMissing {
		order := make([]string, 0, len(existing)+len(fresh))
		seen := make(map[string]bool, len(existing))
		for _, id := range existing {
			order = append(order, id)
			seen[id] = true
		}
		for i := range fresh {
			if !seen[fresh[i].ID] {
				order = append(order, fresh[i].ID)
				seen[fresh[i].ID] = true
			}
		}
		t.children[parentID] = order
		return
	}

	order := make([]string, 0, len(fresh))
	seen := make(map[string]bool, len(fresh))
	for i := range fresh {
		if !seen[fresh[i].ID] {
			order = append(order, fresh[i].ID)
			seen[fresh[i].ID] = true
		}
	}

	// Walk prior order backwards so that a survivor's successor is already
	// placed when the survivor is inserted.
	for i := len(existing) - 1; i >= 0; i-- {
		id := existing[i]
		if freshSet[id] {
			continue
		}
		if guard != nil && guard(id) {
			insertAt := len(order)
			for j := i + 1; j < len(existing); j++ {
				if at := indexOf(order, existing[j]); at >= 0 {
					insertAt = at
					break
				}
			}
			order = append(order, "")
			copy(order[insertAt+1:], order[insertAt:])
			order[insertAt] = id
			continue
		}
		t.removeSubtree(id)
	}
	t.children[parentID] = order
}

func (t *Tree) upsert(parentID string, f *Comment) {
	if existing := t.nodes[f.ID]; existing != nil {
		existing.Score = f.Score
		existing.ViewerVote = f.ViewerVote
		existing.ChildCount = f.ChildCount
		return
	}
	t.nodes[f.ID] = &Node{
		ID:         f.ID,
		PostID:     f.PostID,
		ParentID:   parentID,
		Content:    f.Content,
		Author:     f.Author,
		CreatedAt:  f.CreatedAt,
		Score:      f.Score,
		ViewerVote: f.ViewerVote,
		ChildCount: f.ChildCount,
	}
}

func (t *Tree) removeSubtree(id string) {
	for _, childID := range t.children[id] {
		t.removeSubtree(childID)
	}
	delete(t.children, id)
	delete(t.nodes, id)
}

// removeLevel discards a parent's entire loaded child list, returning the
// level to the not-loaded state. Used when pagination restarts from scratch.
func (t *Tree) removeLevel(parentID string) {
	for _, childID := range t.children[parentID] {
		t.removeSubtree(childID)
	}
	delete(t.children, parentID)
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
