// Package thread keeps a client-side comment tree for one post synchronized
// with the server: cursor pagination of top-level comments, lazy subtree
// loading, periodic refresh of open subtrees, and merge semantics that never
// lose state the viewer is relying on.
package thread

import (
	"context"
	"time"
)

type VoteSign string

const (
	VoteUp   VoteSign = "up"
	VoteDown VoteSign = "down"
	VoteNone VoteSign = "none"
)

type Author struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarID   string `json:"avatarId,omitempty"`
	IsVerified bool   `json:"isVerified"`
}

// Comment is the wire shape of one comment node. Children has three states:
// nil means not loaded yet, a pointer to an empty slice means loaded and
// empty, and a populated slice carries a preloaded subtree. ChildCount is
// authoritative regardless of whether Children is present.
type Comment struct {
	ID         string     `json:"id"`
	PostID     string     `json:"postId"`
	ParentID   string     `json:"parentId,omitempty"`
	Content    string     `json:"content"`
	Author     Author     `json:"author"`
	CreatedAt  time.Time  `json:"createdAt"`
	Score      int        `json:"score"`
	ViewerVote VoteSign   `json:"viewerVote"`
	ChildCount int        `json:"childCount"`
	Children   *[]Comment `json:"children,omitempty"`
}

type Page struct {
	Comments   []Comment `json:"comments"`
	NextCursor string    `json:"nextCursor,omitempty"`
	Total      int       `json:"total"`
}

type VoteResult struct {
	Score      int      `json:"score"`
	ViewerVote VoteSign `json:"viewerVote"`
}

// Fetcher is the read/write boundary to the comment API.
type Fetcher interface {
	ListTopLevel(ctx context.Context, postID, cursor string, limit int) (Page, error)
	ListChildren(ctx context.Context, postID, parentID, cursor string, limit int) (Page, error)
	CreateComment(ctx context.Context, postID, parentID, content string) (Comment, error)
	SetVote(ctx context.Context, commentID string, sign VoteSign) (VoteResult, error)
}

// Viewport is supplied by the embedding UI so the engine can decide whether a
// freshly created reply needs to be scrolled into view.
type Viewport interface {
	IsVisible(commentID string) bool
	ScrollTo(commentID string)
}
