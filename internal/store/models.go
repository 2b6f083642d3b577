package store

import "time"

type User struct {
	ID          string
	DisplayName string
	AvatarID    string
	IsVerified  bool
	CreatedAt   time.Time
}

type Post struct {
	ID        string
	Title     string
	AuthorID  string
	CreatedAt time.Time
}

type Comment struct {
	ID        string
	PostID    string
	ParentID  string // empty for top-level
	AuthorID  string
	Content   string
	Score     int
	CreatedAt time.Time
}

// CommentRow is one projected row of a comment listing: the comment, its
// denormalized author, the count of direct children, and the requesting
// viewer's own vote sign (0 when the viewer has not voted or is anonymous).
type CommentRow struct {
	Comment
	Author     User
	ChildCount int
	ViewerSign int
}
