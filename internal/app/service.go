package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"teejay/api/internal/config"
	"teejay/api/internal/cursor"
	"teejay/api/internal/metrics"
	"teejay/api/internal/session"
	"teejay/api/internal/store"
	"teejay/api/internal/util"
)

const maxCommentRunes = 10000

type AuthorPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarID   string `json:"avatarId,omitempty"`
	IsVerified bool   `json:"isVerified"`
}

// CommentPayload is the wire shape of a comment node. Children is a pointer
// so that "not loaded" (absent) and "loaded and empty" ([]) stay distinct on
// the wire; clients key their fetch decisions on that distinction.
type CommentPayload struct {
	ID         string            `json:"id"`
	PostID     string            `json:"postId"`
	ParentID   string            `json:"parentId,omitempty"`
	Content    string            `json:"content"`
	Author     AuthorPayload     `json:"author"`
	CreatedAt  time.Time         `json:"createdAt"`
	Score      int               `json:"score"`
	ViewerVote string            `json:"viewerVote"`
	ChildCount int               `json:"childCount"`
	Children   *[]CommentPayload `json:"children,omitempty"`
}

type CommentPage struct {
	Comments   []CommentPayload `json:"comments"`
	NextCursor string           `json:"nextCursor,omitempty"`
	Total      int              `json:"total"`
}

type VoteResult struct {
	Score      int    `json:"score"`
	ViewerVote string `json:"viewerVote"`
}

type dataStore interface {
	GetPost(ctx context.Context, postID string) (store.Post, error)
	GetUser(ctx context.Context, userID string) (store.User, error)
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	ListCommentPage(ctx context.Context, postID, parentID string, after *cursor.Position, limit int, viewerID string) ([]store.CommentRow, error)
	ListCommentsByParents(ctx context.Context, postID string, parentIDs []string, viewerID string) ([]store.CommentRow, error)
	CountComments(ctx context.Context, postID, parentID string) (int, error)
	InsertComment(ctx context.Context, item store.Comment) (time.Time, error)
	SetVote(ctx context.Context, commentID, userID string, sign int) (int, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	Lookup(ctx context.Context, token string) (session.Viewer, error)
	Ping(ctx context.Context) error
}

type writeLimiter interface {
	Allow(ctx context.Context, action, key string) (bool, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	limiter  writeLimiter
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, limiter writeLimiter) *Service {
	return &Service{cfg: cfg, store: dataStore, sessions: sessions, limiter: limiter}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}

// ViewerFromToken resolves a bearer token; an empty or unknown token yields
// the anonymous viewer (reads stay open, writes require authentication).
func (s *Service) ViewerFromToken(ctx context.Context, token string) session.Viewer {
	if token == "" || s.sessions == nil {
		return session.Viewer{}
	}
	viewer, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return session.Viewer{}
	}
	return viewer
}

// ListTopLevel projects one page of top-level comments for a post with
// exactly two levels of eagerly preloaded children: children and
// grandchildren ship as full nodes, grandchildren carry only a count of
// their own children.
func (s *Service) ListTopLevel(ctx context.Context, viewerID, postID, cursorToken string, pageSize int) (CommentPage, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentPage{}, notFound("Post not found")
		}
		return CommentPage{}, fmt.Errorf("load post: %w", err)
	}

	after, err := decodeCursorToken(cursorToken)
	if err != nil {
		return CommentPage{}, err
	}
	limit := s.normalizePageSize(pageSize)

	rows, err := s.store.ListCommentPage(ctx, postID, "", after, limit+1, viewerID)
	if err != nil {
		return CommentPage{}, err
	}
	rows, nextCursor := trimPage(rows, limit)

	total, err := s.store.CountComments(ctx, postID, "")
	if err != nil {
		return CommentPage{}, err
	}

	page := CommentPage{Comments: payloadsFromRows(rows), NextCursor: nextCursor, Total: total}

	// Depth-2 preload below the page.
	childrenByParent, err := s.preloadChildren(ctx, postID, ids(rows), viewerID)
	if err != nil {
		return CommentPage{}, err
	}
	grandchildren, err := s.preloadChildren(ctx, postID, keys(childrenByParent), viewerID)
	if err != nil {
		return CommentPage{}, err
	}
	for i := range page.Comments {
		attachChildren(&page.Comments[i], childrenByParent, grandchildren)
	}

	metrics.CommentsServed.WithLabelValues("top").Add(float64(len(page.Comments)))
	return page, nil
}

// ListChildren projects one page of a parent's direct children. Relative to
// the requested parent, preload depth is one level: the children themselves,
// each carrying only a count of its own children.
func (s *Service) ListChildren(ctx context.Context, viewerID, postID, parentID, cursorToken string, pageSize int) (CommentPage, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentPage{}, notFound("Post not found")
		}
		return CommentPage{}, fmt.Errorf("load post: %w", err)
	}
	parent, err := s.store.GetComment(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentPage{}, notFound("Comment not found")
		}
		return CommentPage{}, fmt.Errorf("load parent: %w", err)
	}
	if parent.PostID != postID {
		return CommentPage{}, notFound("Comment not found")
	}

	after, err := decodeCursorToken(cursorToken)
	if err != nil {
		return CommentPage{}, err
	}
	limit := s.normalizePageSize(pageSize)

	rows, err := s.store.ListCommentPage(ctx, postID, parentID, after, limit+1, viewerID)
	if err != nil {
		return CommentPage{}, err
	}
	rows, nextCursor := trimPage(rows, limit)

	total, err := s.store.CountComments(ctx, postID, parentID)
	if err != nil {
		return CommentPage{}, err
	}

	metrics.CommentsServed.WithLabelValues("children").Add(float64(len(rows)))
	return CommentPage{Comments: payloadsFromRows(rows), NextCursor: nextCursor, Total: total}, nil
}

// CreateComment validates and persists a comment, returning it projected for
// its creator: score zero, no vote, children loaded and empty.
func (s *Service) CreateComment(ctx context.Context, viewerID, postID, parentID, content string) (CommentPayload, error) {
	if viewerID == "" {
		return CommentPayload{}, unauthenticated()
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return CommentPayload{}, validationError("Comment must not be empty")
	}
	if utf8.RuneCountInString(content) > maxCommentRunes {
		return CommentPayload{}, validationError(fmt.Sprintf("Comment must be at most %d characters", maxCommentRunes))
	}

	if _, err := s.store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentPayload{}, notFound("Post not found")
		}
		return CommentPayload{}, fmt.Errorf("load post: %w", err)
	}
	if parentID != "" {
		parent, err := s.store.GetComment(ctx, parentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return CommentPayload{}, notFound("Parent comment not found")
			}
			return CommentPayload{}, fmt.Errorf("load parent: %w", err)
		}
		if parent.PostID != postID {
			return CommentPayload{}, notFound("Parent comment not found")
		}
	}

	if allowed, err := s.allow(ctx, "comment", viewerID); err == nil && !allowed {
		return CommentPayload{}, rateLimited()
	}

	author, err := s.store.GetUser(ctx, viewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentPayload{}, unauthenticated()
		}
		return CommentPayload{}, fmt.Errorf("load author: %w", err)
	}

	item := store.Comment{
		ID:       util.NewID("comment"),
		PostID:   postID,
		ParentID: parentID,
		AuthorID: viewerID,
		Content:  content,
	}
	createdAt, err := s.store.InsertComment(ctx, item)
	if err != nil {
		return CommentPayload{}, err
	}

	metrics.CommentsCreated.Inc()
	loadedEmpty := make([]CommentPayload, 0)
	return CommentPayload{
		ID:       item.ID,
		PostID:   postID,
		ParentID: parentID,
		Content:  content,
		Author: AuthorPayload{
			ID:         author.ID,
			Name:       author.DisplayName,
			AvatarID:   author.AvatarID,
			IsVerified: author.IsVerified,
		},
		CreatedAt:  createdAt,
		Score:      0,
		ViewerVote: "none",
		ChildCount: 0,
		Children:   &loadedEmpty,
	}, nil
}

// SetVote applies the viewer's vote and returns the recomputed score. Only
// the referenced comment is affected.
func (s *Service) SetVote(ctx context.Context, viewerID, commentID, sign string) (VoteResult, error) {
	if viewerID == "" {
		return VoteResult{}, unauthenticated()
	}
	numeric, err := parseSign(sign)
	if err != nil {
		return VoteResult{}, err
	}

	if allowed, err := s.allow(ctx, "vote", viewerID); err == nil && !allowed {
		return VoteResult{}, rateLimited()
	}

	score, err := s.store.SetVote(ctx, commentID, viewerID, numeric)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoteResult{}, notFound("Comment not found")
		}
		return VoteResult{}, err
	}

	metrics.VotesApplied.Inc()
	return VoteResult{Score: score, ViewerVote: sign}, nil
}

func (s *Service) allow(ctx context.Context, action, viewerID string) (bool, error) {
	if s.limiter == nil {
		return true, nil
	}
	return s.limiter.Allow(ctx, action, viewerID)
}

func (s *Service) normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return s.cfg.PageSize
	}
	if pageSize > 100 {
		return 100
	}
	return pageSize
}

// preloadChildren loads all direct children of the given parents and groups
// them by parent id, preserving row order.
func (s *Service) preloadChildren(ctx context.Context, postID string, parentIDs []string, viewerID string) (map[string][]store.CommentRow, error) {
	if len(parentIDs) == 0 {
		return map[string][]store.CommentRow{}, nil
	}
	rows, err := s.store.ListCommentsByParents(ctx, postID, parentIDs, viewerID)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]store.CommentRow, len(parentIDs))
	for _, id := range parentIDs {
		grouped[id] = []store.CommentRow{}
	}
	for _, row := range rows {
		grouped[row.ParentID] = append(grouped[row.ParentID], row)
	}
	return grouped, nil
}

// attachChildren wires two preloaded levels below node: its children (full
// nodes, each with its own children attached) and its grandchildren (full
// nodes whose children stay absent).
func attachChildren(node *CommentPayload, children, grandchildren map[string][]store.CommentRow) {
	rows, ok := children[node.ID]
	if !ok {
		return
	}
	payloads := payloadsFromRows(rows)
	for i := range payloads {
		if grandRows, ok := grandchildren[payloads[i].ID]; ok {
			grandPayloads := payloadsFromRows(grandRows)
			payloads[i].Children = &grandPayloads
		}
	}
	node.Children = &payloads
}

func decodeCursorToken(token string) (*cursor.Position, error) {
	if token == "" {
		return nil, nil
	}
	position, err := cursor.Decode(token)
	if err != nil {
		return nil, invalidCursor()
	}
	return &position, nil
}

// trimPage cuts the limit+1 probe row and derives the next cursor from the
// last row kept.
func trimPage(rows []store.CommentRow, limit int) ([]store.CommentRow, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	last := rows[len(rows)-1]
	return rows, cursor.Encode(cursor.Position{CreatedAt: last.CreatedAt, ID: last.ID})
}

func payloadsFromRows(rows []store.CommentRow) []CommentPayload {
	payloads := make([]CommentPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, CommentPayload{
			ID:       row.ID,
			PostID:   row.PostID,
			ParentID: row.ParentID,
			Content:  row.Content,
			Author: AuthorPayload{
				ID:         row.Author.ID,
				Name:       row.Author.DisplayName,
				AvatarID:   row.Author.AvatarID,
				IsVerified: row.Author.IsVerified,
			},
			CreatedAt:  row.CreatedAt,
			Score:      row.Score,
			ViewerVote: signName(row.ViewerSign),
			ChildCount: row.ChildCount,
		})
	}
	return payloads
}

func ids(rows []store.CommentRow) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out
}

func keys(grouped map[string][]store.CommentRow) []string {
	out := make([]string, 0)
	for _, rows := range grouped {
		for _, row := range rows {
			out = append(out, row.ID)
		}
	}
	return out
}

func signName(sign int) string {
	switch {
	case sign > 0:
		return "up"
	case sign < 0:
		return "down"
	default:
		return "none"
	}
}

func parseSign(sign string) (int, error) {
	switch sign {
	case "up":
		return 1, nil
	case "down":
		return -1, nil
	case "none":
		return 0, nil
	default:
		return 0, validationError("sign must be up, down or none")
	}
}
