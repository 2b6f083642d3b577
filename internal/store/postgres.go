package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"teejay/api/internal/cursor"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	var post Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, author_id, created_at
		FROM posts
		WHERE id=$1
	`, postID).Scan(&post.ID, &post.Title, &post.AuthorID, &post.CreatedAt)
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, COALESCE(avatar_id, ''), is_verified, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.AvatarID, &user.IsVerified, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, COALESCE(parent_id, ''), author_id, content, score, created_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.PostID, &item.ParentID, &item.AuthorID, &item.Content, &item.Score, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

const commentRowColumns = `
	c.id, c.post_id, COALESCE(c.parent_id, ''), c.author_id, c.content, c.score, c.created_at,
	u.id, u.display_name, COALESCE(u.avatar_id, ''), u.is_verified,
	(SELECT COUNT(*) FROM comments ch WHERE ch.parent_id = c.id)::int,
	COALESCE(v.sign, 0)
`

// ListCommentPage returns one level of comments for a post, ordered
// created_at ASC with id as tie-break, filtered to positions strictly after
// the cursor. parentID empty selects top-level comments. viewerID empty
// yields a zero sign on every row.
func (s *PostgresStore) ListCommentPage(ctx context.Context, postID, parentID string, after *cursor.Position, limit int, viewerID string) ([]CommentRow, error) {
	query := `
		SELECT ` + commentRowColumns + `
		FROM comments c
		JOIN users u ON u.id = c.author_id
		LEFT JOIN comment_votes v ON v.comment_id = c.id AND v.user_id = NULLIF($2, '')
		WHERE c.post_id = $1
		  AND (($3::text = '' AND c.parent_id IS NULL) OR c.parent_id = NULLIF($3, ''))
		  AND ($4::timestamptz IS NULL OR (c.created_at, c.id) > ($4::timestamptz, $5::text))
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT $6
	`
	var afterAt any
	var afterID string
	if after != nil {
		afterAt = after.CreatedAt
		afterID = after.ID
	}
	rows, err := s.db.QueryContext(ctx, query, postID, viewerID, parentID, afterAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comment page: %w", err)
	}
	defer rows.Close()
	return scanCommentRows(rows)
}

// ListCommentsByParents returns all direct children of the given parents in
// one query, ordered created_at ASC, id ASC. Used for the eager preload of a
// top-level page.
func (s *PostgresStore) ListCommentsByParents(ctx context.Context, postID string, parentIDs []string, viewerID string) ([]CommentRow, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(parentIDs))
	args := []any{postID, viewerID}
	for _, id := range parentIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := `
		SELECT ` + commentRowColumns + `
		FROM comments c
		JOIN users u ON u.id = c.author_id
		LEFT JOIN comment_votes v ON v.comment_id = c.id AND v.user_id = NULLIF($2, '')
		WHERE c.post_id = $1
		  AND c.parent_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY c.created_at ASC, c.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments by parents: %w", err)
	}
	defer rows.Close()
	return scanCommentRows(rows)
}

func scanCommentRows(rows *sql.Rows) ([]CommentRow, error) {
	items := make([]CommentRow, 0)
	for rows.Next() {
		var item CommentRow
		if err := rows.Scan(
			&item.ID,
			&item.PostID,
			&item.ParentID,
			&item.AuthorID,
			&item.Content,
			&item.Score,
			&item.CreatedAt,
			&item.Author.ID,
			&item.Author.DisplayName,
			&item.Author.AvatarID,
			&item.Author.IsVerified,
			&item.ChildCount,
			&item.ViewerSign,
		); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountComments(ctx context.Context, postID, parentID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int
		FROM comments
		WHERE post_id = $1
		  AND (($2::text = '' AND parent_id IS NULL) OR parent_id = NULLIF($2, ''))
	`, postID, parentID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return total, nil
}

// InsertComment persists a comment and returns its server-assigned creation
// timestamp, the ordering key for every listing.
func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) (time.Time, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_id, content, score, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, 0, NOW())
		RETURNING created_at
	`, item.ID, item.PostID, item.ParentID, item.AuthorID, item.Content).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("insert comment: %w", err)
	}
	return createdAt, nil
}

// SetVote upserts the viewer's vote (sign -1 or +1; 0 removes it) and
// recomputes the comment's aggregate score in the same transaction. Returns
// the new score. sql.ErrNoRows when the comment does not exist.
func (s *PostgresStore) SetVote(ctx context.Context, commentID, userID string, sign int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin vote tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM comments WHERE id=$1)
	`, commentID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check comment: %w", err)
	}
	if !exists {
		return 0, sql.ErrNoRows
	}

	if sign == 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM comment_votes
			WHERE comment_id=$1 AND user_id=$2
		`, commentID, userID); err != nil {
			return 0, fmt.Errorf("delete vote: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comment_votes (comment_id, user_id, sign)
			VALUES ($1, $2, $3)
			ON CONFLICT (comment_id, user_id)
			DO UPDATE SET sign=EXCLUDED.sign, updated_at=NOW()
		`, commentID, userID, sign); err != nil {
			return 0, fmt.Errorf("upsert vote: %w", err)
		}
	}

	var score int
	err = tx.QueryRowContext(ctx, `
		UPDATE comments
		SET score = (SELECT COALESCE(SUM(sign), 0) FROM comment_votes WHERE comment_id=$1)
		WHERE id=$1
		RETURNING score
	`, commentID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sql.ErrNoRows
	}
	if err != nil {
		return 0, fmt.Errorf("recompute score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit vote tx: %w", err)
	}
	return score, nil
}
