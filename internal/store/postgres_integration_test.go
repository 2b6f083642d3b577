package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"teejay/api/internal/cursor"
)

// Exercises the real schema end to end. Skipped unless a scratch database is
// provided; the suite truncates the comment tables it touches.
func TestCommentStoreRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEEJAY_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEEJAY_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE comment_votes, comments, posts, users CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	s := NewPostgresStore(db)

	mustExec := func(query string, args ...any) {
		t.Helper()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			t.Fatalf("exec %s: %v", query, err)
		}
	}
	mustExec(`INSERT INTO users (id, display_name, is_verified) VALUES ('user_a', 'Avery', TRUE)`)
	mustExec(`INSERT INTO posts (id, title, author_id) VALUES ('post_1', 'First post', 'user_a')`)

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"comment_1", "comment_2", "comment_3"} {
		mustExec(`INSERT INTO comments (id, post_id, author_id, content, created_at) VALUES ($1, 'post_1', 'user_a', $2, $3)`,
			id, "body "+id, base.Add(time.Duration(i)*time.Second))
	}
	mustExec(`INSERT INTO comments (id, post_id, parent_id, author_id, content, created_at) VALUES ('comment_1_1', 'post_1', 'comment_1', 'user_a', 'reply', $1)`,
		base.Add(10*time.Second))

	page, err := s.ListCommentPage(ctx, "post_1", "", nil, 2, "user_a")
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page) != 2 || page[0].ID != "comment_1" || page[1].ID != "comment_2" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page[0].ChildCount != 1 {
		t.Errorf("expected child count 1 for comment_1, got %d", page[0].ChildCount)
	}

	after := cursor.Position{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	rest, err := s.ListCommentPage(ctx, "post_1", "", &after, 2, "")
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "comment_3" {
		t.Fatalf("unexpected second page: %+v", rest)
	}

	total, err := s.CountComments(ctx, "post_1", "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 top-level comments, got %d", total)
	}

	score, err := s.SetVote(ctx, "comment_1", "user_a", 1)
	if err != nil {
		t.Fatalf("set vote: %v", err)
	}
	if score != 1 {
		t.Errorf("expected score 1, got %d", score)
	}
	score, err = s.SetVote(ctx, "comment_1", "user_a", 0)
	if err != nil {
		t.Fatalf("clear vote: %v", err)
	}
	if score != 0 {
		t.Errorf("expected score 0 after clearing, got %d", score)
	}

	children, err := s.ListCommentsByParents(ctx, "post_1", []string{"comment_1", "comment_2"}, "")
	if err != nil {
		t.Fatalf("list by parents: %v", err)
	}
	if len(children) != 1 || children[0].ID != "comment_1_1" {
		t.Fatalf("unexpected children: %+v", children)
	}
}
