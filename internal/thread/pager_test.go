package thread

import (
	"context"
	"errors"
	"testing"
)

func TestFetchNextAppendsPagesInOrder(t *testing.T) {
	pages := map[string]Page{
		"":   {Comments: []Comment{mc("a"), mc("b")}, NextCursor: "c1", Total: 4},
		"c1": {Comments: []Comment{mc("c"), mc("d")}, Total: 9},
	}
	var calls int
	fetcher := &fakeFetcher{
		listTopLevel: func(ctx context.Context, postID, cursor string, limit int) (Page, error) {
			calls++
			return pages[cursor], nil
		},
	}
	th := newTestThread(t, fetcher, &fakeViewport{})

	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if got := th.Total(); got != 4 {
		t.Fatalf("Total = %d, want 4", got)
	}
	if !th.HasMore() {
		t.Fatal("HasMore = false with a cursor outstanding")
	}

	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	ids, _ := th.ChildIDs("")
	want := []string{"a", "b", "c", "d"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
	// total is advisory and pinned to the first page
	if got := th.Total(); got != 4 {
		t.Fatalf("Total = %d after second page, want 4", got)
	}
	if th.HasMore() {
		t.Fatal("HasMore = true after exhaustion")
	}

	// exhausted: no further requests
	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", calls)
	}
}

func TestFetchNextOverlappingPagesDoNotDuplicate(t *testing.T) {
	pages := map[string]Page{
		"":   {Comments: []Comment{mc("a"), mc("b")}, NextCursor: "c1", Total: 3},
		"c1": {Comments: []Comment{mc("b"), mc("c")}},
	}
	fetcher := &fakeFetcher{
		listTopLevel: func(ctx context.Context, postID, cursor string, limit int) (Page, error) {
			return pages[cursor], nil
		},
	}
	th := newTestThread(t, fetcher, &fakeViewport{})
	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext: %v", err)
	}

	ids, _ := th.ChildIDs("")
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q in %v", id, ids)
		}
		seen[id] = true
	}
	if len(ids) != 3 {
		t.Fatalf("order = %v, want a b c", ids)
	}
}

func TestFetchNextSingleFlight(t *testing.T) {
	var calls int
	var th *Thread
	fetcher := &fakeFetcher{}
	fetcher.listTopLevel = func(ctx context.Context, postID, cursor string, limit int) (Page, error) {
		calls++
		// a second request while this one is in flight is a silent no-op
		if err := th.FetchNext(ctx); err != nil {
			t.Errorf("reentrant FetchNext: %v", err)
		}
		return Page{Comments: []Comment{mc("a")}}, nil
	}
	th = newTestThread(t, fetcher, &fakeViewport{})

	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("FetchNext: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

func TestFetchNextInvalidCursorRestartsTopLevel(t *testing.T) {
	responses := []func() (Page, error){
		func() (Page, error) {
			return Page{Comments: []Comment{mc("a"), mc("b")}, NextCursor: "stale", Total: 2}, nil
		},
		func() (Page, error) { return Page{}, ErrInvalidCursor },
		func() (Page, error) {
			return Page{Comments: []Comment{mc("b"), mc("c")}, Total: 2}, nil
		},
	}
	var cursors []string
	fetcher := &fakeFetcher{
		listTopLevel: func(ctx context.Context, postID, cursor string, limit int) (Page, error) {
			cursors = append(cursors, cursor)
			next := responses[0]
			responses = responses[1:]
			return next()
		},
	}
	th := newTestThread(t, fetcher, &fakeViewport{})

	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("first page: %v", err)
	}
	if err := th.FetchNext(context.Background()); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("err = %v, want invalid cursor", err)
	}

	// accumulated pages were discarded, pagination restarts from the top
	if th.ChildrenLoaded("") {
		t.Fatal("top level still loaded after cursor desync")
	}
	if !th.HasMore() {
		t.Fatal("HasMore = false after restart")
	}

	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("restarted page: %v", err)
	}
	ids, _ := th.ChildIDs("")
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("order after restart = %v", ids)
	}
	if cursors[2] != "" {
		t.Fatalf("restart fetched with cursor %q, want empty", cursors[2])
	}
}

func TestFetchNextTransientErrorKeepsState(t *testing.T) {
	boom := errors.New("network down")
	responses := []func() (Page, error){
		func() (Page, error) {
			return Page{Comments: []Comment{mc("a")}, NextCursor: "c1", Total: 5}, nil
		},
		func() (Page, error) { return Page{}, boom },
		func() (Page, error) {
			return Page{Comments: []Comment{mc("b")}}, nil
		},
	}
	fetcher := &fakeFetcher{
		listTopLevel: func(ctx context.Context, postID, cursor string, limit int) (Page, error) {
			next := responses[0]
			responses = responses[1:]
			return next()
		},
	}
	th := newTestThread(t, fetcher, &fakeViewport{})

	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("first page: %v", err)
	}
	if err := th.FetchNext(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// the rendered page and the cursor survive a transient failure
	ids, _ := th.ChildIDs("")
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("order after failure = %v", ids)
	}
	if err := th.FetchNext(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	ids, _ = th.ChildIDs("")
	if len(ids) != 2 || ids[1] != "b" {
		t.Fatalf("order after retry = %v", ids)
	}
}

func TestInitializeSeedsOnlyOnce(t *testing.T) {
	th := newTestThread(t, &fakeFetcher{}, &fakeViewport{})
	th.Initialize(Page{Comments: []Comment{mc("a")}, NextCursor: "c1", Total: 6})
	th.Initialize(Page{Comments: []Comment{mc("z")}, Total: 1})

	ids, _ := th.ChildIDs("")
	if len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("order = %v, want only the first seed", ids)
	}
	if th.Total() != 6 {
		t.Fatalf("Total = %d, want 6", th.Total())
	}
	if !th.HasMore() {
		t.Fatal("HasMore = false with a seeded cursor")
	}
}
