package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"workboard-api/domain"
)

func searchBoard() domain.Board {
	b := domain.NewBoard("b1", "u1", "board", time.Now())
	b.Lists[0].Tasks = []domain.Task{{ID: "1", Title: "Urgent fix"}, {ID: "2", Title: "Refactor"}}
	b.Lists[2].Tasks = []domain.Task{{ID: "3", Title: "Review urgent PR"}}
	return b
}

type recordingRemote struct {
	mu      sync.Mutex
	queries []string
}

func (r *recordingRemote) search(ctx context.Context, query string) ([]domain.List, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	return FilterLocal(searchBoard(), query), nil
}

func (r *recordingRemote) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func countTasks(lists []domain.List) int {
	n := 0
	for _, l := range lists {
		n += len(l.Tasks)
	}
	return n
}

func TestSearcherAnswersLocallyAndDebouncesRemote(t *testing.T) {
	remote := &recordingRemote{}
	s := NewSearcher(searchBoard(), remote.search, 50*time.Millisecond)
	defer s.Close()

	if got := countTasks(s.Update("r")); got != 3 {
		t.Fatalf("expected 3 local matches for %q, got %d", "r", got)
	}
	s.Update("ur")
	if got := countTasks(s.Update("urgent")); got != 2 {
		t.Fatalf("expected 2 local matches, got %d", got)
	}

	select {
	case r := <-s.Results():
		if r.Query != "urgent" || r.Err != nil || countTasks(r.Lists) != 2 {
			t.Fatalf("unexpected remote result: %#v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for remote result")
	}
	if calls := remote.calls(); len(calls) != 1 || calls[0] != "urgent" {
		t.Fatalf("expected a single remote call for the last query, got %v", calls)
	}
}

func TestSearcherDiscardsSupersededResults(t *testing.T) {
	release := make(chan struct{})
	slow := func(ctx context.Context, query string) ([]domain.List, error) {
		if query == "slow" {
			<-release
			return nil, errors.New("stale")
		}
		return FilterLocal(searchBoard(), query), nil
	}
	s := NewSearcher(searchBoard(), slow, 10*time.Millisecond)
	defer s.Close()

	s.Update("slow")
	time.Sleep(50 * time.Millisecond) // remote call for "slow" is now in flight
	s.Update("review")
	close(release)

	select {
	case r := <-s.Results():
		if r.Query != "review" {
			t.Fatalf("expected only the latest query to be delivered, got %q", r.Query)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for remote result")
	}
	select {
	case r, ok := <-s.Results():
		if ok {
			t.Fatalf("unexpected extra result: %#v", r)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSearcherAfterClose(t *testing.T) {
	remote := &recordingRemote{}
	s := NewSearcher(searchBoard(), remote.search, time.Millisecond)
	s.Close()
	s.Close()

	if got := countTasks(s.Update("urgent")); got != 2 {
		t.Fatalf("local results must still work after close, got %d", got)
	}
	time.Sleep(20 * time.Millisecond)
	if calls := remote.calls(); len(calls) != 0 {
		t.Fatalf("no remote calls expected after close, got %v", calls)
	}
	if _, ok := <-s.Results(); ok {
		t.Fatal("results channel must be closed")
	}
}
