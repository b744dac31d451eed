package client

import (
	"context"
	"sync"
	"time"

	"workboard-api/domain"
)

// FilterLocal filters a board the same way the server's search route does.
func FilterLocal(b domain.Board, query string) []domain.List {
	return domain.FilterLists(b.Lists, query)
}

// RemoteSearch runs a search against the server.
type RemoteSearch func(ctx context.Context, query string) ([]domain.List, error)

// SearchResult is a remote search outcome.
type SearchResult struct {
	Query string
	Lists []domain.List
	Err   error
}

// Searcher answers each keystroke from the local board and confirms the
// latest query remotely once typing pauses for the debounce interval.
// Results of superseded queries are discarded.
type Searcher struct {
	remote RemoteSearch
	delay  time.Duration

	mu      sync.Mutex
	board   domain.Board
	seq     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	closed  bool
	results chan SearchResult
}

// NewSearcher creates a searcher over board.
func NewSearcher(board domain.Board, remote RemoteSearch, delay time.Duration) *Searcher {
	return &Searcher{
		remote:  remote,
		delay:   delay,
		board:   board,
		results: make(chan SearchResult, 1),
	}
}

// SetBoard replaces the local snapshot.
func (s *Searcher) SetBoard(b domain.Board) {
	s.mu.Lock()
	s.board = b
	s.mu.Unlock()
}

// Results delivers remote results. Only the newest undelivered one is kept.
func (s *Searcher) Results() <-chan SearchResult {
	return s.results
}

// Update returns the local result for query and schedules a remote search.
func (s *Searcher) Update(query string) []domain.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	local := FilterLocal(s.board, query)
	if s.closed {
		return local
	}

	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.timer = time.AfterFunc(s.delay, func() {
		lists, err := s.remote(ctx, query)
		s.deliver(seq, SearchResult{Query: query, Lists: lists, Err: err})
	})
	return local
}

func (s *Searcher) deliver(seq uint64, r SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.seq {
		return
	}
	select {
	case <-s.results:
	default:
	}
	s.results <- r
}

// Close cancels pending work and closes the results channel.
func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	close(s.results)
}
