package cactus

import (
	"context"
	"sync"
)

// Stream is a completion consumed as a channel of tokens.
//
// Drain Tokens, call Result or call Close; a Stream left alone keeps its
// forwarding goroutine alive.
type Stream struct {
	tokens chan string
	done   chan struct{}
	quit   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	res *CompletionResult
	err error
}

// GenerateCompletionStream starts a completion and returns its Stream.
// Cancelling ctx or calling Close stops the generation.
func (lm *LM) GenerateCompletionStream(ctx context.Context, msgs []ChatMessage, params *CompletionParams) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		tokens: make(chan string),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		cancel: cancel,
	}
	q := newTokenQueue()

	go func() {
		defer close(s.done)
		s.res, s.err = lm.GenerateCompletion(ctx, msgs, params, q.push)
		q.finish()
	}()

	go func() {
		defer close(s.tokens)
		for {
			tok, ok := q.pop(s.quit)
			if !ok {
				return
			}
			select {
			case s.tokens <- tok:
			case <-s.quit:
				return
			}
		}
	}()
	return s
}

// Tokens yields tokens in generation order and is closed after the last one.
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Result waits for the completion. Tokens not yet received are discarded.
func (s *Stream) Result() (*CompletionResult, error) {
	<-s.done
	s.once.Do(func() { close(s.quit) })
	s.cancel()
	return s.res, s.err
}

// Close stops the generation and releases the stream.
func (s *Stream) Close() {
	s.cancel()
	s.once.Do(func() { close(s.quit) })
}

// tokenQueue buffers tokens between the engine callback and the consumer so
// the engine never blocks on a slow reader.
type tokenQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	notify chan struct{}
}

func newTokenQueue() *tokenQueue {
	return &tokenQueue{notify: make(chan struct{}, 1)}
}

func (q *tokenQueue) push(tok string) {
	q.mu.Lock()
	q.items = append(q.items, tok)
	q.mu.Unlock()
	q.signal()
}

func (q *tokenQueue) finish() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *tokenQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *tokenQueue) pop(quit <-chan struct{}) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			tok := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return tok, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", false
		}
		select {
		case <-q.notify:
		case <-quit:
			return "", false
		}
	}
}
