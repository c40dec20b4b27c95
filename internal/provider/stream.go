package provider

import (
	"context"
	"strings"
	"sync"
)

// Stream is a lazily produced sequence of text chunks. The producer runs in
// its own goroutine and stops as soon as the consumer closes the stream or
// the context is cancelled.
type Stream struct {
	chunks chan string
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// Producer writes chunks through emit until it is finished. emit reports
// false once the consumer is gone, after which the producer should return.
type Producer func(ctx context.Context, emit func(chunk string) bool) error

// NewStream starts produce and returns the consuming side.
// onDone hooks run after the producer returns, in order.
func NewStream(ctx context.Context, produce Producer, onDone ...func(err error)) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		emit := func(chunk string) bool {
			select {
			case s.chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := produce(ctx, emit)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		s.err = err
		for _, fn := range onDone {
			fn(err)
		}
		close(s.chunks)
		close(s.done)
	}()

	return s
}

// Chunks returns the channel of text chunks. It is closed when the producer ends.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Err returns the producer's error. It is only meaningful after Chunks is closed.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Close stops the producer and waits for it to finish.
func (s *Stream) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for chunk := range s.chunks {
		sb.WriteString(chunk)
	}
	err := s.Err()
	s.once.Do(s.cancel)
	return sb.String(), err
}

// StaticStream returns a stream that yields chunks in order and then ends with err.
func StaticStream(ctx context.Context, err error, chunks ...string) *Stream {
	return NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
		for _, c := range chunks {
			if !emit(c) {
				return ctx.Err()
			}
		}
		return err
	})
}
