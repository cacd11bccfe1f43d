package transcriber

import (
	"context"
	"sync"
)

// NoopProvider accepts audio and never produces results.
type NoopProvider struct{}

func NewNoopProvider() Provider {
	return NoopProvider{}
}

func (NoopProvider) Name() string { return "noop" }

func (NoopProvider) OpenStream(_ context.Context, cfg StreamConfig, _ StreamHandler) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &noopStream{}, nil
}

type noopStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *noopStream) Write(_ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrWriteAfterEnd
	}
	return nil
}

func (s *noopStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
