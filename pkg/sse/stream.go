package sse

import (
	"context"
	"io"
	"sync"
)

// Stream is a lazy, non-restartable sequence of deltas read from a response
// body. Recv returns io.EOF when the body ends.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	decoder *Decoder
	wrapErr func(error) error

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps body. wrapErr, if not nil, converts read errors before they
// reach the caller; context errors are returned as they are.
func NewStream(ctx context.Context, body io.ReadCloser, format Format, wrapErr func(error) error) *Stream {
	return &Stream{
		ctx:     ctx,
		body:    body,
		decoder: NewDecoder(body, format),
		wrapErr: wrapErr,
	}
}

func (s *Stream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	delta, err := s.decoder.Next()
	if err == nil || err == io.EOF {
		return delta, err
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if s.wrapErr != nil {
		return "", s.wrapErr(err)
	}
	return "", err
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
