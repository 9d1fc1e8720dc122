package utcp

import "io"

// StreamResult is the pull-based cursor every streaming CallToolStream
// implementation returns. Next returns io.EOF (wrapped or bare) once
// exhausted; Close releases the underlying transport resource and must be
// safe to call more than once.
type StreamResult interface {
	Next() (any, error)
	Close() error
}

// SliceStreamResult replays a pre-materialized slice of values, used by
// the MCP plugin, whose transport has no native streaming notion, to
// replay an array result through CallToolStream.
type SliceStreamResult struct {
	items   []any
	index   int
	closeFn func() error
	closed  bool
}

// NewSliceStreamResult wraps items behind the StreamResult contract.
func NewSliceStreamResult(items []any, closeFn func() error) *SliceStreamResult {
	return &SliceStreamResult{items: items, closeFn: closeFn}
}

func (s *SliceStreamResult) Next() (any, error) {
	if s.index >= len(s.items) {
		return nil, io.EOF
	}
	v := s.items[s.index]
	s.index++
	return v, nil
}

func (s *SliceStreamResult) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// ChannelStreamResult adapts a receive-only channel to the StreamResult
// contract. A value of type error sent on the channel is surfaced as the
// Next() error instead of a normal item; the channel closing is reported
// as io.EOF. This is the shape every live-connection plugin (WebSocket,
// SSE, HTTP-stream, TCP, gRPC server-streams, WebRTC) produces under the
// hood, fed by a background goroutine or callback that pushes frames in.
type ChannelStreamResult struct {
	ch      <-chan any
	closeFn func() error
	closed  bool
}

// NewChannelStreamResult builds a ChannelStreamResult over ch. closeFn is
// called at most once and should stop whatever goroutine feeds ch.
func NewChannelStreamResult(ch <-chan any, closeFn func() error) *ChannelStreamResult {
	return &ChannelStreamResult{ch: ch, closeFn: closeFn}
}

func (c *ChannelStreamResult) Next() (any, error) {
	v, ok := <-c.ch
	if !ok {
		return nil, io.EOF
	}
	if err, isErr := v.(error); isErr {
		return nil, err
	}
	return v, nil
}

func (c *ChannelStreamResult) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// singleItemStream wraps one value (the common case for protocols that
// have no streaming primitive at all) so CallToolStream has a uniform
// return type even from CallTool-only plugins.
type singleItemStream struct {
	value     any
	delivered bool
	closeFn   func() error
	closed    bool
}

func newSingleItemStream(value any, closeFn func() error) *singleItemStream {
	return &singleItemStream{value: value, closeFn: closeFn}
}

func (s *singleItemStream) Next() (any, error) {
	if s.delivered {
		return nil, io.EOF
	}
	s.delivered = true
	return s.value, nil
}

func (s *singleItemStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}
