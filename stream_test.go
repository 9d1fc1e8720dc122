package utcp

import (
	"errors"
	"io"
	"testing"
)

func TestSliceStreamResultIteratesThenEOF(t *testing.T) {
	closed := false
	s := NewSliceStreamResult([]any{"a", "b"}, func() error { closed = true; return nil })

	v, err := s.Next()
	if err != nil || v != "a" {
		t.Fatalf("expected a, got %v, %v", v, err)
	}
	v, err = s.Next()
	if err != nil || v != "b" {
		t.Fatalf("expected b, got %v, %v", v, err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if err := s.Close(); err != nil || !closed {
		t.Fatalf("expected Close to invoke closeFn exactly once, closed=%v err=%v", closed, err)
	}
	// second Close must be a no-op, not a second invocation of closeFn.
	closed = false
	if err := s.Close(); err != nil || closed {
		t.Fatalf("expected second Close to be a no-op")
	}
}

func TestChannelStreamResultSurfacesErrorValues(t *testing.T) {
	ch := make(chan any, 2)
	ch <- "ok"
	ch <- errors.New("boom")
	close(ch)

	c := NewChannelStreamResult(ch, nil)
	v, err := c.Next()
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %v, %v", v, err)
	}
	if _, err := c.Next(); err == nil || err.Error() != "boom" {
		t.Fatalf("expected the error value to surface as Next's error, got %v", err)
	}
	if _, err := c.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after channel close, got %v", err)
	}
}

func TestSingleItemStreamDeliversOnce(t *testing.T) {
	s := newSingleItemStream(42, nil)
	v, err := s.Next()
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %v, %v", v, err)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF on second call, got %v", err)
	}
}
