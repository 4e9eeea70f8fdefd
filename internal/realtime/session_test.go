package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
)

// fakeTransport is an in-memory Transport double so tests never open a
// real socket.
type fakeTransport struct {
	mu      sync.Mutex
	written []any
	toRead  []OutputEvent
	readIdx int
	closed  bool
}

func (f *fakeTransport) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, v)
	return nil
}

func (f *fakeTransport) ReadJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readIdx >= len(f.toRead) {
		return errors.New("fakeTransport: EOF")
	}
	ev := f.toRead[f.readIdx]
	f.readIdx++
	raw, _ := json.Marshal(ev)
	return json.Unmarshal(raw, v)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestOpenSendsConfigureFrame(t *testing.T) {
	tr := &fakeTransport{}
	sess, err := Open(context.Background(), "s1", "ultravox", tr, SessionConfig{Voice: "default", VADEnabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	if sess.State() != conduit.SessionConnected {
		t.Fatalf("state = %v, want Connected", sess.State())
	}
	if len(tr.written) != 1 {
		t.Fatalf("expected exactly one configure frame, got %d", len(tr.written))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	sess, err := Open(context.Background(), "s1", "elevenlabs", tr, SessionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if sess.State() != conduit.SessionClosed {
		t.Fatalf("state after first close = %v, want Closed", sess.State())
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close should not error, got %v", err)
	}
	if sess.State() != conduit.SessionClosed {
		t.Fatalf("state after second close = %v, want Closed", sess.State())
	}
}

func TestSendAccumulatesAudioBytes(t *testing.T) {
	tr := &fakeTransport{}
	sess, err := Open(context.Background(), "s1", "ultravox", tr, SessionConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	if err := sess.Send([]byte("hello"), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sess.Usage().AudioBytes; got != 5 {
		t.Errorf("audio bytes = %d, want 5", got)
	}
}

func TestCapabilitiesMatchSpec(t *testing.T) {
	if UltravoxCapabilities.MaxSessionSeconds != 86400 {
		t.Errorf("ultravox max session = %d, want 86400", UltravoxCapabilities.MaxSessionSeconds)
	}
	if !UltravoxCapabilities.FunctionCalling {
		t.Error("ultravox should support function calling")
	}
	if ElevenLabsCapabilities.FunctionCalling {
		t.Error("elevenlabs should not support function calling")
	}
	if ElevenLabsCapabilities.MaxSessionSeconds != 3600 {
		t.Errorf("elevenlabs max session = %d, want 3600", ElevenLabsCapabilities.MaxSessionSeconds)
	}
}
