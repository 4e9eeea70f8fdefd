// Package realtime implements the real-time bidirectional audio session
// layer (spec §4.G): full-duplex framed sessions over WebSocket, with a
// neutral frame model translated to/from each provider's wire schema. The
// teacher has no counterpart to this package — gorilla/websocket is
// promoted here from an indirect dependency (pulled in transitively by the
// teacher's go.mod) to the transport for this entirely new component,
// following the same "small struct + New() + Option" shape the teacher uses
// for its provider adapters.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nulpointcorp/conduit-gateway/internal/conduit"
)

// InputFrame is sent by the client (spec §4.G "Input frame schema").
type InputFrame struct {
	Type      string `json:"type"` // "audio" | "interrupt"
	Data      string `json:"data,omitempty"` // base64(pcm|ulaw|alaw)
	Timestamp int64  `json:"timestamp"`
}

// OutputEventType is the tagged-union discriminator for OutputEvent.
type OutputEventType string

const (
	EventAudioDelta          OutputEventType = "audio-delta"
	EventTranscriptionDelta  OutputEventType = "transcription-delta"
	EventError               OutputEventType = "error"
)

// TranscriptionRole is who produced a TranscriptionDelta.
type TranscriptionRole string

const (
	RoleUser      TranscriptionRole = "user"
	RoleAssistant TranscriptionRole = "assistant"
)

// OutputEvent is sent to the client (spec §4.G "Output frame schema").
type OutputEvent struct {
	Type      OutputEventType `json:"type"`
	Timestamp int64           `json:"timestamp"`

	// Populated when Type == EventAudioDelta.
	AudioData string `json:"audio_data,omitempty"`

	// Populated when Type == EventTranscriptionDelta.
	Text    string            `json:"text,omitempty"`
	IsFinal bool              `json:"is_final,omitempty"`
	Role    TranscriptionRole `json:"role,omitempty"`

	// Populated when Type == EventError.
	ErrorMessage string `json:"error_message,omitempty"`
}

// SessionConfig is the "configure" frame sent at session open (spec §4.G
// "Open sequence" step 3).
type SessionConfig struct {
	Voice               string
	Language            string
	InputFormat         string
	OutputFormat        string
	VADEnabled          bool
	InterruptionEnabled bool
	SystemPrompt        string
}

// Capabilities describes the transport limits a provider advertises (spec
// §4.G "Capabilities advertised per provider").
type Capabilities struct {
	InputSampleRatesHz  []int
	InputCodecs         []string // e.g. "pcm16", "g711-ulaw", "g711-alaw"
	OutputSampleRatesHz []int
	OutputCodecs        []string
	MaxSessionSeconds   int
	VADMinMs            int
	VADMaxMs            int
	FunctionCalling     bool
}

var (
	// ElevenLabsCapabilities per spec §4.G.
	ElevenLabsCapabilities = Capabilities{
		InputSampleRatesHz:  []int{16000, 24000, 48000},
		InputCodecs:         []string{"pcm16"},
		OutputSampleRatesHz: []int{24000, 48000},
		OutputCodecs:        []string{"pcm16"},
		MaxSessionSeconds:   3600,
		VADMinMs:            50,
		VADMaxMs:            500,
		FunctionCalling:     false,
	}

	// UltravoxCapabilities per spec §4.G.
	UltravoxCapabilities = Capabilities{
		InputSampleRatesHz:  []int{8000, 16000},
		InputCodecs:         []string{"pcm16", "g711-ulaw", "g711-alaw"},
		OutputSampleRatesHz: []int{16000},
		OutputCodecs:        []string{"pcm16", "g711-ulaw"},
		MaxSessionSeconds:   86400,
		VADMinMs:            20,
		VADMaxMs:            200,
		FunctionCalling:     true,
	}
)

// Transport is the subset of *websocket.Conn this package depends on,
// isolated so tests can substitute a fake without opening a real socket.
type Transport interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// gorillaTransport adapts *websocket.Conn to Transport.
type gorillaTransport struct{ conn *websocket.Conn }

func (t *gorillaTransport) WriteJSON(v any) error { return t.conn.WriteJSON(v) }
func (t *gorillaTransport) ReadJSON(v any) error  { return t.conn.ReadJSON(v) }
func (t *gorillaTransport) Close() error          { return t.conn.Close() }

// NewGorillaTransport wraps an already-dialed *websocket.Conn.
func NewGorillaTransport(conn *websocket.Conn) Transport { return &gorillaTransport{conn: conn} }

// Session is one full-duplex real-time audio session (spec §4.G). The
// producer side is Send; the consumer side is Events. Both directions
// share the session's cancellation handle, per spec §9's recommended
// design ("two independent typed channels ... with a shared cancellation
// handle").
type Session struct {
	id       string
	provider string
	config   SessionConfig
	transport Transport

	mu    sync.Mutex
	state conduit.SessionState
	usage conduit.SessionUsage

	events chan OutputEvent
	cancel context.CancelFunc

	startedAt time.Time
	lastSeen  time.Time
}

// Open dials no transport itself — callers construct the Transport (e.g.
// via websocket.Dialer) having already applied ToWebSocketUrl and the
// provider-specific auth header, then call Open with it. This keeps
// internal/realtime transport-agnostic (see the Transport interface) and
// lets tests inject a fake.
func Open(ctx context.Context, id, provider string, transport Transport, cfg SessionConfig) (*Session, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:        id,
		provider:  provider,
		config:    cfg,
		transport: transport,
		state:     conduit.SessionConnecting,
		events:    make(chan OutputEvent, 64),
		cancel:    cancel,
		startedAt: time.Now(),
		lastSeen:  time.Now(),
	}

	configureFrame := map[string]any{
		"type":                 "configure",
		"voice":                cfg.Voice,
		"language":             cfg.Language,
		"input_format":         cfg.InputFormat,
		"output_format":        cfg.OutputFormat,
		"vad_enabled":          cfg.VADEnabled,
		"interruption_enabled": cfg.InterruptionEnabled,
		"system_prompt":        cfg.SystemPrompt,
	}
	if err := transport.WriteJSON(configureFrame); err != nil {
		cancel()
		s.setState(conduit.SessionErrored)
		return nil, err
	}

	s.setState(conduit.SessionConnected)
	go s.readLoop(sessCtx)
	return s, nil
}

func (s *Session) setState(st conduit.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// State returns the session's current lifecycle state.
func (s *Session) State() conduit.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Usage returns accumulated consumption so far.
func (s *Session) Usage() conduit.SessionUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Send hands an audio frame to the transport; it returns only after the
// frame is written (spec §4.G duplex contract).
func (s *Session) Send(data []byte, timestamp int64) error {
	if s.State() != conduit.SessionConnected {
		return errors.New("realtime: session not connected")
	}
	frame := InputFrame{Type: "audio", Data: base64.StdEncoding.EncodeToString(data), Timestamp: timestamp}
	if err := s.transport.WriteJSON(frame); err != nil {
		s.setState(conduit.SessionErrored)
		return err
	}
	s.mu.Lock()
	s.usage.AudioBytes += int64(len(data))
	s.lastSeen = time.Now()
	s.mu.Unlock()
	return nil
}

// Interrupt sends an "interrupt" control frame (spec §4.G: VAD-driven
// turn detection discards the in-flight output and resumes with a new
// assistant turn).
func (s *Session) Interrupt() error {
	if s.State() != conduit.SessionConnected {
		return errors.New("realtime: session not connected")
	}
	return s.transport.WriteJSON(InputFrame{Type: "interrupt", Timestamp: time.Now().UnixMilli()})
}

// Events is the consumer side: a finite, non-restartable sequence of
// output events, terminated by channel close.
func (s *Session) Events() <-chan OutputEvent { return s.events }

// Close is idempotent (spec §8 invariant 7 / scenario 6): calling it a
// second time, or after a transport failure, observes state Closed and
// returns no error.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == conduit.SessionClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = conduit.SessionClosed
	s.mu.Unlock()

	s.cancel()
	return s.transport.Close()
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var ev OutputEvent
		if err := s.transport.ReadJSON(&ev); err != nil {
			if s.State() != conduit.SessionClosed {
				s.setState(conduit.SessionErrored)
				select {
				case s.events <- OutputEvent{Type: EventError, ErrorMessage: err.Error(), Timestamp: time.Now().UnixMilli()}:
				default:
				}
			}
			return
		}

		s.mu.Lock()
		s.lastSeen = time.Now()
		s.mu.Unlock()

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
