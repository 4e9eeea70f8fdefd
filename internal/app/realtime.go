package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nulpointcorp/conduit-gateway/internal/providers"
	"github.com/nulpointcorp/conduit-gateway/internal/realtime"
)

// realtimeUpgrader accepts any origin; this gateway is meant to sit behind a
// trusted edge the same way the chat/completions path does, so it doesn't
// duplicate CORS policy here.
var realtimeUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// realtimeMux builds the net/http handler for GET /v1/realtime (spec §4.G).
// WebSocket upgrades need net/http's connection hijacking, which fasthttp
// doesn't expose the same way, so this one route runs on its own listener
// (RealtimePort) instead of sharing the fasthttp proxy's addr — see Run.
func (a *App) realtimeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/realtime", a.handleRealtime)
	return mux
}

func (a *App) handleRealtime(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	providerName, ok := providers.RealtimeModelAliases[model]
	if !ok {
		http.Error(w, fmt.Sprintf("model %q is not a recognized realtime model", model), http.StatusBadRequest)
		return
	}

	prov, ok := a.provs[providerName]
	if !ok {
		http.Error(w, fmt.Sprintf("provider %q not configured", providerName), http.StatusBadGateway)
		return
	}
	rtProv, ok := prov.(providers.RealtimeProvider)
	if !ok {
		http.Error(w, fmt.Sprintf("provider %q does not support realtime sessions", prov.Name()), http.StatusNotImplemented)
		return
	}

	clientConn, err := realtimeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error("realtime upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer clientConn.Close()

	sessionID := uuid.NewString()
	cfg := realtime.SessionConfig{
		Voice:               r.URL.Query().Get("voice"),
		Language:            r.URL.Query().Get("language"),
		InputFormat:         r.URL.Query().Get("input_format"),
		OutputFormat:        r.URL.Query().Get("output_format"),
		VADEnabled:          r.URL.Query().Get("vad") != "false",
		InterruptionEnabled: r.URL.Query().Get("interruption") != "false",
		SystemPrompt:        r.URL.Query().Get("system_prompt"),
	}

	sess, err := rtProv.OpenRealtimeSession(r.Context(), sessionID, cfg)
	if err != nil {
		a.log.Error("realtime session open failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		_ = clientConn.WriteJSON(realtime.OutputEvent{
			Type: realtime.EventError, ErrorMessage: err.Error(), Timestamp: time.Now().UnixMilli(),
		})
		return
	}
	a.log.Info("realtime session opened",
		slog.String("session_id", sessionID),
		slog.String("provider", providerName),
		slog.String("model", model),
	)

	done := make(chan struct{})
	go relayProviderEvents(sess, clientConn, done)
	relayClientFrames(sess, clientConn)

	sess.Close()
	<-done

	a.log.Info("realtime session closed",
		slog.String("session_id", sessionID),
		slog.String("provider", providerName),
	)
}

// relayProviderEvents forwards the provider's output events to the client
// until the session's event channel closes (session ended or errored).
func relayProviderEvents(sess *realtime.Session, clientConn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for ev := range sess.Events() {
		if err := clientConn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// relayClientFrames reads input frames from the client and applies them to
// the session until the client disconnects or sends a malformed frame.
func relayClientFrames(sess *realtime.Session, clientConn *websocket.Conn) {
	for {
		var frame realtime.InputFrame
		if err := clientConn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "interrupt":
			_ = sess.Interrupt()
		case "audio":
			data, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				continue
			}
			_ = sess.Send(data, frame.Timestamp)
		}
	}
}

// runRealtimeServer starts the real-time WebSocket listener and blocks
// until ctx is cancelled. A RealtimePort of 0 disables the endpoint
// entirely — useful for deployments with no voice providers configured.
func (a *App) runRealtimeServer(ctx context.Context) error {
	if a.cfg.RealtimePort == 0 {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.RealtimePort),
		Handler:      a.realtimeMux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // sessions are long-lived; bounded by provider/session lifecycle instead
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
