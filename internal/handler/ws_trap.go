package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/phishtrap/internal/i18n"
	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/trap"
)

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type phishPayload struct {
	Message   string `json:"message"`
	DecoyPath string `json:"decoyPath"`
}

type redirectPayload struct {
	Path string `json:"path"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// handleTrapWS arms one phishing trigger per connection. After the random
// delay the client receives a phish message and answers with proceed or
// dismiss. Closing the socket cancels the trigger without recording.
func (h *Handler) handleTrapWS(w http.ResponseWriter, r *http.Request) {
	id := model.IdentityFromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	trig := trap.New(h.store, trap.Config{
		MinDelay:  h.config.TrapMinDelay,
		MaxDelay:  h.config.TrapMaxDelay,
		DecoyPath: h.path(h.config.DecoyPath),
		OnResolve: func(o trap.Outcome) {
			slog.Info("trap resolved", "email", id.Email, "outcome", o)
		},
	})
	if err := trig.Arm(id.Email); err != nil {
		_ = conn.WriteJSON(outboundMessage[messagePayload]{Type: "error", Payload: messagePayload{Message: err.Error()}})
		return
	}
	defer trig.Stop()
	slog.Debug("trap armed", "email", id.Email, "delay", trig.ArmedDelay())

	inbound := make(chan inboundMessage)
	go func() {
		defer close(inbound)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			inbound <- msg
		}
	}()

	send := make(chan outboundMessage[any], 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("ws write error", "error", err)
				conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	pending := trig.Pending()
	for {
		select {
		case <-pending:
			pending = nil
			send <- outboundMessage[any]{Type: "phish", Payload: phishPayload{
				Message:   h.trapMessage(r.Context()),
				DecoyPath: h.path(h.config.DecoyPath),
			}}
		case msg, ok := <-inbound:
			if !ok {
				close(send)
				<-writerDone
				return
			}
			send <- h.resolveTrap(r.Context(), trig, msg)
		}
	}
}

func (h *Handler) trapMessage(ctx context.Context) string {
	if h.config.TrapMessage != "" {
		return h.config.TrapMessage
	}
	return appI18n.T(ctx, "PhishAlert")
}

func (h *Handler) resolveTrap(ctx context.Context, trig *trap.Trigger, msg inboundMessage) outboundMessage[any] {
	switch msg.Type {
	case "proceed":
		path, err := trig.Proceed()
		if err != nil {
			return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: err.Error()}}
		}
		return outboundMessage[any]{Type: "redirect", Payload: redirectPayload{Path: path}}
	case "dismiss":
		err := trig.Dismiss(ctx)
		if errors.Is(err, trap.ErrNotPending) {
			return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: err.Error()}}
		}
		if err != nil {
			slog.Error("failed to record dismissed trap", "error", err)
		}
		return outboundMessage[any]{Type: "notice", Payload: messagePayload{Message: appI18n.T(ctx, "TrapAvoided")}}
	default:
		return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: "unsupported message type"}}
	}
}
