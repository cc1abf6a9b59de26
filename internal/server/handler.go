package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wirechat/wirechat/internal/domain"
	"github.com/wirechat/wirechat/internal/port/messagequeue"
	"github.com/wirechat/wirechat/internal/protocol"
)

// Handler upgrades connections to WebSocket and speaks the chat protocol.
// Each connection is one session: it gets its own delta subject, and every
// frame the server sends it goes through one serialized writer.
type Handler struct {
	svc     *Service
	queue   messagequeue.Queue
	origins []string
	log     *slog.Logger
}

// NewHandler creates the WebSocket handler. origin restricts accepted
// Origin headers; empty allows same-host only.
func NewHandler(svc *Service, queue messagequeue.Queue, origin string, log *slog.Logger) *Handler {
	var origins []string
	if origin != "" {
		origins = []string{origin}
	}
	return &Handler{svc: svc, queue: queue, origins: origins, log: log}
}

// session is the per-connection state.
type session struct {
	id   string
	conn *websocket.Conn
	ctx  context.Context

	writeMu sync.Mutex
}

func (s *session) writeFrame(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// writeDelta forwards one completion fragment to the client. The final
// empty fragment only marks job completion and is not forwarded.
func (s *session) writeDelta(p messagequeue.CompletionDeltaPayload) error {
	if p.Done && p.Delta == "" {
		return nil
	}
	frame, err := protocol.EncodeResponse(protocol.CompletionResponse{
		Stream:         true,
		Delta:          p.Delta,
		Name:           p.Name,
		ConversationID: p.ConversationID,
		RequestID:      p.RequestID,
		ResponseID:     p.ResponseID,
	})
	if err != nil {
		return err
	}
	return s.writeFrame(frame)
}

// ServeWS handles one WebSocket session until the client disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
		ctx:  r.Context(),
	}
	log := h.log.With("session", sess.id)
	log.Info("session connected", "remote", r.RemoteAddr)
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		log.Info("session closed")
	}()

	// Completion fragments for this session arrive on its delta subject.
	cancel, err := h.queue.Subscribe(sess.ctx, messagequeue.DeltaSubject(sess.id),
		func(_ context.Context, _ string, data []byte) error {
			var p messagequeue.CompletionDeltaPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			return sess.writeDelta(p)
		})
	if err != nil {
		log.Error("delta subscription failed", "error", err)
		return
	}
	defer cancel()

	for {
		_, data, err := conn.Read(sess.ctx)
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest(data)
		if err != nil {
			// Malformed input never takes the session down.
			log.Warn("inbound frame dropped", "error", err)
			continue
		}
		if err := h.dispatch(sess, req, log); err != nil {
			log.Error("request failed", "error", err)
		}
	}
}

func (h *Handler) dispatch(sess *session, req protocol.Request, log *slog.Logger) error {
	ctx := sess.ctx

	switch r := req.(type) {
	case protocol.PingRequest:
		frame, err := protocol.EncodeResponse(protocol.PingResponse{Body: r.Body})
		if err != nil {
			return err
		}
		return sess.writeFrame(frame)

	case protocol.ConversationListRequest:
		frame, err := h.svc.DirectoryFrame(ctx)
		if err != nil {
			return err
		}
		return sess.writeFrame(frame)

	case protocol.LoadRequest:
		if _, err := h.svc.GetConversation(ctx, r.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn("load of unknown conversation dropped", "id", r.ID)
				return nil
			}
			return err
		}
		// The directory carries full message logs; the client resolves
		// the load from it.
		frame, err := h.svc.DirectoryFrame(ctx)
		if err != nil {
			return err
		}
		return sess.writeFrame(frame)

	case protocol.CompletionRequest:
		return h.svc.Submit(ctx, sess.id, r.Conversation, sess.writeDelta)

	case protocol.ForkRequest:
		if err := h.svc.Fork(ctx, r.ConversationID, r.Sequence); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn("fork of unknown cut dropped",
					"conversation_id", r.ConversationID, "sequence", r.Sequence)
				return nil
			}
			return err
		}
		return nil

	case protocol.SystemPromptRequest:
		content, err := h.svc.SystemPrompt(ctx, r.Content, r.Write)
		if err != nil {
			return err
		}
		frame, err := protocol.EncodeResponse(protocol.SystemPromptResponse{
			Content: content,
			Write:   r.Write,
		})
		if err != nil {
			return err
		}
		return sess.writeFrame(frame)
	}
	return nil
}
