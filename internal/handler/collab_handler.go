package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"

	"walldraft/internal/collab"
	"walldraft/internal/domain"
	apperrors "walldraft/pkg/errors"
)

const (
	collabWriteTimeout = 10 * time.Second
	collabHeartbeat    = 30 * time.Second
	// collabReadLimit caps one inbound wall snapshot.
	collabReadLimit = 4 << 20
)

// CollabHandler upgrades GET /drafts/{id}/live to a websocket bound to a hub session.
type CollabHandler struct {
	draftService   domain.DraftService
	hub            *collab.Hub
	originPatterns []string
	logger         domain.Logger
}

func NewCollabHandler(draftService domain.DraftService, hub *collab.Hub, originPatterns []string, logger domain.Logger) *CollabHandler {
	return &CollabHandler{
		draftService:   draftService,
		hub:            hub,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// Live joins the draft's live session. Access is resolved before the upgrade so
// rejected callers get an ordinary HTTP error.
func (h *CollabHandler) Live(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]
	requester := requesterFromRequest(r)

	_, access, err := h.draftService.ResolveAccess(r.Context(), draftID, requester)
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	if access.Level == domain.LevelNone {
		writeAppError(w, h.logger, domain.ErrDraftNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("Failed to upgrade collaboration connection", "draft_id", draftID, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(collabReadLimit)

	session, err := h.hub.Open(draftID, access.Level)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "access denied")
		return
	}
	defer h.hub.Close(session)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := h.hub.OnMessage(session, h.writer(ctx, conn, session, requester))
	go h.heartbeat(ctx, conn)

	status, reason := h.readLoop(ctx, conn, session, requester)

	h.hub.Close(session)
	<-writerDone
	conn.Close(status, reason)
}

// writer forwards hub messages to the socket, resolving access again before each
// frame. A revoked session is closed; after that or a failed write, the remaining
// messages are discarded.
func (h *CollabHandler) writer(ctx context.Context, conn *websocket.Conn, session *collab.Session, requester domain.Requester) func(collab.Message) {
	done := false
	return func(msg collab.Message) {
		if done {
			return
		}
		_, access, err := h.draftService.ResolveAccess(ctx, session.DraftID(), requester)
		switch {
		case errors.Is(err, domain.ErrNotFound), err == nil && access.Level == domain.LevelNone:
			h.logger.Info("Closing collaboration session after access was revoked", "draft_id", session.DraftID(), "session_id", session.ID())
			done = true
			conn.Close(websocket.StatusPolicyViolation, "access revoked")
			return
		case err != nil:
			h.logger.Error("Failed to recheck collaboration access", err, "draft_id", session.DraftID())
			return
		}
		if err := writeFrame(ctx, conn, msg); err != nil {
			h.logger.Debug("Collaboration write failed", "draft_id", session.DraftID(), "session_id", session.ID(), "error", err)
			done = true
		}
	}
}

// readLoop persists and relays inbound snapshots. It returns the close status to
// send when the session ends.
func (h *CollabHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *collab.Session, requester domain.Requester) (websocket.StatusCode, string) {
	for {
		var msg collab.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("Collaboration read failed", "draft_id", session.DraftID(), "error", err)
			}
			return websocket.StatusNormalClosure, ""
		}

		if msg.Type != collab.TypeWallUpdate {
			h.sendError(ctx, conn, "unsupported message type")
			continue
		}
		if !session.Level().CanEdit() {
			h.sendError(ctx, conn, apperrors.FromDomain(domain.ErrForbidden).Message)
			continue
		}

		stored, err := h.draftService.ApplyLiveUpdate(ctx, session.DraftID(), requester, msg.WallData)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The link was revoked or the draft deleted while the socket was open.
				return websocket.StatusPolicyViolation, "access revoked"
			}
			appErr := apperrors.FromDomain(err)
			if appErr.StatusCode >= http.StatusInternalServerError {
				h.logger.Error("Failed to persist live update", err, "draft_id", session.DraftID())
			}
			h.sendError(ctx, conn, appErr.Message)
			continue
		}

		if _, err := h.hub.Publish(session, stored); err != nil {
			appErr := apperrors.FromDomain(err)
			if errors.Is(err, domain.ErrInvalidSession) {
				return websocket.StatusGoingAway, appErr.Message
			}
			h.sendError(ctx, conn, appErr.Message)
		}
	}
}

func (h *CollabHandler) sendError(ctx context.Context, conn *websocket.Conn, message string) {
	if err := writeFrame(ctx, conn, collab.Message{Type: "error", Error: message}); err != nil {
		h.logger.Debug("Failed to send collaboration error", "error", err)
	}
}

func (h *CollabHandler) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(collabHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, collabWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg collab.Message) error {
	ctx, cancel := context.WithTimeout(ctx, collabWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
