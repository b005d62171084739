package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"veilchat/internal/events"
	veilchatredis "veilchat/internal/redis"
	"veilchat/internal/services"
	"veilchat/internal/transport/httpdto"
	"veilchat/pkg/logger"
)

type Handler struct {
	auth     *services.AuthService
	keys     *services.KeysService
	chat     *services.ChatService
	messages *services.MessageService

	hub        *Hub
	dispatcher *Dispatcher
	presence   *veilchatredis.PresenceStore
	logger     *logger.Logger
}

func NewHandler(
	auth *services.AuthService,
	keys *services.KeysService,
	chat *services.ChatService,
	messages *services.MessageService,
	hub *Hub,
	dispatcher *Dispatcher,
	presence *veilchatredis.PresenceStore,
	l *logger.Logger,
) *Handler {
	return &Handler{
		auth:       auth,
		keys:       keys,
		chat:       chat,
		messages:   messages,
		hub:        hub,
		dispatcher: dispatcher,
		presence:   presence,
		logger:     l,
	}
}

// inboundFrame is a single client->server frame. Type selects the action;
// the remaining fields are per-type.
type inboundFrame struct {
	Type      string          `json:"type"`
	TargetID  string          `json:"target_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

const (
	frameJoinChannel  = "join_channel"
	frameLeaveChannel = "leave_channel"
	frameSendMessage  = "send_message"
	frameMarkSeen     = "mark_seen"
	frameUserTyping   = "user_typing"
)

type typingPayload struct {
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id"`
}

type presencePayload struct {
	Online []string `json:"online"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Connect upgrades the HTTP request to a WebSocket bound to one authenticated
// device. The session is validated once here; the connection stays usable for
// its lifetime even if the session later idles out.
func (h *Handler) Connect(c *gin.Context) {
	claims, err := h.auth.ParseAccessToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	u, err := h.auth.ValidateSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	deviceID, err := uuid.Parse(c.Query("device_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("device_id is required", "INVALID_INPUT"))
		return
	}
	owns, err := h.keys.OwnsDevice(c.Request.Context(), u.ID, deviceID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("service unavailable", "SERVICE_UNAVAILABLE"))
		return
	}
	if !owns {
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("device not registered to user", "FORBIDDEN"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, u.ID, deviceID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	h.hub.Subscribe(client, events.ChannelBroadcast)
	go client.WriteLoop(ctx)

	if h.logger != nil {
		h.logger.InfofCtx(c.Request.Context(), "socket connected user=%s device=%s", u.ID, deviceID)
	}

	h.markOnline(ctx, u.ID)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		h.handleFrame(ctx, client, data)
	}

	h.hub.Detach(client)
	h.markOffline(ctx, u.ID)

	if h.logger != nil {
		h.logger.InfofCtx(c.Request.Context(), "socket disconnected user=%s device=%s", u.ID, deviceID)
	}
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(client, "INVALID_INPUT", "malformed frame")
		return
	}

	switch frame.Type {
	case frameJoinChannel:
		h.handleJoin(ctx, client, frame)
	case frameLeaveChannel:
		h.handleLeave(ctx, client, frame)
	case frameSendMessage:
		h.handleSend(ctx, client, frame)
	case frameMarkSeen:
		h.handleSeen(ctx, client, frame)
	case frameUserTyping:
		h.handleTyping(ctx, client, frame)
	default:
		h.sendError(client, "INVALID_INPUT", "unknown frame type")
	}
}

// handleJoin authorizes the target channel for the connected user before the
// hub subscription happens; an unauthorized join never touches the hub.
func (h *Handler) handleJoin(ctx context.Context, client *Client, frame inboundFrame) {
	targetID, err := uuid.Parse(frame.TargetID)
	if err != nil {
		h.sendError(client, "INVALID_INPUT", "target_id must be a uuid")
		return
	}
	ref, err := h.chat.ResolveChannel(ctx, client.UserID, targetID)
	if err != nil {
		h.sendServiceError(client, err)
		return
	}
	h.hub.Subscribe(client, ref.Channel())
}

func (h *Handler) handleLeave(ctx context.Context, client *Client, frame inboundFrame) {
	targetID, err := uuid.Parse(frame.TargetID)
	if err != nil {
		h.sendError(client, "INVALID_INPUT", "target_id must be a uuid")
		return
	}
	ref, err := h.chat.ResolveChannel(ctx, client.UserID, targetID)
	if err != nil {
		h.sendServiceError(client, err)
		return
	}
	h.hub.Unsubscribe(client, ref.Channel())
}

func (h *Handler) handleSend(ctx context.Context, client *Client, frame inboundFrame) {
	var req httpdto.SendMessageRequest
	if err := json.Unmarshal(frame.Message, &req); err != nil {
		h.sendError(client, "INVALID_INPUT", "malformed message")
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.sendError(client, "INVALID_INPUT", err.Error())
		return
	}
	if in.SenderDeviceID == uuid.Nil {
		in.SenderDeviceID = client.DeviceID
	}
	if _, err := h.messages.Send(ctx, client.UserID, in); err != nil {
		h.sendServiceError(client, err)
	}
}

func (h *Handler) handleSeen(ctx context.Context, client *Client, frame inboundFrame) {
	messageID, err := uuid.Parse(frame.MessageID)
	if err != nil {
		h.sendError(client, "INVALID_INPUT", "message_id must be a uuid")
		return
	}
	if _, err := h.messages.MarkSeen(ctx, messageID, client.UserID); err != nil {
		h.sendServiceError(client, err)
	}
}

// handleTyping relays a transient typing notice to the target channel. The
// notice is never persisted; offline devices miss it.
func (h *Handler) handleTyping(ctx context.Context, client *Client, frame inboundFrame) {
	targetID, err := uuid.Parse(frame.TargetID)
	if err != nil {
		h.sendError(client, "INVALID_INPUT", "target_id must be a uuid")
		return
	}
	ref, err := h.chat.ResolveChannel(ctx, client.UserID, targetID)
	if err != nil {
		h.sendServiceError(client, err)
		return
	}
	env, err := events.NewEnvelope(events.EventTypeUserTyping, ref.Channel(), typingPayload{
		UserID:   client.UserID.String(),
		TargetID: targetID.String(),
	})
	if err != nil {
		return
	}
	h.dispatcher.BroadcastToChannel(ctx, ref, env)
}

// markOnline mirrors the connection into the shared presence set and pushes
// the refreshed online roster to every connected client.
func (h *Handler) markOnline(ctx context.Context, userID uuid.UUID) {
	if h.presence != nil {
		if err := h.presence.SetOnline(ctx, userID.String()); err != nil && h.logger != nil {
			h.logger.Errorf("presence set online failed: %s", err.Error())
		}
	}
	h.broadcastPresence(ctx)
}

// markOffline clears shared presence only when the user's last local
// connection is gone.
func (h *Handler) markOffline(ctx context.Context, userID uuid.UUID) {
	if !h.hub.Registry().IsUserOnline(userID) {
		if h.presence != nil {
			if err := h.presence.SetOffline(ctx, userID.String()); err != nil && h.logger != nil {
				h.logger.Errorf("presence set offline failed: %s", err.Error())
			}
		}
	}
	h.broadcastPresence(ctx)
}

func (h *Handler) broadcastPresence(ctx context.Context) {
	var online []string
	if h.presence != nil {
		ids, err := h.presence.OnlineUserIDs(ctx)
		if err == nil {
			online = ids
		}
	}
	if online == nil {
		for _, id := range h.hub.Registry().OnlineUsers() {
			online = append(online, id.String())
		}
	}

	env, err := events.NewEnvelope(events.EventTypePresenceOnline, events.ChannelBroadcast, presencePayload{Online: online})
	if err != nil {
		return
	}
	h.dispatcher.BroadcastPresence(ctx, env)
}

func (h *Handler) sendError(client *Client, code, message string) {
	env, err := events.NewEnvelope("error", "", errorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	client.SendMessage(env.Encode())
}

func (h *Handler) sendServiceError(client *Client, err error) {
	h.sendError(client, httpdto.ErrorCode(err), httpdto.ErrorMessage(err))
}
