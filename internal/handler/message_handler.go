package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"veilchat/internal/services"
	"veilchat/internal/transport/httpdto"
)

// MessageHandler handles encrypted message HTTP endpoints.
type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Send handles POST /messages.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	in, err := req.ToInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	if in.SenderDeviceID == uuid.Nil {
		if deviceID, ok := services.DeviceIDFromContext(c.Request.Context()); ok && deviceID.Valid {
			in.SenderDeviceID = deviceID.UUID
		}
	}

	msg, err := h.service.Send(c.Request.Context(), userID, in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromMessage(msg)))
}

// History handles GET /messages. The device_id scopes both visibility and
// which wrapped key each returned message carries.
func (h *MessageHandler) History(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	targetID, err := uuid.Parse(c.Query("target_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("target_id is required", "INVALID_INPUT"))
		return
	}

	deviceID := uuid.Nil
	if raw := c.Query("device_id"); raw != "" {
		if deviceID, err = uuid.Parse(raw); err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid device id", "INVALID_INPUT"))
			return
		}
	} else if ctxDevice, ok := services.DeviceIDFromContext(c.Request.Context()); ok && ctxDevice.Valid {
		deviceID = ctxDevice.UUID
	}

	var cursor *uuid.UUID
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid cursor", "INVALID_INPUT"))
			return
		}
		cursor = &parsed
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	messages, err := h.service.History(c.Request.Context(), userID, targetID, deviceID, cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	res := httpdto.HistoryResponse{Messages: make([]httpdto.MessageDTO, 0, len(messages))}
	for _, m := range messages {
		res.Messages = append(res.Messages, httpdto.FromMessage(m))
	}
	// Clients page until an empty page comes back.
	if len(messages) > 0 {
		res.NextCursor = messages[len(messages)-1].ID.String()
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(res))
}

// MarkSeen handles POST /messages/:id/seen. Idempotent.
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_INPUT"))
		return
	}

	seen, err := h.service.MarkSeen(c.Request.Context(), messageID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromSeen(seen)))
}
