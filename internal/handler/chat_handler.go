package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"veilchat/internal/services"
	"veilchat/internal/transport/httpdto"
)

// ChatHandler handles room and connection HTTP endpoints.
type ChatHandler struct {
	service *services.ChatService
}

func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// CreateRoom handles POST /rooms.
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	members, err := memberInputs(req.Members)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member", "INVALID_INPUT"))
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), userID, req.Name, req.IsGroup, members)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromRoom(room)))
}

// AddMembers handles POST /rooms/:id/members.
func (h *ChatHandler) AddMembers(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid room id", "INVALID_INPUT"))
		return
	}

	var req httpdto.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	members, err := memberInputs(req.Members)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member", "INVALID_INPUT"))
		return
	}

	if err := h.service.AddMembers(c.Request.Context(), userID, roomID, members); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"added": len(members)}))
}

// ListMembers handles GET /rooms/:id/members.
func (h *ChatHandler) ListMembers(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid room id", "INVALID_INPUT"))
		return
	}

	members, err := h.service.ListMembers(c.Request.Context(), userID, roomID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.RoomMemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, httpdto.FromRoomMember(m))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// Connect handles POST /connections.
func (h *ChatHandler) Connect(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_INPUT"))
		return
	}

	conn, err := h.service.Connect(c.Request.Context(), userID, targetID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConnection(conn)))
}

// ListConnections handles GET /connections.
func (h *ChatHandler) ListConnections(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conns, err := h.service.ListConnections(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.ConnectionDTO, 0, len(conns))
	for _, conn := range conns {
		out = append(out, httpdto.FromConnection(conn))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// RespondConnection handles PATCH /connections/:id. Only the requested user
// may answer; rejecting removes the connection.
func (h *ChatHandler) RespondConnection(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	connectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid connection id", "INVALID_INPUT"))
		return
	}

	var req httpdto.RespondConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	if req.Status != "accepted" && req.Status != "rejected" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("status must be accepted or rejected", "INVALID_INPUT"))
		return
	}

	conn, err := h.service.RespondConnection(c.Request.Context(), userID, connectionID, req.Status == "accepted")
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConnection(conn)))
}

// RemoveConnection handles DELETE /connections/:id.
func (h *ChatHandler) RemoveConnection(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	connectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid connection id", "INVALID_INPUT"))
		return
	}

	if err := h.service.RemoveConnection(c.Request.Context(), userID, connectionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"removed": true}))
}

func memberInputs(members []httpdto.RoomMemberInit) ([]services.RoomMemberInput, error) {
	out := make([]services.RoomMemberInput, 0, len(members))
	for _, m := range members {
		in, err := m.ToInput()
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}
