package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"veilchat/internal/services"
	"veilchat/internal/transport/httpdto"
)

// KeysHandler handles the device key directory HTTP endpoints.
type KeysHandler struct {
	service *services.KeysService
}

func NewKeysHandler(service *services.KeysService) *KeysHandler {
	return &KeysHandler{service: service}
}

// RegisterDevice handles POST /keys/devices. Idempotent per (user, name).
func (h *KeysHandler) RegisterDevice(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	in, err := req.ToInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("key material must be base64", "INVALID_INPUT"))
		return
	}

	device, err := h.service.RegisterDevice(c.Request.Context(), userID, in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromDevice(device)))
}

// UploadPrekeys handles POST /keys/devices/:id/prekeys.
func (h *KeysHandler) UploadPrekeys(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid device id", "INVALID_INPUT"))
		return
	}

	var req httpdto.UploadPreKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}
	uploads, err := req.ToInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("prekeys must be base64", "INVALID_INPUT"))
		return
	}

	count, err := h.service.UploadPrekeys(c.Request.Context(), userID, deviceID, uploads)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadedKeysCountResponse{Uploaded: count}))
}

// ClaimBundle handles POST /keys/devices/:id/claim. Each call consumes at
// most one one-time prekey; the bundle's one-time half is null once the pool
// is empty.
func (h *KeysHandler) ClaimBundle(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid device id", "INVALID_INPUT"))
		return
	}

	bundle, err := h.service.ClaimPrekeyBundle(c.Request.Context(), deviceID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromPreKeyBundle(bundle)))
}

// ListUserDevices handles GET /keys/users/:id/devices: another user's
// enabled devices, public fields only.
func (h *KeysHandler) ListUserDevices(c *gin.Context) {
	targetUserID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_INPUT"))
		return
	}

	devices, err := h.service.ListPublicDevices(c.Request.Context(), targetUserID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.PublicDeviceDTO, 0, len(devices))
	for _, d := range devices {
		out = append(out, httpdto.FromPublicDevice(d))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// SetDeviceEnabled handles PATCH /keys/devices/:id.
func (h *KeysHandler) SetDeviceEnabled(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid device id", "INVALID_INPUT"))
		return
	}

	var req httpdto.SetDeviceEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_INPUT"))
		return
	}

	if err := h.service.SetDeviceEnabled(c.Request.Context(), userID, deviceID, *req.Enabled); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"enabled": *req.Enabled}))
}

// RemoveDevice handles DELETE /keys/devices/:id.
func (h *KeysHandler) RemoveDevice(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid device id", "INVALID_INPUT"))
		return
	}

	if err := h.service.RemoveDevice(c.Request.Context(), userID, deviceID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"removed": true}))
}

// PrekeyCount handles GET /keys/devices/:id/prekeys/count. Lets a device
// client decide when to top up its pool.
func (h *KeysHandler) PrekeyCount(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid device id", "INVALID_INPUT"))
		return
	}

	count, err := h.service.PrekeyCount(c.Request.Context(), deviceID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PreKeyCountResponse{Count: count}))
}
