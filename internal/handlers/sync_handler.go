package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"note-sync/internal/logging"
	"note-sync/internal/models"
	"note-sync/internal/services"
)

type SyncHandler struct {
	svc *services.SyncService
	log *logging.Logger
}

func NewSyncHandler(svc *services.SyncService, log *logging.Logger) *SyncHandler {
	return &SyncHandler{svc: svc, log: log}
}

// Pull serves GET /sync/pull. A missing or malformed since parameter falls
// back to a full resync inside the service, so the only failure mode here is
// the store itself.
func (h *SyncHandler) Pull(c *gin.Context) {
	resp, err := h.svc.Pull(c.Query("since"))
	if err != nil {
		h.log.Errorf("pull failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Push serves POST /sync/push. Conflicts and per-op validation failures ride
// inside a 200; the call itself only fails on a malformed body or a store
// error.
func (h *SyncHandler) Push(c *gin.Context) {
	var req models.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	resp, err := h.svc.Push(req)
	if err != nil {
		h.log.Errorf("push failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
