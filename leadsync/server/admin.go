package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/leadsync/services"
	"github.com/gigaom/marketo-sync/pkg/store"
)

// handleAdminSync triggers a one-off sync for a user, the equivalent of
// the sync button on the user profile page.
func (s *Server) handleAdminSync(c *gin.Context) {
	user, ok := s.paramUser(c)
	if !ok {
		return
	}

	marketoID, err := s.sync.SyncUser(c.Request.Context(), user, services.ActionUpdate)
	if err != nil {
		s.logger.Error("Admin sync failed", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    user.ID,
		"marketo_id": marketoID,
	})
}

// handleAdminSyncStatus reports a user's last sync, for the profile
// status section.
func (s *Server) handleAdminSyncStatus(c *gin.Context) {
	user, ok := s.paramUser(c)
	if !ok {
		return
	}

	rec, err := s.records.Get(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "synced": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    user.ID,
		"synced":     true,
		"marketo_id": rec.MarketoID,
		"synced_at":  time.Unix(rec.Timestamp, 0).UTC().Format(time.RFC3339),
	})
}

func (s *Server) paramUser(c *gin.Context) (*store.User, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return nil, false
	}

	u, err := s.users.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return nil, false
	}

	return u, true
}
