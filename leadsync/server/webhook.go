package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/leadsync/services"
	"github.com/gigaom/marketo-sync/pkg/bus"
	"github.com/gigaom/marketo-sync/pkg/store"
)

// handleWebhook catches webhooks fired from Marketo. The request must
// carry the shared secret in the marketowhs form field; anything else is
// rejected silently with a 200 so a misconfigured caller learns nothing
// and Marketo does not retry. Processing runs with outbound sync
// suspended, so the do-not-email change raised here does not loop back
// into a redundant Marketo round-trip.
func (s *Server) handleWebhook(c *gin.Context) {
	secret := c.PostForm("marketowhs")
	if secret == "" || secret != s.cfg.WebhookSecret {
		s.logger.Warn("Webhook with missing or invalid secret",
			zap.String("remote_addr", c.ClientIP()))
		c.Status(http.StatusOK)
		return
	}

	ctx := services.WithSuspendedSync(c.Request.Context())

	// Only one event type is expected currently ("unsubscribe")
	event := c.PostForm("event")
	if event != "unsubscribe" {
		s.logger.Debug("Webhook with missing or unknown event", zap.String("event", event))
		c.Status(http.StatusOK)
		return
	}

	user := s.resolveWebhookUser(c)
	if user == nil {
		s.logger.Warn("Webhook unsubscribe for unknown user",
			zap.String("wpid", c.PostForm("wpid")),
			zap.String("email", c.PostForm("email")))
		c.Status(http.StatusOK)
		return
	}

	flagged, err := s.users.DoNotEmail(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to read do_not_email flag",
			zap.Int64("user_id", user.ID), zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	if !flagged {
		if err := s.users.SetDoNotEmail(ctx, user.ID, true); err != nil {
			s.logger.Error("Failed to set do_not_email flag",
				zap.Int64("user_id", user.ID), zap.Error(err))
			c.Status(http.StatusOK)
			return
		}

		// The suspended context makes the outbound sync handler treat
		// this as a no-op.
		s.bus.Publish(ctx, bus.EventDoNotEmailUpdated, bus.DoNotEmailEvent{
			UserID:     user.ID,
			DoNotEmail: true,
		})

		s.logger.Info("Webhook unsubscribe processed", zap.Int64("user_id", user.ID))
	}

	c.Status(http.StatusOK)
}

// resolveWebhookUser finds the user the webhook refers to, preferring
// the wpid field over email.
func (s *Server) resolveWebhookUser(c *gin.Context) *store.User {
	ctx := c.Request.Context()

	if wpid := c.PostForm("wpid"); wpid != "" {
		id, err := strconv.ParseInt(wpid, 10, 64)
		if err != nil || id <= 0 {
			return nil
		}
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			s.logger.Error("Failed to look up user by id", zap.Int64("user_id", id), zap.Error(err))
			return nil
		}
		return user
	}

	if email := c.PostForm("email"); email != "" {
		user, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			s.logger.Error("Failed to look up user by email", zap.Error(err))
			return nil
		}
		return user
	}

	return nil
}
