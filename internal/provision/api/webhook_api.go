package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/accesoit/flowops/internal/provision/service"
)

type paymentEvent struct {
	EventID  string `json:"eventId"`
	Type     string `json:"type"`
	TenantID int64  `json:"tenantId"`
	PlanID   *int64 `json:"planId"`
}

// paymentWebhookHandler provisions an instance when a subscription is
// activated. A provisioning failure is acknowledged with success anyway:
// failing the callback would make the payment provider retry forever,
// and the error-status registry row already records what happened.
func paymentWebhookHandler(provisioner *service.Provisioner, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			got := c.GetHeader("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
				return
			}
		}

		var event paymentEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
			return
		}
		if event.EventID == "" {
			event.EventID = uuid.NewString()
		}

		if event.Type != "subscription.activated" {
			c.JSON(http.StatusOK, gin.H{"received": true, "eventId": event.EventID})
			return
		}

		inst, err := provisioner.Provision(c.Request.Context(), event.TenantID, event.PlanID)
		if err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.EventID).
				Int64("tenant_id", event.TenantID).
				Msg("webhook-triggered provisioning failed")
			c.JSON(http.StatusOK, gin.H{
				"received": true,
				"eventId":  event.EventID,
				"warning":  "provisioning failed; see instance registry",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"received":   true,
			"eventId":    event.EventID,
			"instanceId": inst.ID,
		})
	}
}
