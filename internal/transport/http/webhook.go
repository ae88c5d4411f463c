package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/payment-ledger/internal/provider/cardintent"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	maxWebhookBody  = 65536
	SignatureHeader = "Stripe-Signature"
)

// stripeWebhookHandler verifies the signature and hands the event to the
// card intent webhook handler. Recoverable processing errors answer 500 so the
// gateway redelivers the event.
func stripeWebhookHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		e, err := webhook.ConstructEventWithOptions(payload, c.GetHeader(SignatureHeader), d.WebhookSecret,
			webhook.ConstructEventOptions{
				Tolerance:                d.WebhookTolerance,
				IgnoreAPIVersionMismatch: true,
			})
		if err != nil {
			log.Warnf("webhook signature: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		if e.Data == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event has no data"})
			return
		}

		err = d.Webhooks.Handle(c.Request.Context(), cardintent.Event{
			ID:       e.ID,
			Type:     string(e.Type),
			Livemode: e.Livemode,
			Object:   e.Data.Raw,
		})
		switch {
		case errors.Is(err, cardintent.ErrUnhandledEvent):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, cardintent.ErrEventLivemode):
			// redelivery cannot fix a mode mismatch; the event stays recorded with its error
			log.Errorw("webhook ignored", "event", e.ID, "type", e.Type, "livemode", e.Livemode, "error", err)
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": err.Error()})
		case err != nil:
			log.Errorw("webhook failed", "event", e.ID, "type", e.Type, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"received": true})
		}
	}
}
