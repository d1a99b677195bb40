package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"assohub-backend/internal/application/events"
	"assohub-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookHandler accepts gateway notifications for membership-fee payments.
// A succeeded gateway charge lands as a pending Payment row; approval still
// goes through the reviewer, the gateway never auto-approves.
type WebhookHandler struct {
	DB            *gorm.DB
	WebhookSecret string
}

type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type chargeObject struct {
	ID       string            `json:"id"`
	Amount   int               `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// HandleWebhook POST /api/v1/gateway/webhook. Raw body, signature
// verification, then process.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	// Fiber's Get is case-insensitive
	sig := c.Get("Gateway-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Gateway webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(400).SendString("Webhook Error: empty body")
	}

	if err := verifyGatewaySignature(rawBody, sig, wh.WebhookSecret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.WebhookSecret != "").Msg("Gateway webhook signature verification failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event gatewayEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Gateway webhook JSON parse failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	if event.Type == "charge.succeeded" {
		var ch chargeObject
		if err := json.Unmarshal(event.Data.Object, &ch); err != nil {
			return c.Status(200).SendString("ok")
		}

		if err := wh.handleChargeSucceeded(ch, event.ID, rawBody); err != nil {
			// Always 200 for domain errors too, to avoid gateway retries
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Gateway charge processing failed")
			return c.Status(200).SendString("ok")
		}
	}

	return c.Status(200).SendString("ok")
}

func (wh *WebhookHandler) handleChargeSucceeded(ch chargeObject, eventID string, rawBody []byte) error {
	orgIDStr := ch.Metadata["org_id"]
	if orgIDStr == "" {
		return nil // not a membership-fee charge, skip silently
	}
	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		return nil
	}
	if ch.Amount <= 0 {
		return nil
	}

	return wh.DB.Transaction(func(tx *gorm.DB) error {
		// Idempotency: the gateway retries deliveries, each event lands once
		var existing domain.Payment
		if err := tx.Where("gateway_event_id = ?", eventID).First(&existing).Error; err == nil {
			return nil // already processed
		}

		var org domain.Organization
		if err := tx.Where("org_id = ?", orgID).First(&org).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.New("Organization not found")
			}
			return err
		}

		currency := strings.ToUpper(ch.Currency)
		if currency == "" {
			currency = "USD"
		}
		receiptRef := ch.ID

		payment := domain.Payment{
			OrgID:          orgID,
			AmountCents:    ch.Amount,
			Currency:       currency,
			Method:         domain.PaymentMethodGateway,
			ReceiptRef:     &receiptRef,
			Status:         domain.PaymentStatusPending,
			GatewayEventID: &eventID,
			RawPayload:     datatypes.JSON(rawBody),
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		return events.Append(tx, &domain.NotificationEvent{
			OrgID:     orgID,
			Kind:      domain.EventInfo,
			PaymentID: &payment.ID,
			Title:     "Payment submitted",
			Message:   "Gateway payment from " + org.OrgName + " is ready for review.",
			Audience:  domain.AudienceStaff,
		})
	})
}

// verifyGatewaySignature verifies the Gateway-Signature header using the
// webhook secret. Header format: "t=<unix>,v1=<hex hmac>".
func verifyGatewaySignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(sigHeader, ",")
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			// Check tolerance (5 minutes)
			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				return errors.New("invalid timestamp")
			}
			diff := time.Now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > 300 {
				return errors.New("timestamp too old")
			}
			return nil
		}
	}

	return errors.New("signature mismatch")
}
