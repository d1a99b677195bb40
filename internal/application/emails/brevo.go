package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender   `json:"sender"`
	To          []BrevoTo     `json:"to"`
	Subject     string        `json:"subject"`
	HTMLContent string        `json:"htmlContent"`
	ReplyTo     *BrevoReplyTo `json:"replyTo,omitempty"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type BrevoReplyTo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// BrevoClient sends transactional review emails via the Brevo API. It
// implements notify.Sender. Env: BREVO_API_KEY, MAIL_FROM. An empty API key
// makes every send a no-op (local development).
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@assohub.org"
}

// send sends one email via Brevo API.
func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "Assohub"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
		ReplyTo:     &BrevoReplyTo{Email: "support@assohub.org", Name: "Assohub Support"},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPI, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// SendDocumentRejected tells the organization which document was rejected and why.
func (c *BrevoClient) SendDocumentRejected(ctx context.Context, to, orgName, slotName, reason string) error {
	if c.APIKey == "" {
		return nil
	}
	content := documentRejectedContent(orgName, slotName, reason)
	subject := fmt.Sprintf("Action needed: your %s was rejected", slotName)
	return c.send(ctx, to, subject, EmailLayout(content))
}

// SendPaymentApproved confirms the membership payment was verified.
func (c *BrevoClient) SendPaymentApproved(ctx context.Context, to, orgName string, amountCents int, currency string) error {
	if c.APIKey == "" {
		return nil
	}
	content := paymentApprovedContent(orgName, amountCents, currency)
	return c.send(ctx, to, "Your membership payment was approved", EmailLayout(content))
}

// SendPaymentRejected tells the organization its payment proof was rejected.
func (c *BrevoClient) SendPaymentRejected(ctx context.Context, to, orgName, reason string) error {
	if c.APIKey == "" {
		return nil
	}
	content := paymentRejectedContent(orgName, reason)
	return c.send(ctx, to, "Your membership payment was rejected", EmailLayout(content))
}

// SendOrganizationActivated is the welcome email after the activation cascade.
func (c *BrevoClient) SendOrganizationActivated(ctx context.Context, to, orgName string) error {
	if c.APIKey == "" {
		return nil
	}
	content := organizationActivatedContent(orgName)
	return c.send(ctx, to, "Your membership is active!", EmailLayout(content))
}

func documentRejectedContent(orgName, slotName, reason string) string {
	portalURL := "https://portal.assohub.org/documents"
	return fmt.Sprintf(`
    <h1>Your %s needs attention</h1>
    <p>Hello %s,</p>
    <p>Our review team could not accept the <strong>%s</strong> you submitted. The reviewer left the following note:</p>
    <p style="background-color: #FEF2F2; border-radius: 6px; padding: 16px; color: #991B1B;">%s</p>
    <p>Please upload a corrected file so we can continue processing your registration.</p>
    <center>
      <a href="%s" class="assohub-button">Upload a new document</a>
    </center>
`, EscapeHTML(slotName), EscapeHTML(orgName), EscapeHTML(slotName), EscapeHTML(reason), portalURL)
}

func paymentApprovedContent(orgName string, amountCents int, currency string) string {
	return fmt.Sprintf(`
    <h1>Payment approved</h1>
    <p>Hello %s,</p>
    <p>Your membership payment of <strong>%s %.2f</strong> has been verified and approved.</p>
    <p>If all of your registration documents are approved, your membership is activated automatically and you will receive a separate confirmation.</p>
`, EscapeHTML(orgName), EscapeHTML(currency), float64(amountCents)/100)
}

func paymentRejectedContent(orgName, reason string) string {
	portalURL := "https://portal.assohub.org/payment"
	return fmt.Sprintf(`
    <h1>Payment rejected</h1>
    <p>Hello %s,</p>
    <p>We could not verify your membership payment. The reviewer left the following note:</p>
    <p style="background-color: #FEF2F2; border-radius: 6px; padding: 16px; color: #991B1B;">%s</p>
    <p>Please submit a new payment with valid proof so we can continue your registration.</p>
    <center>
      <a href="%s" class="assohub-button">Submit a new payment</a>
    </center>
`, EscapeHTML(orgName), EscapeHTML(reason), portalURL)
}

func organizationActivatedContent(orgName string) string {
	portalURL := "https://portal.assohub.org/"
	return fmt.Sprintf(`
    <h1>Welcome aboard, %s!</h1>
    <p>All of your registration documents and your membership payment have been approved. Your organization is now an <strong>active member</strong>.</p>
    <p>You can download your membership certificate and access member services from your dashboard.</p>
    <center>
      <a href="%s" class="assohub-button">Go to your dashboard</a>
    </center>
`, EscapeHTML(orgName), portalURL)
}
