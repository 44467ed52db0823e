package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/phillip/iinsaf-marketplace-go/config"
	models "github.com/phillip/iinsaf-marketplace-go/models"
)

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ZeptoMailer delivers marketplace notifications as HTML email.
type ZeptoMailer struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

func NewZeptoMailer(cfg *config.Config) (*ZeptoMailer, error) {
	if cfg.ZeptoAPIURL == "" || cfg.ZeptoAPIKey == "" || cfg.EmailFrom == "" {
		return nil, fmt.Errorf("missing ZEPTO_API_URL, ZEPTO_API_KEY, or EMAIL_FROM")
	}
	timeout := cfg.ExternalTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ZeptoMailer{
		apiURL: cfg.ZeptoAPIURL,
		apiKey: cfg.ZeptoAPIKey,
		from:   cfg.EmailFrom,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Notify implements services.Notifier.
func (m *ZeptoMailer) Notify(ctx context.Context, n models.Notification) error {
	if n.Recipient.Email == "" {
		return fmt.Errorf("recipient %s has no email", n.Recipient.ID.Hex())
	}
	body := "<p>" + html.EscapeString(n.Body) + "</p>"
	return m.SendEmail(ctx, n.Recipient.Email, n.Recipient.Name, n.Subject, body)
}

// SendEmail sends an HTML email using the ZeptoMail HTTP API
func (m *ZeptoMailer) SendEmail(ctx context.Context, to, toName, subject, body string) error {
	payload := emailRequest{
		From: emailAddress{Address: m.from},
		To: []toRecipient{
			{
				Email: emailWithName{
					Address: to,
					Name:    toName,
				},
			},
		},
		Subject:  subject,
		HtmlBody: body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}

	zap.L().Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
