package messenger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// WhatsAppSender posts messages through the Twilio WhatsApp API.
type WhatsAppSender struct {
	accountSID string
	authToken  string
	from       string // platform WhatsApp number, E.164
	baseURL    string
	client     *http.Client
}

// NewWhatsAppSender creates a Twilio-backed WhatsApp sender.
func NewWhatsAppSender(accountSID, authToken, from string) *WhatsAppSender {
	return &WhatsAppSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioAPIBase,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL overrides the API host, for tests.
func (w *WhatsAppSender) WithBaseURL(u string) *WhatsAppSender {
	w.baseURL = u
	return w
}

func (w *WhatsAppSender) Platform() string { return "whatsapp" }

func (w *WhatsAppSender) Send(ctx context.Context, phone, text string) error {
	form := url.Values{}
	form.Set("From", whatsappAddr(w.from))
	form.Set("To", whatsappAddr(phone))
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", w.baseURL, w.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(w.accountSID, w.authToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio send: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// whatsappAddr prefixes an address for the Twilio WhatsApp channel exactly
// once, whether the caller passed a bare number or a full address.
func whatsappAddr(s string) string {
	if strings.HasPrefix(s, "whatsapp:") {
		return s
	}
	return "whatsapp:" + s
}
