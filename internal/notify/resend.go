package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/config"
)

// Resend delivers digests through the Resend email API.
type Resend struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// NewResend creates a Resend notifier with the given settings.
func NewResend(cfg config.NotifyConfig) *Resend {
	return &Resend{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send renders the digest and posts it to the Resend emails endpoint.
// Delivery is all-or-nothing: a failed send returns an error and no partial
// notification is attempted.
func (n *Resend) Send(ctx context.Context, d *Digest) error {
	html, err := RenderHTML(d)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(resendRequest{
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: Subject(n.cfg.Subject, d),
		HTML:    html,
	})
	if err != nil {
		return eris.Wrap(err, "notify: marshal resend request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.cfg.BaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create resend request")
	}
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: resend request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: resend returned status %d", resp.StatusCode)
	}

	zap.L().Info("digest sent",
		zap.Int("new_trials", len(d.NewTrials)),
		zap.Int("changed_trials", len(d.ChangedTrials)),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}
