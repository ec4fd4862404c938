// Package notify renders the run digest and delivers it by email.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trialwatch-cli/internal/config"
	"github.com/sells-group/trialwatch-cli/internal/trial"
)

// Digest carries the three lists a run hands off for notification.
// RecentActivity may be nil when the activity query failed; the digest still
// renders without that section.
type Digest struct {
	NewTrials      []trial.Stored
	ChangedTrials  []trial.Changed
	RecentActivity []trial.Stored
	RunTime        time.Time
}

// Quiet reports whether the run found nothing new or changed.
func (d *Digest) Quiet() bool {
	return len(d.NewTrials) == 0 && len(d.ChangedTrials) == 0
}

// Notifier delivers a digest.
type Notifier interface {
	Send(ctx context.Context, d *Digest) error
}

// New builds a Notifier for the configured provider.
func New(cfg config.NotifyConfig) (Notifier, error) {
	switch cfg.Provider {
	case "resend":
		if cfg.APIKey == "" {
			return nil, eris.New("notify: resend provider requires notify.api_key")
		}
		if len(cfg.To) == 0 {
			return nil, eris.New("notify: no recipients configured (set notify.to)")
		}
		return NewResend(cfg), nil
	case "log", "":
		return &LogNotifier{}, nil
	default:
		return nil, eris.Errorf("notify: unknown provider %q (valid: resend, log)", cfg.Provider)
	}
}

// LogNotifier prints the digest instead of delivering it. Used for dry runs
// and local development.
type LogNotifier struct{}

func (n *LogNotifier) Send(_ context.Context, d *Digest) error {
	zap.L().Info("digest (dry run)",
		zap.Int("new_trials", len(d.NewTrials)),
		zap.Int("changed_trials", len(d.ChangedTrials)),
		zap.Int("recent_activity", len(d.RecentActivity)),
	)
	for _, t := range d.NewTrials {
		fmt.Printf("NEW      %s  %s  [%s]\n", t.ExternalID, t.Title, t.Status)
	}
	for _, t := range d.ChangedTrials {
		fmt.Printf("CHANGED  %s  %s  [%s → %s]\n", t.ExternalID, t.Title, t.OldStatus, t.Status)
	}
	if d.Quiet() {
		fmt.Println("No new or changed trials today.")
	}
	return nil
}
