package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/pkg/logging"
)

// Alerter e-mails the on-call operators when a high-risk request is opened.
type Alerter struct {
	sender     EmailSender
	recipients []string
	logger     *logging.Logger
}

func NewAlerter(sender EmailSender, recipients []string, logger *logging.Logger) *Alerter {
	if logger == nil {
		logger = logging.Default()
	}
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &Alerter{sender: sender, recipients: to, logger: logger}
}

// NotifyHighRisk sends one message per recipient and joins the failures.
func (a *Alerter) NotifyHighRisk(ctx context.Context, req handoff.Request) error {
	if a == nil || a.sender == nil || len(a.recipients) == 0 {
		return nil
	}
	msg := EmailMessage{Subject: alertSubject(req), Body: alertBody(req)}

	var errs []error
	for _, to := range a.recipients {
		msg.To = to
		if err := a.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: alert %s: %w", to, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Info("high-risk alert sent", "request_id", req.ID, "recipients", len(a.recipients))
	return nil
}

func alertSubject(req handoff.Request) string {
	crisis := "unknown crisis"
	if req.CrisisType != nil && *req.CrisisType != "" {
		crisis = *req.CrisisType
	}
	return fmt.Sprintf("[Crisos] High-risk request #%d (%s, priority %d)", req.ID, crisis, req.Priority())
}

func alertBody(req handoff.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request #%d needs an operator.\n\n", req.ID)
	fmt.Fprintf(&b, "Conversation: %s\n", req.ConversationID)
	if req.RiskScore != nil {
		fmt.Fprintf(&b, "Risk score: %d\n", *req.RiskScore)
	}
	if req.UserStatus != "" {
		fmt.Fprintf(&b, "User status: %s\n", req.UserStatus)
	}
	if req.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", req.Channel)
	}
	fmt.Fprintf(&b, "Opened: %s\n", req.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	var summary struct {
		Slots map[string]string `json:"slots"`
	}
	if len(req.Summary) > 0 && json.Unmarshal(req.Summary, &summary) == nil {
		if loc := summary.Slots["location"]; loc != "" {
			fmt.Fprintf(&b, "Location: %s\n", loc)
		}
		if med := summary.Slots["need_medical"]; med != "" {
			fmt.Fprintf(&b, "Medical: %s\n", med)
		}
	}
	b.WriteString("\nClaim it from the operator dashboard.\n")
	return b.String()
}

var _ handoff.Alerter = (*Alerter)(nil)
