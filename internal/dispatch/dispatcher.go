// Package dispatch delivers reward notifications to users.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/mailgun/mailgun-go/v4"
)

// ErrNoRecipient is returned when a notification has no e-mail address.
var ErrNoRecipient = errors.New("notification has no recipient")

// Notification is a positive notification decision ready to be delivered.
type Notification struct {
	UserID        string
	UserName      string
	Email         string
	TransactionID string
	Reward        domain.Reward
}

// Dispatcher delivers notifications. Implementations own their own timeouts
// and retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Config selects and configures a dispatcher.
type Config struct {
	Provider      string
	MailgunDomain string
	MailgunAPIKey string
	SenderEmail   string
	SenderName    string
	Timeout       time.Duration
}

// New returns the dispatcher for cfg.Provider. Incomplete mailgun settings
// fall back to the log dispatcher.
func New(ctx context.Context, cfg Config) Dispatcher {
	log := logger.FromContext(ctx)

	switch strings.ToLower(cfg.Provider) {
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.SenderEmail == "" {
			log.Warn().Msg("Mailgun configuration incomplete, falling back to log dispatcher")
			return &LogDispatcher{}
		}
		log.Info().Str("domain", cfg.MailgunDomain).Msg("Mailgun dispatcher initialized")
		return NewMailgunDispatcher(mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey), cfg.SenderEmail, cfg.SenderName, cfg.Timeout)
	default:
		return &LogDispatcher{}
	}
}

// MailgunDispatcher sends notifications as e-mail through Mailgun.
type MailgunDispatcher struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
	timeout     time.Duration
}

// NewMailgunDispatcher creates a dispatcher sending through mg.
func NewMailgunDispatcher(mg mailgun.Mailgun, senderEmail, senderName string, timeout time.Duration) *MailgunDispatcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if senderName == "" {
		senderName = "Effortless Rewards"
	}
	return &MailgunDispatcher{
		mg:          mg,
		senderEmail: senderEmail,
		senderName:  senderName,
		timeout:     timeout,
	}
}

// Dispatch implements Dispatcher.
func (d *MailgunDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.Email == "" {
		return fmt.Errorf("Dispatch: user %s: %w", n.UserID, ErrNoRecipient)
	}
	log := logger.FromContext(ctx)

	subject, text, html := compose(n)
	from := fmt.Sprintf("%s <%s>", d.senderName, d.senderEmail)

	message := d.mg.NewMessage(from, subject, text, n.Email)
	message.SetHtml(html)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, id, err := d.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("Dispatch: mailgun send for user %s: %w (response: %s)", n.UserID, err, resp)
	}

	log.Info().
		Str("user_id", n.UserID).
		Str("reward_id", n.Reward.ID).
		Str("mailgun_id", id).
		Msg("Reward notification sent")
	return nil
}

// LogDispatcher only logs notifications. It is used in development and when
// no mail provider is configured.
type LogDispatcher struct{}

// Dispatch implements Dispatcher.
func (LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", n.UserID).
		Str("transaction_id", n.TransactionID).
		Str("reward_id", n.Reward.ID).
		Str("reward_label", n.Reward.Label).
		Msg("Reward notification (log only)")
	return nil
}

func compose(n Notification) (subject, text, html string) {
	name := n.UserName
	if name == "" {
		name = "there"
	}

	subject = n.Reward.Label
	if subject == "" {
		subject = fmt.Sprintf("A new offer from %s", n.Reward.MerchantName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "%s has an offer for you: %s\n", n.Reward.MerchantName, subject)
	if n.Reward.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", n.Reward.Description)
	}
	if n.Reward.EndDate != nil {
		fmt.Fprintf(&b, "\nAvailable until %s.\n", n.Reward.EndDate.Format("January 2, 2006"))
	}
	if n.Reward.Terms != "" {
		fmt.Fprintf(&b, "\nTerms: %s\n", n.Reward.Terms)
	}
	b.WriteString("\nThe Effortless Team\n")
	text = b.String()

	html = "<html><body style=\"font-family: Arial, sans-serif; line-height: 1.6;\"><p>" +
		strings.ReplaceAll(htmlEscape(text), "\n", "<br>") +
		"</p></body></html>"
	return subject, text, html
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}

var (
	_ Dispatcher = (*MailgunDispatcher)(nil)
	_ Dispatcher = LogDispatcher{}
)
