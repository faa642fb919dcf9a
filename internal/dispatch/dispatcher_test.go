package dispatch

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	n := Notification{
		UserName: "Sarah",
		Reward: domain.Reward{
			MerchantName: "Exclusive Wine Tasting",
			Label:        "Priceless: Wine Tasting Experience",
			Description:  "Tasting at a <Napa> winery",
			EndDate:      &end,
		},
	}

	subject, text, html := compose(n)
	require.Equal(t, "Priceless: Wine Tasting Experience", subject)
	require.Contains(t, text, "Hi Sarah,")
	require.Contains(t, text, "Available until June 30, 2024.")
	require.Contains(t, html, "&lt;Napa&gt;")
	require.NotContains(t, html, "<Napa>")
}

func TestCompose_Defaults(t *testing.T) {
	subject, text, _ := compose(Notification{Reward: domain.Reward{MerchantName: "Uber"}})
	require.Equal(t, "A new offer from Uber", subject)
	require.Contains(t, text, "Hi there,")
}

func TestMailgunDispatcher_RequiresRecipient(t *testing.T) {
	d := NewMailgunDispatcher(nil, "rewards@example.com", "", 0)
	err := d.Dispatch(context.Background(), Notification{UserID: "u1"})
	require.ErrorIs(t, err, ErrNoRecipient)
}

func TestLogDispatcher(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	err := LogDispatcher{}.Dispatch(ctx, Notification{UserID: "u1", Reward: domain.Reward{ID: "r1"}})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "r1")
}

func TestNew_FallsBackToLog(t *testing.T) {
	d := New(context.Background(), Config{Provider: "mailgun"})
	require.IsType(t, &LogDispatcher{}, d)

	d = New(context.Background(), Config{Provider: "mailgun", MailgunDomain: "mg.example.com", MailgunAPIKey: "key", SenderEmail: "a@example.com"})
	require.IsType(t, &MailgunDispatcher{}, d)
}
