package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/effortless/internal/dispatch"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/enrichment"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/dvloznov/effortless/internal/matching"
	"github.com/dvloznov/effortless/internal/notify"
)

// PipelineStep represents a single step in the transaction pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps for one
// transaction.
type PipelineState struct {
	Transaction *domain.Transaction
	User        domain.UserContext

	Enrichment enrichment.Changes
	Match      matching.Result
	Decisions  []NotificationDecision

	// Notified is set when this run delivered the transaction's first
	// notification.
	Notified bool
}

// NotificationDecision is the notification outcome for one missed reward.
type NotificationDecision struct {
	RewardID   string `json:"reward_id"`
	Notify     bool   `json:"notify"`
	Dispatched bool   `json:"dispatched"`
	Err        error  `json:"-"`
}

// Step 1: EnrichStep derives merchant, category and location.
type EnrichStep struct {
	Engine *enrichment.Engine
}

func (s *EnrichStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Transaction == nil {
		return errors.New("EnrichStep: no transaction")
	}
	state.Enrichment = s.Engine.Enrich(state.Transaction)
	return nil
}

// Step 2: MatchStep selects the auto-applied reward or the missed candidates.
type MatchStep struct {
	Matcher *matching.Matcher
}

func (s *MatchStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Match = s.Matcher.Match(state.Transaction, state.User)
	return nil
}

// Step 3: NotifyStep decides, for each missed candidate, whether the user
// should hear about it, and hands positive decisions to the dispatcher.
// A failed decision or delivery is recorded on the decision and does not
// fail the transaction. Transactions already notified are skipped, and a
// successful delivery marks the transaction so later runs skip it too.
type NotifyStep struct {
	Clock      notify.Clock
	Dispatcher dispatch.Dispatcher
}

func (s *NotifyStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Match.Missed) == 0 || state.Transaction.NotificationTriggered {
		return nil
	}
	log := logger.FromContext(ctx)

	for i := range state.Match.Missed {
		r := &state.Match.Missed[i]
		now := notify.NowFor(r, s.Clock)

		ok, err := notify.ShouldNotify(now, state.User.Notifications, state.User.Geo, r)
		d := NotificationDecision{RewardID: r.ID, Notify: ok, Err: err}
		if err != nil {
			log.Error().Err(err).Str("reward_id", r.ID).Msg("Notification decision failed")
		}

		if ok && s.Dispatcher != nil {
			n := dispatch.Notification{
				UserID:        state.User.UserID,
				UserName:      state.User.Name,
				Email:         state.User.Email,
				TransactionID: state.Transaction.ID,
				Reward:        *r,
			}
			if err := s.Dispatcher.Dispatch(ctx, n); err != nil {
				d.Err = fmt.Errorf("dispatching reward %s: %w", r.ID, err)
				log.Warn().Err(err).Str("reward_id", r.ID).Msg("Notification dispatch failed")
			} else {
				d.Dispatched = true
			}
		}

		state.Decisions = append(state.Decisions, d)
	}

	for _, d := range state.Decisions {
		if d.Dispatched {
			state.Transaction.NotificationTriggered = true
			state.Notified = true
			break
		}
	}
	return nil
}
