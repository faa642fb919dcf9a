package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/jobs"
)

type staticUsers []domain.User

func (s staticUsers) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s, nil
}

type recordingPublisher struct {
	jobs []*jobs.EnrichBatchJob
	err  error
}

func (p *recordingPublisher) PublishEnrichBatch(ctx context.Context, job *jobs.EnrichBatchJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestEnqueueRound(t *testing.T) {
	users := staticUsers{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}

	pub := &recordingPublisher{}
	n, err := enqueueRound(context.Background(), users, pub, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "worker", pub.jobs[0].Source)

	pub = &recordingPublisher{}
	n, err = enqueueRound(context.Background(), users, pub, []string{"u2", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "u2", pub.jobs[0].UserID)
}

func TestEnqueueRound_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue closed")}
	n, err := enqueueRound(context.Background(), staticUsers{{ID: "u1"}}, pub, nil)
	require.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestSplitIDs(t *testing.T) {
	assert.Equal(t, []string{"u1", "u2"}, splitIDs(" u1, ,u2 "))
	assert.Nil(t, splitIDs(""))
}
