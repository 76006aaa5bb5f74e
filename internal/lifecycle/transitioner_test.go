package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/inference-hitl/internal/domain"
	"github.com/cuongbtq/inference-hitl/internal/lifecycle"
	"github.com/cuongbtq/inference-hitl/internal/storage/storagetest"
	"github.com/cuongbtq/inference-hitl/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		setup    []domain.Status // path walked before Apply
		from, to domain.Status
		wantErr  error
		want     domain.Status
	}{
		{name: "bot to human", from: domain.StatusBot, to: domain.StatusHuman, want: domain.StatusHuman},
		{name: "bot to fail", from: domain.StatusBot, to: domain.StatusFail, want: domain.StatusFail},
		{name: "human to bot", setup: []domain.Status{domain.StatusHuman}, from: domain.StatusHuman, to: domain.StatusBot, want: domain.StatusBot},
		{name: "human to success", setup: []domain.Status{domain.StatusHuman}, from: domain.StatusHuman, to: domain.StatusSuccess, want: domain.StatusSuccess},
		{name: "human to fail", setup: []domain.Status{domain.StatusHuman}, from: domain.StatusHuman, to: domain.StatusFail, want: domain.StatusFail},
		{name: "bot to success rejected", from: domain.StatusBot, to: domain.StatusSuccess, wantErr: domain.ErrInvalidTransition, want: domain.StatusBot},
		{name: "terminal state rejected", setup: []domain.Status{domain.StatusHuman, domain.StatusSuccess}, from: domain.StatusSuccess, to: domain.StatusHuman, wantErr: domain.ErrInvalidTransition, want: domain.StatusSuccess},
		{name: "stale precondition", setup: []domain.Status{domain.StatusHuman}, from: domain.StatusBot, to: domain.StatusHuman, wantErr: domain.ErrConflict, want: domain.StatusHuman},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storagetest.New(t)
			transitioner := lifecycle.NewTransitioner(store, logger.Discard())

			id, err := store.CreateJob(ctx, []byte(`{}`))
			require.NoError(t, err)

			current := domain.StatusBot
			for _, next := range tt.setup {
				require.NoError(t, transitioner.Apply(ctx, id, current, next, domain.Changes{}))
				current = next
			}

			err = transitioner.Apply(ctx, id, tt.from, tt.to, domain.Changes{Response: []byte(`"r"`)})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			job, err := store.GetJobByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.Status)
		})
	}
}

func TestApply_WritesChanges(t *testing.T) {
	ctx := context.Background()
	store := storagetest.New(t)
	transitioner := lifecycle.NewTransitioner(store, logger.Discard())

	id, err := store.CreateJob(ctx, []byte(`{"q":1}`))
	require.NoError(t, err)

	require.NoError(t, transitioner.Apply(ctx, id, domain.StatusBot, domain.StatusHuman, domain.Changes{
		Response: []byte(`{"a":1}`),
	}))
	require.NoError(t, transitioner.Apply(ctx, id, domain.StatusHuman, domain.StatusBot, domain.Changes{
		Payload: []byte(`{"q":2}`),
	}))

	job, err := store.GetJobByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBot, job.Status)
	assert.JSONEq(t, `{"q":2}`, string(job.Payload))
	assert.JSONEq(t, `{"a":1}`, string(job.Response))
}

func TestApply_NotFound(t *testing.T) {
	store := storagetest.New(t)
	transitioner := lifecycle.NewTransitioner(store, logger.Discard())

	err := transitioner.Apply(context.Background(), "2NWrFMd1zIrx8vjFY0C6iqGhFzZ", domain.StatusBot, domain.StatusHuman, domain.Changes{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}

func TestApply_ConcurrentReviewSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := storagetest.New(t)
	transitioner := lifecycle.NewTransitioner(store, logger.Discard())

	id, err := store.CreateJob(ctx, []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, transitioner.Apply(ctx, id, domain.StatusBot, domain.StatusHuman, domain.Changes{}))

	targets := []domain.Status{domain.StatusSuccess, domain.StatusFail, domain.StatusBot, domain.StatusSuccess}
	errs := make([]error, len(targets))

	var g errgroup.Group
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			errs[i] = transitioner.Apply(ctx, id, domain.StatusHuman, target, domain.Changes{})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var winners int
	var winner domain.Status
	for i, err := range errs {
		if err == nil {
			winners++
			winner = targets[i]
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrConflict), "unexpected error: %v", err)
	}
	require.Equal(t, 1, winners)

	job, err := store.GetJobByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, winner, job.Status)
}
