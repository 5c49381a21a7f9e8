package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

func TestReconcile_RecomputesCountsFromQueue(t *testing.T) {
	f := newFixture(t, model.Campaign{Name: "promo", Content: "oi"}, ana, bob)
	ctx := context.Background()

	f.settle(t, f.itemByPhone(t, ana.Phone).ID, model.ItemSent, "")

	r := f.reconciler(f.store)
	for i := 0; i < 3; i++ {
		stats, completed, err := r.Reconcile(ctx, f.campaign.ID)
		require.NoError(t, err)
		assert.False(t, completed)
		assert.Equal(t, model.CampaignStats{Sent: 1, Pending: 1, Total: 2}, stats)
	}

	c, err := f.store.GetByID(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stats.Sent)
	assert.Equal(t, 2, c.Stats.Total)
	assert.Equal(t, model.CampaignRunning, c.Status)
}

func TestReconcile_CompletesExactlyOnce(t *testing.T) {
	f := newFixture(t, model.Campaign{Name: "promo", Content: "oi"}, ana)
	ctx := context.Background()

	f.settle(t, f.itemByPhone(t, ana.Phone).ID, model.ItemFailed, "Falha no Texto 1: boom")

	r := f.reconciler(f.store)
	_, completed, err := r.Reconcile(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, completed)

	_, completed, err = r.Reconcile(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, completed)

	require.Equal(t, 1, f.notifier.Count())
	event := f.notifier.events[0]
	assert.Equal(t, model.EventCampaignCompleted, event.Type)
	assert.Equal(t, f.campaign.ID, event.CampaignID)
	assert.Equal(t, 1, event.Failed)
	assert.Equal(t, 1, event.Total)
	assert.WithinDuration(t, f.sched.Now(), event.CompletedAt, time.Second)
}

func TestReconcile_CompletesDespiteAbandonedSendingItem(t *testing.T) {
	f := newFixture(t, model.Campaign{Name: "promo", Content: "oi"}, ana, bob)
	ctx := context.Background()

	f.settle(t, f.itemByPhone(t, ana.Phone).ID, model.ItemSent, "")
	// claimed by an instance that then crashed
	_, err := f.store.ConditionalClaim(ctx, f.itemByPhone(t, bob.Phone).ID)
	require.NoError(t, err)

	stats, completed, err := f.reconciler(f.store).Reconcile(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, 1, stats.Sending)
	assert.Equal(t, 1, stats.Total)

	c, err := f.store.GetByID(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignCompleted, c.Status)
	require.Equal(t, 1, f.notifier.Count())
	assert.Equal(t, 1, f.notifier.events[0].Sent)
}

func TestReconcile_WaitForSendingHoldsCompletion(t *testing.T) {
	f := newFixture(t, model.Campaign{Name: "promo", Content: "oi"}, ana, bob)
	ctx := context.Background()

	f.settle(t, f.itemByPhone(t, ana.Phone).ID, model.ItemSent, "")
	inFlight, err := f.store.ConditionalClaim(ctx, f.itemByPhone(t, bob.Phone).ID)
	require.NoError(t, err)

	r := f.reconciler(f.store)
	r.WaitForSending = true
	stats, completed, err := r.Reconcile(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, 1, stats.Sending)
	assert.Equal(t, 0, f.notifier.Count())

	applied, err := f.store.SetTerminal(ctx, inFlight.ID, *inFlight.ClaimedAt, model.ItemSent, f.sched.Now(), "")
	require.NoError(t, err)
	require.True(t, applied)
	_, completed, err = r.Reconcile(ctx, f.campaign.ID)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, 1, f.notifier.Count())
}

func TestReconcile_EmptyCampaignNeverCompletes(t *testing.T) {
	f := newFixture(t, model.Campaign{Name: "promo", Content: "oi"})

	stats, completed, err := f.reconciler(f.store).Reconcile(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Zero(t, stats.Total)
}
