package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

func TestRunner_HandleControlCommands(t *testing.T) {
	f := newFixture(t, model.Campaign{Name: "promo", Content: "oi"}, ana, bob)
	gw := new(mockGateway)
	gw.On("SendText", mock.Anything, mock.Anything, "oi", mock.Anything).Return(nil)

	created := 0
	r := NewRunner("node-1", func(campaignID int) *Processor {
		created++
		require.Equal(t, f.campaign.ID, campaignID)
		return f.processor(gw)
	})
	ctx := context.Background()

	_, ok := r.Snapshot(f.campaign.ID)
	assert.False(t, ok)
	require.NoError(t, r.Handle(ctx, model.ControlCommand{CampaignID: f.campaign.ID, Action: model.ActionPause}))
	assert.Zero(t, created, "pause never creates a processor")

	require.NoError(t, r.Handle(ctx, model.ControlCommand{CampaignID: f.campaign.ID, Action: model.ActionStart}))
	require.True(t, f.sched.RunNext())

	snap, ok := r.Snapshot(f.campaign.ID)
	require.True(t, ok)
	assert.True(t, snap.IsRunning)
	assert.Equal(t, "Ana", snap.LastRecipient)

	require.NoError(t, r.Handle(ctx, model.ControlCommand{CampaignID: f.campaign.ID, Action: model.ActionPause}))
	assert.Empty(t, f.sched.Live())

	require.NoError(t, r.Handle(ctx, model.ControlCommand{CampaignID: f.campaign.ID, Action: model.ActionResume}))
	f.sched.RunUntilIdle(t, 10)
	assert.Equal(t, 1, created)
	assert.Equal(t, model.ItemSent, f.itemByPhone(t, bob.Phone).Status)

	assert.Error(t, r.Handle(ctx, model.ControlCommand{CampaignID: f.campaign.ID, Action: "explode"}))

	snaps := r.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, string(StateIdle), snaps[0].State)

	require.NoError(t, r.Shutdown(ctx))
	assert.False(t, r.processor(f.campaign.ID, false).IsRunning())
}
