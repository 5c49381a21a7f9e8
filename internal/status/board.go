// Package status publishes processor snapshots to Redis so every instance's
// progress can be read from one place.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// Board stores snapshots under campaign:<id>:processor:<instance> with a TTL, so an
// instance that stops reporting disappears on its own.
type Board struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewBoard(client redis.UniversalClient, ttl time.Duration) *Board {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Board{client: client, ttl: ttl}
}

// Connect parses addr as host:port or a redis:// URL and pings the server.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if parsed, err := redis.ParseURL(addr); err == nil {
		opts = parsed
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func key(campaignID int, instanceID string) string {
	return fmt.Sprintf("campaign:%d:processor:%s", campaignID, instanceID)
}

func (b *Board) Put(ctx context.Context, snap model.ProcessorSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, key(snap.CampaignID, snap.InstanceID), data, b.ttl).Err()
}

func (b *Board) Remove(ctx context.Context, campaignID int, instanceID string) error {
	return b.client.Del(ctx, key(campaignID, instanceID)).Err()
}

// List returns the live snapshots of every instance working the campaign, ordered by instance.
func (b *Board) List(ctx context.Context, campaignID int) ([]model.ProcessorSnapshot, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, fmt.Sprintf("campaign:%d:processor:*", campaignID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	snaps := make([]model.ProcessorSnapshot, 0, len(keys))
	if len(keys) == 0 {
		return snaps, nil
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var snap model.ProcessorSnapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			logrus.WithError(err).WithField("key", keys[i]).Warn("skipping malformed snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].InstanceID < snaps[j].InstanceID })
	return snaps, nil
}

// Source lists the snapshots to publish on each tick.
type Source interface {
	Snapshots() []model.ProcessorSnapshot
}

// Run publishes src every interval until ctx is done.
func (b *Board) Run(ctx context.Context, src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		b.Publish(ctx, src)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Publish writes one round of snapshots. Failures are logged and skipped.
func (b *Board) Publish(ctx context.Context, src Source) {
	for _, snap := range src.Snapshots() {
		if err := b.Put(ctx, snap); err != nil {
			logrus.WithError(err).WithField("campaign_id", snap.CampaignID).Warn("failed to publish processor snapshot")
		}
	}
}
