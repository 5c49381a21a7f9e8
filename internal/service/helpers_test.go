package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/whatsapp-campaigns/internal/gateway"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
)

// manualScheduler runs tasks on virtual time, one at a time, in due order.
type manualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	s       *manualScheduler
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Live returns the tasks still armed, in due order.
func (s *manualScheduler) Live() []*manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked()
}

func (s *manualScheduler) liveLocked() []*manualTask {
	var live []*manualTask
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	s.tasks = live
	return live
}

// RunNext advances the clock to the earliest task and runs it.
func (s *manualScheduler) RunNext() bool {
	s.mu.Lock()
	live := s.liveLocked()
	if len(live) == 0 {
		s.mu.Unlock()
		return false
	}
	t := live[0]
	t.stopped = true
	if t.at.After(s.now) {
		s.now = t.at
	}
	s.mu.Unlock()
	t.f()
	return true
}

// RunUntilIdle runs tasks until none are armed. It fails the test after limit tasks.
func (s *manualScheduler) RunUntilIdle(t *testing.T, limit int) int {
	t.Helper()
	n := 0
	for s.RunNext() {
		n++
		require.Less(t, n, limit, "scheduler did not go idle")
	}
	return n
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) SendText(ctx context.Context, phone, text string, sender gateway.Sender) error {
	args := m.Called(ctx, phone, text, sender)
	return args.Error(0)
}

func (m *mockGateway) SendMedia(ctx context.Context, phone, mediaURL, caption string, sender gateway.Sender, mediaType string) error {
	args := m.Called(ctx, phone, mediaURL, caption, sender, mediaType)
	return args.Error(0)
}

type countingNotifier struct {
	mu     sync.Mutex
	events []model.CampaignEvent
}

func (n *countingNotifier) CampaignCompleted(_ context.Context, e model.CampaignEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	store    *repository.MemoryStore
	sched    *manualScheduler
	notifier *countingNotifier
	campaign *model.Campaign
}

func newFixture(t *testing.T, c model.Campaign, recipients ...model.Recipient) *fixture {
	t.Helper()
	sched := newManualScheduler()
	f := &fixture{
		store:    repository.NewMemoryStore().WithClock(sched.Now),
		sched:    sched,
		notifier: &countingNotifier{},
	}
	require.NoError(t, f.store.Create(context.Background(), &c))
	require.NoError(t, f.store.UpdateStatus(context.Background(), c.ID, model.CampaignRunning))
	_, err := f.store.Enqueue(context.Background(), c.ID, recipients)
	require.NoError(t, err)
	f.campaign = &c
	return f
}

func (f *fixture) reconciler(queue repository.QueueRepositoryInterface) *StatsReconciler {
	return &StatsReconciler{Queue: queue, Campaigns: f.store, Notifier: f.notifier, Now: f.sched.Now}
}

func (f *fixture) processor(gw gateway.Client) *Processor {
	return f.processorWith(f.store, gw, f.sched)
}

func (f *fixture) processorWith(queue repository.QueueRepositoryInterface, gw gateway.Client, sched Scheduler) *Processor {
	return NewProcessor(f.campaign.ID, f.store, queue, gw, f.reconciler(queue), ProcessorOptions{
		InstanceID:      "test",
		ClaimRetryDelay: 500 * time.Millisecond,
		StoreRetryDelay: 5 * time.Second,
		Scheduler:       sched,
		Now:             f.sched.Now,
	})
}

// settle claims the item and records status for it, as a claimer on another instance would.
func (f *fixture) settle(t *testing.T, itemID int, status, errMsg string) {
	t.Helper()
	item, err := f.store.ConditionalClaim(context.Background(), itemID)
	require.NoError(t, err)
	require.NotNil(t, item, "item %d is not Pending", itemID)
	applied, err := f.store.SetTerminal(context.Background(), itemID, *item.ClaimedAt, status, f.sched.Now(), errMsg)
	require.NoError(t, err)
	require.True(t, applied)
}

func (f *fixture) itemByPhone(t *testing.T, phone string) model.QueueItem {
	t.Helper()
	for _, item := range f.store.Items(f.campaign.ID) {
		if item.RecipientPhone == phone {
			return item
		}
	}
	t.Fatalf("no item for %s", phone)
	return model.QueueItem{}
}
