package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/whatsapp-campaigns/internal/errors"
	"github.com/unclebandit/whatsapp-campaigns/internal/gateway"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
	"github.com/unclebandit/whatsapp-campaigns/internal/repository"
)

// State is the processor's position in its single-item cycle.
type State string

const (
	StateIdle      State = "Idle"
	StateClaiming  State = "Claiming"
	StateSending   State = "Sending"
	StateRecording State = "Recording"
	StateScheduled State = "Scheduled"
	StatePaused    State = "Paused"
)

// terminalWriteRetries bounds the retries of an outcome write after a send.
const terminalWriteRetries = 3

func (s State) busy() bool {
	return s == StateClaiming || s == StateSending || s == StateRecording
}

type ProcessorOptions struct {
	InstanceID          string
	DefaultDelaySeconds int
	ClaimRetryDelay     time.Duration
	StoreRetryDelay     time.Duration
	// LeaseTimeout > 0 returns items stuck in Sending for longer than this to Pending.
	LeaseTimeout time.Duration
	Scheduler    Scheduler
	Now          func() time.Time
}

func (o *ProcessorOptions) withDefaults() {
	if o.DefaultDelaySeconds <= 0 {
		o.DefaultDelaySeconds = model.DefaultDelaySeconds
	}
	if o.ClaimRetryDelay <= 0 {
		o.ClaimRetryDelay = 500 * time.Millisecond
	}
	if o.StoreRetryDelay <= 0 {
		o.StoreRetryDelay = 5 * time.Second
	}
	if o.Scheduler == nil {
		o.Scheduler = SystemScheduler
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Processor drives one campaign's queue from one instance. Any number of
// processors, in this process or others, may work the same campaign; they
// coordinate only through QueueRepositoryInterface.ConditionalClaim.
type Processor struct {
	campaignID int
	campaigns  repository.CampaignRepositoryInterface
	queue      repository.QueueRepositoryInterface
	gateway    gateway.Client
	reconciler *StatsReconciler
	opts       ProcessorOptions
	log        *logrus.Entry

	mu        sync.Mutex
	running   bool
	closed    bool
	state     State
	epoch     uint64
	next      Timer
	tick      Timer
	countdown int
	stats     model.CampaignStats
	last      model.ProcessorSnapshot
	inflight  sync.WaitGroup
}

func NewProcessor(
	campaignID int,
	campaigns repository.CampaignRepositoryInterface,
	queue repository.QueueRepositoryInterface,
	gw gateway.Client,
	reconciler *StatsReconciler,
	opts ProcessorOptions,
) *Processor {
	opts.withDefaults()
	return &Processor{
		campaignID: campaignID,
		campaigns:  campaigns,
		queue:      queue,
		gateway:    gw,
		reconciler: reconciler,
		opts:       opts,
		state:      StateIdle,
		log: logrus.WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"instance_id": opts.InstanceID,
		}),
	}
}

// Start begins (or resumes) processing. The first cycle is dispatched through the scheduler.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.running = true
	if p.state.busy() {
		// the in-flight cycle schedules the next one when it finishes
		return
	}
	p.scheduleLocked(0, false)
}

// Resume is Start; kept separate for readability at call sites.
func (p *Processor) Resume() { p.Start() }

// Pause stops future claims. A send already in flight runs to completion.
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.stopTimersLocked()
	p.countdown = 0
	if !p.state.busy() {
		p.state = StatePaused
	}
}

// Shutdown pauses the processor for good and waits for an in-flight send.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Pause()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot returns what this instance currently knows, for observation only.
func (p *Processor) Snapshot() model.ProcessorSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.last
	snap.InstanceID = p.opts.InstanceID
	snap.CampaignID = p.campaignID
	snap.State = string(p.state)
	snap.IsRunning = p.running
	snap.Sent = p.stats.Sent
	snap.Failed = p.stats.Failed
	snap.Pending = p.stats.Pending
	snap.Total = p.stats.Total
	snap.SecondsUntilNext = p.countdown
	snap.UpdatedAt = p.opts.Now()
	return snap
}

func (p *Processor) stopTimersLocked() {
	p.epoch++
	if p.next != nil {
		p.next.Stop()
		p.next = nil
	}
	if p.tick != nil {
		p.tick.Stop()
		p.tick = nil
	}
}

// scheduleLocked arms the next cycle after d. Timers from an older epoch are ignored when they fire.
func (p *Processor) scheduleLocked(d time.Duration, countdown bool) {
	p.stopTimersLocked()
	epoch := p.epoch
	p.state = StateScheduled
	p.next = p.opts.Scheduler.AfterFunc(d, func() { p.processNextItem(epoch) })
	p.countdown = 0
	if countdown {
		p.countdown = int(d / time.Second)
		if p.countdown > 0 {
			p.tick = p.opts.Scheduler.AfterFunc(time.Second, func() { p.countdownTick(epoch) })
		}
	}
}

func (p *Processor) countdownTick(epoch uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if epoch != p.epoch {
		return
	}
	if p.countdown > 0 {
		p.countdown--
	}
	if p.countdown > 0 {
		p.tick = p.opts.Scheduler.AfterFunc(time.Second, func() { p.countdownTick(epoch) })
	} else {
		p.tick = nil
	}
}

// finish ends a cycle: schedules the next one when running, otherwise parks the processor.
func (p *Processor) finish(d time.Duration, countdown bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		p.state = StatePaused
		return
	}
	p.scheduleLocked(d, countdown)
}

func (p *Processor) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Processor) processNextItem(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || p.state.busy() {
		p.mu.Unlock()
		return
	}
	p.stopTimersLocked()
	if !p.running {
		p.state = StatePaused
		p.mu.Unlock()
		return
	}
	p.state = StateClaiming
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	ctx := context.Background()

	campaign, err := p.campaigns.GetByID(ctx, p.campaignID)
	if err != nil {
		p.log.WithError(err).Error("failed to load campaign")
		p.finish(p.opts.StoreRetryDelay, false)
		return
	}

	if p.opts.LeaseTimeout > 0 {
		released, err := p.queue.ReleaseStaleLeases(ctx, p.campaignID, p.opts.Now().Add(-p.opts.LeaseTimeout))
		if err != nil {
			p.log.WithError(err).Warn("failed to release stale leases")
		} else if released > 0 {
			p.log.WithField("released", released).Warn("returned stale Sending items to Pending")
		}
	}

	id, ok, err := p.queue.SelectOnePendingID(ctx, p.campaignID)
	if err != nil {
		p.log.WithError(err).Error("failed to select pending item")
		p.finish(p.opts.StoreRetryDelay, false)
		return
	}
	if !ok {
		p.reconcile(ctx)
		p.mu.Lock()
		if p.running {
			p.state = StateIdle
		} else {
			p.state = StatePaused
		}
		p.mu.Unlock()
		p.log.Info("no pending items left, processor idle")
		return
	}

	item, err := p.queue.ConditionalClaim(ctx, id)
	if err != nil {
		p.log.WithError(err).WithField("item_id", id).Error("failed to claim item")
		p.finish(p.opts.StoreRetryDelay, false)
		return
	}
	if item == nil {
		p.log.WithField("item_id", id).Debug("item claimed by another instance")
		p.finish(p.opts.ClaimRetryDelay, false)
		return
	}

	p.setState(StateSending)
	status, errMsg := p.send(ctx, campaign, item)

	p.setState(StateRecording)
	p.record(ctx, item, status, errMsg)
	p.reconcile(ctx)

	delaySeconds := campaign.DelayOrDefault(p.opts.DefaultDelaySeconds)
	p.finish(time.Duration(delaySeconds)*time.Second, true)
}

// send delivers every present part in order and stops at the first failure.
func (p *Processor) send(ctx context.Context, c *model.Campaign, item *model.QueueItem) (string, string) {
	if c.Channel != model.ChannelWhatsApp {
		return model.ItemFailed, (&appErrors.ErrChannelNotImplemented{Channel: c.Channel}).Error()
	}

	parts := RenderCampaign(c, item.Recipient())
	sender := gateway.Sender{ID: c.SenderID}
	phone := item.RecipientPhone

	steps := []struct {
		present bool
		label   string
		run     func() error
	}{
		{parts.Content != "", "Falha no Texto 1", func() error {
			return p.gateway.SendText(ctx, phone, parts.Content, sender)
		}},
		{parts.ImageURL != "", "Falha na Imagem", func() error {
			return p.gateway.SendMedia(ctx, phone, parts.ImageURL, "", sender, "image")
		}},
		{parts.Content2 != "", "Falha no Texto 2", func() error {
			return p.gateway.SendText(ctx, phone, parts.Content2, sender)
		}},
	}

	for _, step := range steps {
		if !step.present {
			continue
		}
		if err := step.run(); err != nil {
			msg := fmt.Sprintf("%s: %v", step.label, err)
			p.log.WithFields(logrus.Fields{"item_id": item.ID, "phone": phone}).Warn(msg)
			return model.ItemFailed, msg
		}
	}
	return model.ItemSent, ""
}

// record writes the terminal status for this instance's claim. If the lease was
// swept and the item claimed again meanwhile, the write matches no row and the
// outcome is dropped in favour of the newer claim.
func (p *Processor) record(ctx context.Context, item *model.QueueItem, status, errMsg string) {
	at := p.opts.Now()
	var claimedAt time.Time
	if item.ClaimedAt != nil {
		claimedAt = *item.ClaimedAt
	}
	log := p.log.WithField("item_id", item.ID)

	applied := false
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	err := backoff.Retry(func() error {
		var err error
		applied, err = p.queue.SetTerminal(ctx, item.ID, claimedAt, status, at, errMsg)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, terminalWriteRetries), ctx))
	switch {
	case err != nil:
		log.WithError(err).Error("failed to record item outcome")
	case !applied:
		log.WithField("outcome", status).Warn("claim no longer held, outcome not recorded")
	}

	recipient := item.RecipientName
	if recipient == "" {
		recipient = item.RecipientPhone
	}
	p.mu.Lock()
	p.last.LastRecipient = recipient
	p.last.LastOutcome = status
	p.last.LastError = errMsg
	p.mu.Unlock()
}

func (p *Processor) reconcile(ctx context.Context) {
	if p.reconciler == nil {
		return
	}
	stats, _, err := p.reconciler.Reconcile(ctx, p.campaignID)
	if err != nil {
		p.log.WithError(err).Error("failed to reconcile stats")
		return
	}
	p.mu.Lock()
	p.stats = stats
	p.mu.Unlock()
}
