package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// ProcessorFactory builds the processor this instance uses for a campaign.
type ProcessorFactory func(campaignID int) *Processor

// Runner owns at most one processor per campaign in this process.
type Runner struct {
	InstanceID string

	mu         sync.Mutex
	processors map[int]*Processor
	newFunc    ProcessorFactory
}

// Constructor
func NewRunner(instanceID string, factory ProcessorFactory) *Runner {
	return &Runner{
		InstanceID: instanceID,
		processors: make(map[int]*Processor),
		newFunc:    factory,
	}
}

func (r *Runner) processor(campaignID int, create bool) *Processor {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processors[campaignID]
	if !ok && create {
		p = r.newFunc(campaignID)
		r.processors[campaignID] = p
	}
	return p
}

// Start creates the campaign's processor if needed and resumes it.
func (r *Runner) Start(campaignID int) *Processor {
	p := r.processor(campaignID, true)
	p.Start()
	return p
}

// Pause reports false when this instance has no processor for the campaign.
func (r *Runner) Pause(campaignID int) bool {
	p := r.processor(campaignID, false)
	if p == nil {
		return false
	}
	p.Pause()
	return true
}

func (r *Runner) Resume(campaignID int) *Processor {
	return r.Start(campaignID)
}

func (r *Runner) Snapshot(campaignID int) (model.ProcessorSnapshot, bool) {
	p := r.processor(campaignID, false)
	if p == nil {
		return model.ProcessorSnapshot{}, false
	}
	return p.Snapshot(), true
}

// Snapshots returns one snapshot per local processor, ordered by campaign.
func (r *Runner) Snapshots() []model.ProcessorSnapshot {
	r.mu.Lock()
	procs := make([]*Processor, 0, len(r.processors))
	for _, p := range r.processors {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	out := make([]model.ProcessorSnapshot, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}

// Handle applies a broadcast control command.
func (r *Runner) Handle(_ context.Context, cmd model.ControlCommand) error {
	log := logrus.WithFields(logrus.Fields{"campaign_id": cmd.CampaignID, "action": cmd.Action})
	switch cmd.Action {
	case model.ActionStart, model.ActionResume:
		r.Start(cmd.CampaignID)
	case model.ActionPause:
		if !r.Pause(cmd.CampaignID) {
			log.Debug("pause for a campaign this instance is not running")
			return nil
		}
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	log.Info("control command applied")
	return nil
}

// Shutdown pauses every processor and waits for in-flight sends.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	procs := make([]*Processor, 0, len(r.processors))
	for _, p := range r.processors {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	var firstErr error
	for _, p := range procs {
		if err := p.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
