// ABOUTME: State machine for a backend-requested pause pending a human decision
// ABOUTME: Idle -> Active(intervention) -> Idle via confirm or abort

package intervention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/trace-assist/internal/protocol"
)

var (
	// ErrNotActive is returned when no intervention is pending.
	ErrNotActive = errors.New("no active intervention")
	// ErrNoSelection is returned by Confirm when no option is selected.
	ErrNoSelection = errors.New("no option selected")
	// ErrUnknownOption is returned when the selection references no
	// option of the active intervention.
	ErrUnknownOption = errors.New("selected option does not exist")
	// ErrBusy is returned while a confirm is already in flight.
	ErrBusy = errors.New("resolution already in flight")
)

// actionAbort is the wire action for dismissing an intervention.
const actionAbort = "abort"

// actionCustom marks options that carry free-form user input.
const actionCustom = "custom"

// State is a snapshot of the coordinator for UI reads. IsActive true
// implies Intervention non-nil and vice versa.
type State struct {
	IsActive         bool
	Intervention     *protocol.InterventionPayload
	SelectedOptionID string
	CustomInput      string
	IsSending        bool
}

// Coordinator mediates the human-in-the-loop protocol: it records the
// backend's pause descriptor, the user's selection, and drives the
// resolution request. OnResolved fires after a successful confirm so the
// analysis flow can resume.
type Coordinator struct {
	resolver Resolver
	logger   *slog.Logger

	// OnResolved, if set, is called with the resolved action after a
	// successful confirm. Not called for abort.
	OnResolved func(action string)

	mu    sync.Mutex
	state State
}

// NewCoordinator creates an idle coordinator. Pass nil logger for default.
func NewCoordinator(resolver Resolver, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		resolver: resolver,
		logger:   logger.With("component", "intervention"),
	}
}

// Activate enters the Active state with the backend's descriptor,
// clearing any stale selection or input from a prior intervention.
func (c *Coordinator) Activate(p protocol.InterventionPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = State{
		IsActive:     true,
		Intervention: &p,
	}
	c.logger.Info("intervention activated",
		"intervention_id", p.InterventionID,
		"type", p.Type,
		"options", len(p.Options))
}

// SelectOption records the user's choice without submitting anything.
func (c *Coordinator) SelectOption(optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsActive {
		return ErrNotActive
	}
	c.state.SelectedOptionID = optionID
	return nil
}

// SetCustomInput records free-form input. Only meaningful when the
// selected option's action is "custom".
func (c *Coordinator) SetCustomInput(input string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsActive {
		return ErrNotActive
	}
	c.state.CustomInput = input
	return nil
}

// Confirm submits the selected option. It rejects, without any network
// call: no active intervention, no selection, a selection that matches
// no option, or a confirm already in flight. On backend success the
// coordinator clears to Idle and fires OnResolved; on failure it stays
// Active with IsSending cleared so the user may retry or reselect.
func (c *Coordinator) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.IsActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	if c.state.IsSending {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state.SelectedOptionID == "" {
		c.mu.Unlock()
		return ErrNoSelection
	}

	option := findOption(c.state.Intervention.Options, c.state.SelectedOptionID)
	if option == nil {
		c.mu.Unlock()
		return ErrUnknownOption
	}

	req := ResolutionRequest{
		InterventionID:   c.state.Intervention.InterventionID,
		Action:           option.Action,
		SelectedOptionID: option.ID,
	}
	if option.Action == actionCustom {
		req.CustomInput = c.state.CustomInput
	}
	c.state.IsSending = true
	c.mu.Unlock()

	resp, err := c.resolver.Resolve(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil || !resp.Success {
		c.state.IsSending = false
		if err == nil {
			err = fmt.Errorf("resolution rejected: %s", resp.Error)
		}
		c.logger.Warn("intervention confirm failed",
			"intervention_id", req.InterventionID,
			"error", err)
		return err
	}

	c.logger.Info("intervention resolved",
		"intervention_id", req.InterventionID,
		"action", req.Action)
	c.state = State{}
	if c.OnResolved != nil {
		c.OnResolved(req.Action)
	}
	return nil
}

// Abort dismisses the active intervention. Any response, success or
// failure, is terminal from the client's perspective: the state always
// clears to Idle so the UI is never left stuck waiting.
func (c *Coordinator) Abort(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.IsActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	req := ResolutionRequest{
		InterventionID: c.state.Intervention.InterventionID,
		Action:         actionAbort,
	}
	c.state.IsSending = true
	c.mu.Unlock()

	if _, err := c.resolver.Resolve(ctx, req); err != nil {
		c.logger.Warn("intervention abort send failed, clearing anyway",
			"intervention_id", req.InterventionID,
			"error", err)
	}

	c.mu.Lock()
	c.state = State{}
	c.mu.Unlock()

	c.logger.Info("intervention aborted", "intervention_id", req.InterventionID)
	return nil
}

// Clear resets to Idle without contacting the backend. Used on session
// teardown.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
}

// Snapshot returns a copy of the current state for UI reads.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state
	if c.state.Intervention != nil {
		intervention := *c.state.Intervention
		snap.Intervention = &intervention
	}
	return snap
}

func findOption(options []protocol.InterventionOption, id string) *protocol.InterventionOption {
	for i := range options {
		if options[i].ID == id {
			return &options[i]
		}
	}
	return nil
}
