// Package approval implements the approval gate manager: it pauses an
// in-flight skill invocation until an external party resolves it, or times
// out, per a write-once pending→{approved,denied,timeout} state machine.
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the approval lifecycle state. Once a record leaves "pending" it
// is terminal: no further resolve call may change it.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimeout  Status = "timeout"
)

// Request is the durable approval record.
type Request struct {
	ID               string  `json:"id"`
	Action           string  `json:"action"`
	Zone             string  `json:"zone"`
	RiskLevel        string  `json:"risk_level"`
	Description      string  `json:"description"`
	Target           string  `json:"target"`
	ProposedContent  string  `json:"proposed_content,omitempty"`
	Status           Status  `json:"status"`
	CreatedAt        float64 `json:"created_at"`
	ResolvedAt       float64 `json:"resolved_at,omitempty"`
	ResolvedBy       string  `json:"resolved_by,omitempty"`
}

// pollInterval is the fixed short interval Wait polls the store at.
const pollInterval = 500 * time.Millisecond

// notifyChannel is the pub/sub channel name approval creation publishes to.
const notifyChannel = "approvals:pending"

// Notification is the best-effort payload published to notifyChannel on
// every Create call.
type Notification struct {
	ApprovalID      string `json:"approval_id"`
	Action          string `json:"action"`
	Zone            string `json:"zone"`
	RiskLevel       string `json:"risk_level"`
	Description     string `json:"description"`
	Target          string `json:"target"`
	ProposedContent string `json:"proposed_content,omitempty"`
}

// Store persists approval records and publishes creation notifications. Two
// implementations exist — in-memory and Redis — and must agree on every
// method's semantics, in particular write-once resolution.
type Store interface {
	// Create inserts req with status=pending, sets its expiry, and returns
	// nil on success.
	Create(ctx context.Context, req Request, expiry time.Duration) error
	// Get returns the record, or ok=false if it does not exist (expired or
	// never created).
	Get(ctx context.Context, id string) (req Request, ok bool)
	// CompareAndResolve transitions id from pending to the given status iff
	// its current status is still pending. Returns true only on the call
	// that performed the transition.
	CompareAndResolve(ctx context.Context, id string, status Status, resolvedBy string, resolvedAt float64) (bool, error)
	// ListPending returns every record currently in status=pending.
	ListPending(ctx context.Context) ([]Request, error)
	// Publish best-effort notifies subscribers of a new pending approval.
	// Errors must never propagate to the caller of Create.
	Publish(ctx context.Context, notification Notification)
}

// Manager is the approval gate manager. One Manager is constructed at
// startup from a Store and held by reference.
type Manager struct {
	store          Store
	defaultTimeout time.Duration
}

// NewManager constructs a Manager backed by store, with defaultTimeout used
// by Wait when no explicit timeout is given.
func NewManager(store Store, defaultTimeout time.Duration) *Manager {
	return &Manager{store: store, defaultTimeout: defaultTimeout}
}

// Create assigns a fresh opaque id, persists the record as pending, sets a
// storage expiry of 2×timeout, and best-effort publishes a notification.
// Returns the approval id.
func (m *Manager) Create(ctx context.Context, action, zone, riskLevel, description, target, proposedContent string) (string, error) {
	id := uuid.NewString()
	now := nowUnix()

	req := Request{
		ID:              id,
		Action:          action,
		Zone:            zone,
		RiskLevel:       riskLevel,
		Description:     description,
		Target:          target,
		ProposedContent: proposedContent,
		Status:          StatusPending,
		CreatedAt:       now,
	}

	if err := m.store.Create(ctx, req, 2*m.defaultTimeout); err != nil {
		return "", err
	}

	m.store.Publish(ctx, Notification{
		ApprovalID:      id,
		Action:          action,
		Zone:            zone,
		RiskLevel:       riskLevel,
		Description:     description,
		Target:          target,
		ProposedContent: proposedContent,
	})

	return id, nil
}

// Wait polls the record at pollInterval until it is no longer pending, the
// record disappears (treated as timeout), or timeout elapses — at which
// point it atomically writes the timeout resolution and returns
// StatusTimeout. Wait returns promptly if ctx is cancelled, leaving the
// record pending for a future resolver or its own storage-level expiry.
func (m *Manager) Wait(ctx context.Context, id string, timeout time.Duration) Status {
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		req, ok := m.store.Get(ctx, id)
		if !ok {
			return StatusTimeout
		}
		if req.Status != StatusPending {
			return req.Status
		}
		if time.Now().After(deadline) {
			_, _ = m.store.CompareAndResolve(ctx, id, StatusTimeout, "system:timeout", nowUnix())
			return StatusTimeout
		}

		select {
		case <-ctx.Done():
			return StatusTimeout
		case <-ticker.C:
		}
	}
}

// Resolve is the only path that accepts external authority to settle a
// request; callers must reach it only over an authenticated boundary. It
// returns false if the record is absent or already resolved — the
// write-once guarantee.
func (m *Manager) Resolve(ctx context.Context, id string, status Status, resolvedBy string) (bool, error) {
	return m.store.CompareAndResolve(ctx, id, status, resolvedBy, nowUnix())
}

// Get returns a single approval request by id.
func (m *Manager) Get(ctx context.Context, id string) (Request, bool) {
	return m.store.Get(ctx, id)
}

// ListPending returns every pending approval request, for startup catch-up
// and the GET /approval/pending endpoint.
func (m *Manager) ListPending(ctx context.Context) ([]Request, error) {
	return m.store.ListPending(ctx)
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
