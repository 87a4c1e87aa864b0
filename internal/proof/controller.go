// controller.go - Controller side of proof orchestration.

package proof

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"privacypool/internal/metrics"
	"privacypool/internal/operation"
	"privacypool/internal/poolerr"
	"privacypool/internal/witness"
	"privacypool/p2p"
)

// SnapshotSource supplies the pools captured at staging time.
type SnapshotSource interface {
	Snapshot() (confirmed, pending []operation.Operation, err error)
}

// ProverDialer opens a channel to a ready prover.
type ProverDialer interface {
	Dial(ctx context.Context) (*p2p.Link, error)
}

// Auditor records security relevant events.
type Auditor interface {
	Audit(event string, details map[string]interface{})
}

// Config bounds how long a request may wait in each phase.
type Config struct {
	NodeID          string
	ApprovalTimeout time.Duration
	ProofTimeout    time.Duration
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		NodeID:          "controller",
		ApprovalTimeout: 5 * time.Minute,
		ProofTimeout:    10 * time.Minute,
	}
}

// Backstop added to the proof timeout before the registry expires a caller.
const deliveryGrace = 5 * time.Second

// Controller stages proof requests, forwards approved ones to the prover and
// delivers each result to its caller once.
type Controller struct {
	cfg      Config
	ops      SnapshotSource
	dialer   ProverDialer
	staging  StagingArea
	registry *Registry
	auditor  Auditor

	// admit orders staging against approval, rejection and reset. epoch counts
	// resets so a Stage that snapshotted before a reset cannot stage after it.
	admit sync.Mutex
	epoch uint64

	mu       sync.Mutex
	inflight map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithAuditor sends audit events to a.
func WithAuditor(a Auditor) Option {
	return func(c *Controller) { c.auditor = a }
}

// NewController builds a Controller. Zero timeouts take the defaults.
func NewController(ops SnapshotSource, dialer ProverDialer, cfg Config, log zerolog.Logger, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.NodeID == "" {
		cfg.NodeID = def.NodeID
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = def.ApprovalTimeout
	}
	if cfg.ProofTimeout <= 0 {
		cfg.ProofTimeout = def.ProofTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		ops:      ops,
		dialer:   dialer,
		registry: NewRegistry(),
		inflight: make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "proof-controller").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stage validates ask, snapshots the pools and parks the request until it is
// approved, rejected or expires. The returned channel yields exactly one Result.
func (c *Controller) Stage(ask Ask) (*Request, <-chan Result, error) {
	if c.ctx.Err() != nil {
		return nil, nil, poolerr.ErrSessionClosed
	}
	if strings.TrimSpace(ask.Circuit.JSONURL) == "" || strings.TrimSpace(ask.Circuit.VKURL) == "" {
		return nil, nil, poolerr.New(poolerr.InvalidRequest, "circuit jsonUrl and vkUrl are required")
	}
	if _, _, err := witness.Split(ask.Witness); err != nil {
		return nil, nil, err
	}
	c.admit.Lock()
	epoch := c.epoch
	c.admit.Unlock()

	confirmed, pending, err := c.ops.Snapshot()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	req := &Request{
		ID:        uuid.NewString(),
		Circuit:   ask.Circuit,
		Witness:   ask.Witness,
		Confirmed: confirmed,
		Pending:   pending,
		StagedAt:  now,
		ExpiresAt: now.Add(c.cfg.ApprovalTimeout),
	}

	c.admit.Lock()
	if c.epoch != epoch || c.ctx.Err() != nil {
		c.admit.Unlock()
		return nil, nil, poolerr.ErrSessionClosed
	}
	ch := c.registry.Register(req.ID, c.cfg.ApprovalTimeout, c.expireApproval)
	if err := c.staging.Put(req); err != nil {
		c.registry.Cancel(req.ID)
		c.admit.Unlock()
		return nil, nil, err
	}
	c.admit.Unlock()

	c.log.Info().Str("request_id", req.ID).Time("expires_at", req.ExpiresAt).Msg("proof request staged")
	c.audit("proof_staged", map[string]interface{}{"request_id": req.ID, "circuit": req.Circuit.JSONURL})
	return req, ch, nil
}

// RequestProof stages ask and blocks until its result arrives. If ctx ends
// first the request is abandoned.
func (c *Controller) RequestProof(ctx context.Context, ask Ask) ([]string, error) {
	req, ch, err := c.Stage(ask)
	if err != nil {
		return nil, err
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, poolerr.ErrSessionClosed
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Calldata, nil
	case <-ctx.Done():
		c.abandon(req.ID)
		return nil, ctx.Err()
	}
}

// Staged returns the request awaiting approval.
func (c *Controller) Staged() (*Request, error) {
	req, ok := c.staging.Peek()
	if !ok {
		return nil, poolerr.ErrNoStagedRequest
	}
	return req, nil
}

// Approve takes the staged request (matching id, or any when id is empty) and
// forwards it to the prover. It reports whether a request was taken. When none
// is staged, waiting callers that are neither staged nor in flight receive
// NoStagedRequest; the approver does not.
func (c *Controller) Approve(ctx context.Context, id string) (bool, error) {
	if c.ctx.Err() != nil {
		return false, poolerr.ErrSessionClosed
	}
	c.admit.Lock()
	req, ok := c.staging.Take(id)
	if !ok {
		c.failOrphans(poolerr.ErrNoStagedRequest)
		c.admit.Unlock()
		return false, nil
	}

	fctx, cancel := context.WithTimeout(c.ctx, c.cfg.ProofTimeout)
	c.mu.Lock()
	c.inflight[req.ID] = cancel
	c.mu.Unlock()
	c.registry.Extend(req.ID, c.cfg.ProofTimeout+deliveryGrace, c.expireProof)
	c.admit.Unlock()

	c.log.Info().Str("request_id", req.ID).Msg("proof request approved")
	c.audit("proof_approved", map[string]interface{}{"request_id": req.ID})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.forward(fctx, req)
	}()
	return true, nil
}

// Reject discards the staged request and fails its caller with ProofRejected.
func (c *Controller) Reject(id string) error {
	c.admit.Lock()
	req, ok := c.staging.Take(id)
	c.admit.Unlock()
	if !ok {
		return poolerr.ErrNoStagedRequest
	}
	c.log.Info().Str("request_id", req.ID).Msg("proof request rejected")
	c.audit("proof_rejected", map[string]interface{}{"request_id": req.ID})
	c.deliver(req.ID, Result{Err: poolerr.ErrProofRejected})
	return nil
}

// Reset drops the staged request, cancels forwarding and fails every waiting
// caller with SessionClosed. It runs when the session locks.
func (c *Controller) Reset() {
	c.admit.Lock()
	c.epoch++
	staged := c.staging.Clear()

	c.mu.Lock()
	for id, cancel := range c.inflight {
		cancel()
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	n := c.registry.FailAll(poolerr.ErrSessionClosed)
	c.admit.Unlock()
	if staged != nil || n > 0 {
		metrics.ProofRequests.WithLabelValues(string(poolerr.SessionClosed)).Add(float64(n))
		c.log.Info().Int("callers", n).Msg("proof requests discarded")
		c.audit("proof_session_closed", map[string]interface{}{"callers": n})
	}
}

// Close resets the controller and waits for forwarding goroutines to exit.
// Later calls to Stage and Approve fail with SessionClosed.
func (c *Controller) Close() {
	c.cancel()
	c.Reset()
	c.wg.Wait()
}

// Waiting is the number of callers still waiting on a result.
func (c *Controller) Waiting() int {
	return c.registry.Len()
}

func (c *Controller) forward(ctx context.Context, req *Request) {
	log := c.log.With().Str("request_id", req.ID).Logger()

	link, err := c.dialer.Dial(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("prover unreachable")
		c.deliver(req.ID, Result{Err: c.channelError(ctx, err)})
		return
	}
	defer link.Close()
	log.Debug().Str("prover", link.Peer()).Msg("forwarding proof request")

	if err := link.SendPayload(ctx, p2p.TypeGenerateProof, req.ID, c.cfg.NodeID, req); err != nil {
		c.deliver(req.ID, Result{Err: c.channelError(ctx, err)})
		return
	}

	for {
		msg, err := link.Receive(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("proof channel ended before a result")
			c.deliver(req.ID, Result{Err: c.channelError(ctx, err)})
			return
		}
		if msg.RequestID != req.ID {
			log.Debug().Str("type", msg.Type).Str("got", msg.RequestID).Msg("ignoring uncorrelated message")
			continue
		}

		switch msg.Type {
		case p2p.TypeProofResponse:
			var payload ResponsePayload
			if err := msg.Decode(&payload); err != nil {
				c.deliver(req.ID, Result{Err: poolerr.Wrap(poolerr.ProofFailed, err, "malformed proof response")})
				return
			}
			c.deliver(req.ID, Result{Calldata: payload.Calldata})
		case p2p.TypeProofError:
			var payload ErrorPayload
			if err := msg.Decode(&payload); err != nil {
				c.deliver(req.ID, Result{Err: poolerr.Wrap(poolerr.ProofFailed, err, "malformed proof error")})
				return
			}
			c.deliver(req.ID, Result{Err: payload.Err()})
		default:
			continue
		}
		// One result per request; anything after it on this link is not read.
		return
	}
}

// channelError classifies a failure on the proof channel.
func (c *Controller) channelError(ctx context.Context, err error) error {
	switch {
	case c.ctx.Err() != nil, errors.Is(ctx.Err(), context.Canceled):
		return poolerr.ErrSessionClosed
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return poolerr.ProofFailure("proof generation timed out")
	}
	var pe *poolerr.Error
	if errors.As(err, &pe) {
		return err
	}
	return poolerr.Wrap(poolerr.ProofFailed, err, "proof channel failed")
}

func (c *Controller) deliver(id string, res Result) {
	c.mu.Lock()
	if cancel, ok := c.inflight[id]; ok {
		cancel()
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	if !c.registry.Fulfill(id, res) {
		c.log.Debug().Str("request_id", id).Msg("result dropped, caller gone")
		return
	}
	outcome := "ok"
	if res.Err != nil {
		outcome = string(poolerr.KindOf(res.Err))
	}
	metrics.ProofRequests.WithLabelValues(outcome).Inc()
	c.audit("proof_delivered", map[string]interface{}{"request_id": id, "outcome": outcome})
}

func (c *Controller) expireApproval(id string) {
	if !c.staging.Discard(id) {
		return
	}
	c.log.Info().Str("request_id", id).Msg("proof request expired before approval")
	c.audit("proof_expired", map[string]interface{}{"request_id": id})
	c.deliver(id, Result{Err: poolerr.ErrApprovalExpired})
}

func (c *Controller) expireProof(id string) {
	c.deliver(id, Result{Err: poolerr.ProofFailure("proof generation timed out")})
}

// failOrphans fails callers whose request is neither staged nor in flight.
func (c *Controller) failOrphans(err error) {
	staged, _ := c.staging.Peek()
	for _, id := range c.registry.IDs() {
		if staged != nil && staged.ID == id {
			continue
		}
		c.mu.Lock()
		_, busy := c.inflight[id]
		c.mu.Unlock()
		if !busy {
			c.deliver(id, Result{Err: err})
		}
	}
}

func (c *Controller) abandon(id string) {
	c.staging.Discard(id)
	c.mu.Lock()
	if cancel, ok := c.inflight[id]; ok {
		cancel()
		delete(c.inflight, id)
	}
	c.mu.Unlock()
	c.registry.Cancel(id)
	metrics.ProofRequests.WithLabelValues("abandoned").Inc()
}

func (c *Controller) audit(event string, details map[string]interface{}) {
	if c.auditor != nil {
		c.auditor.Audit(event, details)
	}
}
