package claim

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"
	"github.com/padraorezende/developer-collection-nft-drop/internal/identity"
	"github.com/padraorezende/developer-collection-nft-drop/internal/journal"
	"github.com/padraorezende/developer-collection-nft-drop/internal/ledger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	msgClaimSucceeded = "HOORAY.. You Successfully Minted!"
	msgClaimFailed    = "Whoops... Something went wrong!"
	msgRefreshFailed  = "Could not load the drop supply, try again."
)

// Options wires the controller to its collaborators. Gateway, Identity and Store are required.
type Options struct {
	Gateway  ledger.Gateway
	Identity identity.Provider
	Store    *drop.Store
	Journal  journal.Store
	Metrics  *Metrics
	Logger   *zap.Logger

	// ReadTimeout bounds one refresh (all three reads). Zero means no bound.
	ReadTimeout time.Duration
	// ClaimTimeout bounds one claim write including its receipt. Zero means no bound.
	ClaimTimeout time.Duration
	Now          func() time.Time
}

// Controller runs the drop claim state machine.
//
// Every transition happens on the goroutine executing Run: intents, identity
// changes and gateway completions are delivered to it as events, so the
// state needs no lock. Gateway calls run on their own goroutines and post
// their results back.
type Controller struct {
	gateway      ledger.Gateway
	identity     identity.Provider
	store        *drop.Store
	journal      journal.Store
	metrics      *Metrics
	logger       *zap.Logger
	readTimeout  time.Duration
	claimTimeout time.Duration
	now          func() time.Time

	events  chan func()
	done    chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	runCtx       context.Context
	state        drop.State
	current      identity.Identity
	epoch        uint64
	refreshGen   uint64
	claimPending bool
}

func New(opts Options) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if opts.Identity == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		gateway:      opts.Gateway,
		identity:     opts.Identity,
		store:        opts.Store,
		journal:      opts.Journal,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		readTimeout:  opts.ReadTimeout,
		claimTimeout: opts.ClaimTimeout,
		now:          opts.Now,
		events:       make(chan func()),
		done:         make(chan struct{}),
		state:        drop.Initial(),
	}, nil
}

// State returns the latest published state.
func (c *Controller) State() drop.State {
	return c.store.Current()
}

// Run owns the state machine until ctx is done. It refreshes once on start.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.runCtx = ctx
	c.current = c.identity.Current()
	c.state.Account = c.current.Account
	c.startRefresh("mount")

	changes := c.identity.Changes()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("claim controller stopped")
			return nil
		case next := <-changes:
			c.onIdentity(next)
		case fn := <-c.events:
			fn()
		}
	}
}

// RequestConnect asks the identity provider to connect. The controller reacts to the resulting change.
func (c *Controller) RequestConnect(ctx context.Context) error {
	return c.identity.Connect(ctx)
}

// RequestDisconnect asks the identity provider to disconnect.
func (c *Controller) RequestDisconnect(ctx context.Context) error {
	return c.identity.Disconnect(ctx)
}

// RequestClaim starts a claim of one token for the connected account.
// It returns once the preconditions are checked; the write settles asynchronously.
func (c *Controller) RequestClaim(ctx context.Context) error {
	verdict := make(chan error, 1)
	if err := c.submit(ctx, func() { verdict <- c.startClaim() }); err != nil {
		return err
	}
	select {
	case err := <-verdict:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh re-reads the drop. Refused while a claim write is outstanding.
func (c *Controller) Refresh(ctx context.Context) error {
	verdict := make(chan error, 1)
	err := c.submit(ctx, func() {
		if c.claimPending {
			verdict <- ErrClaimInFlight
			return
		}
		c.startRefresh("manual")
		verdict <- nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-verdict:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit hands fn to the Run goroutine.
func (c *Controller) submit(ctx context.Context, fn func()) error {
	select {
	case c.events <- fn:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a completion from an operation goroutine. It reports false once Run has exited.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) replace(next drop.State) {
	c.state = next
	c.store.Replace(next)
}

func (c *Controller) onIdentity(next identity.Identity) {
	if c.current.Same(next) {
		return
	}
	prev := c.current
	c.current = next
	c.epoch++

	if !next.Present() {
		// Pending refreshes become stale; an outstanding claim settles but is not applied.
		c.refreshGen++
		c.logger.Info("identity disconnected", zap.String("account", prev.Account))
		c.replace(drop.State{Phase: drop.PhaseIdle})
		return
	}

	c.logger.Info("identity changed",
		zap.String("account", next.Account),
		zap.String("previous", prev.Account))
	c.replace(drop.State{Account: next.Account, Phase: drop.PhaseIdle})
	c.startRefresh("identity")
}

func (c *Controller) startClaim() error {
	if err := c.checkClaim(); err != nil {
		c.metrics.incRejection(rejectionReason(err))
		c.logger.Debug("claim rejected", zap.Error(err), zap.Stringer("phase", c.state.Phase))
		return err
	}

	c.claimPending = true
	attempt := claimAttempt{
		entry: journal.Entry{
			ID:        uuid.New(),
			Account:   c.current.Account,
			Quantity:  1,
			Status:    journal.StatusPending,
			StartedAt: c.now(),
		},
		epoch: c.epoch,
	}

	next := c.state
	next.Phase = drop.PhaseClaiming
	next.LastError = drop.ErrorNone
	c.replace(next)

	c.logger.Info("claim started",
		zap.String("account", attempt.entry.Account),
		zap.String("attempt", attempt.entry.ID.String()))

	go c.runClaim(c.runCtx, attempt)
	return nil
}

func (c *Controller) checkClaim() error {
	if !c.current.Present() {
		return ErrNoIdentity
	}
	if c.claimPending || c.state.Phase == drop.PhaseClaiming {
		return ErrClaimInFlight
	}
	if c.state.Phase != drop.PhaseReady || c.state.Snapshot == nil {
		return ErrNotReady
	}
	if c.state.Snapshot.SoldOut() {
		return ErrSoldOut
	}
	return nil
}

type claimAttempt struct {
	entry journal.Entry
	epoch uint64
}

type claimOutcome struct {
	attempt claimAttempt
	receipt ledger.ClaimReceipt
	err     error
}

// runClaim performs the write off the loop. The write is never cancelled by
// a disconnect or shutdown, only bounded by ClaimTimeout.
func (c *Controller) runClaim(parent context.Context, attempt claimAttempt) {
	c.record(attempt.entry)

	ctx := context.WithoutCancel(parent)
	if c.claimTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.claimTimeout)
		defer cancel()
	}

	var receipt ledger.ClaimReceipt
	err := guard("claim", func() (err error) {
		receipt, err = c.gateway.ClaimTo(ctx, attempt.entry.Account, attempt.entry.Quantity)
		return err
	})
	outcome := claimOutcome{attempt: attempt, receipt: receipt, err: err}

	applied := make(chan bool, 1)
	if !c.post(func() { applied <- c.applyClaim(outcome) }) {
		applied <- false
	}

	final := attempt.entry
	final.FinishedAt = c.now()
	final.TxHash = receipt.TxHash
	switch {
	case !<-applied:
		final.Status = journal.StatusDropped
	case err != nil:
		final.Status = journal.StatusFailed
	default:
		final.Status = journal.StatusSucceeded
	}
	if err != nil {
		final.ErrorKind = ledger.KindOf(err).String()
	}
	c.record(final)
}

func (c *Controller) applyClaim(o claimOutcome) bool {
	c.claimPending = false
	took := c.now().Sub(o.attempt.entry.StartedAt)
	logger := c.logger.With(
		zap.String("account", o.attempt.entry.Account),
		zap.String("attempt", o.attempt.entry.ID.String()))

	if o.attempt.epoch != c.epoch {
		c.metrics.incStale("claim")
		c.metrics.incClaim("dropped", took)
		logger.Info("claim settled after identity change, result dropped", zap.Error(o.err))
		return false
	}

	if o.err != nil {
		kind := ledger.KindOf(o.err)
		c.metrics.incClaim("failed", took)
		logger.Warn("claim failed", zap.Stringer("error_kind", kind), zap.Error(o.err))

		next := c.state
		next.Phase = drop.PhaseClaimFailed
		next.LastError = kind
		c.replace(next)
		c.store.Notify(drop.Notice{Kind: drop.NoticeClaimFailed, Message: msgClaimFailed, Error: kind})

		next.Phase = drop.PhaseReady
		c.replace(next)
		return true
	}

	c.metrics.incClaim("succeeded", took)
	logger.Info("claim succeeded", zap.String("tx_hash", o.receipt.TxHash))

	next := c.state
	next.Phase = drop.PhaseClaimSucceeded
	next.LastError = drop.ErrorNone
	c.replace(next)
	c.store.Notify(drop.Notice{Kind: drop.NoticeClaimSucceeded, Message: msgClaimSucceeded})

	c.startRefresh("claim")
	return true
}

func (c *Controller) record(entry journal.Entry) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.journal.Save(ctx, entry); err != nil {
		c.logger.Warn("journal save failed",
			zap.String("attempt", entry.ID.String()),
			zap.Error(err))
	}
}
