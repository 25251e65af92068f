package claim

import (
	"context"
	"errors"

	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"
	"github.com/padraorezende/developer-collection-nft-drop/internal/ledger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// refreshResult holds the three reads; each succeeds or fails on its own.
type refreshResult struct {
	gen        uint64
	claimed    uint64
	claimedErr error
	total      uint64
	totalErr   error
	conditions []ledger.ClaimCondition
	condErr    error
}

// startRefresh tags a new refresh with the next generation and issues the reads.
// Only the newest generation may be applied.
func (c *Controller) startRefresh(trigger string) {
	c.refreshGen++
	gen := c.refreshGen

	next := c.state
	next.Phase = drop.PhaseRefreshing
	c.replace(next)

	c.logger.Debug("refresh started",
		zap.Uint64("generation", gen),
		zap.String("trigger", trigger))

	go func(ctx context.Context) {
		res := c.fetch(ctx, gen)
		c.post(func() { c.applyRefresh(res) })
	}(c.runCtx)
}

func (c *Controller) fetch(ctx context.Context, gen uint64) refreshResult {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	res := refreshResult{gen: gen}
	var g errgroup.Group
	g.Go(func() error {
		res.claimedErr = guard("claimed count", func() (err error) {
			res.claimed, err = c.gateway.ClaimedCount(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		res.totalErr = guard("total supply", func() (err error) {
			res.total, err = c.gateway.TotalSupply(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		res.condErr = guard("claim conditions", func() (err error) {
			res.conditions, err = c.gateway.ClaimConditions(ctx)
			return err
		})
		return nil
	})
	_ = g.Wait()
	return res
}

func (c *Controller) applyRefresh(res refreshResult) {
	if res.gen != c.refreshGen {
		c.metrics.incStale("refresh")
		c.logger.Debug("stale refresh discarded",
			zap.Uint64("generation", res.gen),
			zap.Uint64("current", c.refreshGen))
		return
	}

	next := c.state
	next.Phase = drop.PhaseReady
	next.LastError = drop.ErrorNone

	var price *drop.Price
	switch {
	case res.condErr != nil:
		next.LastError = ledger.KindOf(res.condErr)
		c.logger.Warn("price read failed", zap.Uint64("generation", res.gen), zap.Error(res.condErr))
	case len(res.conditions) > 0:
		first := res.conditions[0]
		price = &drop.Price{Display: first.UnitPriceDisplay, CurrencySymbol: first.CurrencySymbol}
	}

	result := "ok"
	if supplyErr := errors.Join(res.claimedErr, res.totalErr); supplyErr != nil {
		result = "failed"
		next.LastError = ledger.KindOf(supplyErr)
		c.logger.Warn("supply read failed, keeping previous snapshot",
			zap.Uint64("generation", res.gen),
			zap.Error(supplyErr))
	} else {
		snap, err := drop.NewSnapshot(res.claimed, res.total, price, c.now())
		if err != nil {
			result = "invalid"
			next.LastError = drop.ErrorInvariantViolation
			c.logger.Warn("ledger reported inconsistent supply, snapshot discarded",
				zap.Uint64("claimed", res.claimed),
				zap.Uint64("total", res.total),
				zap.Uint64("generation", res.gen))
		} else {
			next.Snapshot = snap
			c.metrics.setSupply(snap.Claimed, snap.Total)
			if price == nil && res.condErr != nil {
				result = "partial"
			}
		}
	}

	c.metrics.incRefresh(result)
	c.replace(next)
	if next.LastError == drop.ErrorNetworkFailure {
		c.store.Notify(drop.Notice{Kind: drop.NoticeRefreshFailed, Message: msgRefreshFailed, Error: next.LastError})
	}
}
