// Package syncer drives the chain from the full node: it catches up from
// the indexed height to the node's tip, then follows new blocks by polling
// and through the push feed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/Klingon-tech/slpgraph/internal/bch"
	"github.com/Klingon-tech/slpgraph/internal/blockcache"
	"github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/internal/metrics"
	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/internal/utxodb"
	"github.com/Klingon-tech/slpgraph/pkg/block"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// ErrReorgTooDeep is returned when the node's chain diverges below the
// rollback window.
var ErrReorgTooDeep = errors.New("reorg deeper than rollback window")

// Source provides blocks by height.
type Source interface {
	BlockCount() (uint32, error)
	RawBlock(height uint32) ([]byte, error)
}

// Options configure a Syncer. Zero values select the defaults.
type Options struct {
	// PollInterval is the delay between tip checks.
	PollInterval time.Duration
	// RetryDelay is the delay before refetching a block that failed.
	RetryDelay time.Duration
	// SnapshotInterval is the number of blocks between snapshots; 0 writes
	// a snapshot only on shutdown.
	SnapshotInterval uint32
	// Progress shows a progress bar during catch-up when stdout is a
	// terminal.
	Progress bool

	Cache   *blockcache.Cache // optional
	DB      storage.DB        // snapshot target, optional
	Metrics *metrics.Metrics  // optional
}

// Syncer applies blocks from a Source to a chain.
type Syncer struct {
	chain *bch.Chain
	src   Source
	opts  Options

	// applyMu serializes block application between the poll loop and the
	// push feed.
	applyMu  sync.Mutex
	lastSnap uint32

	kick chan struct{}
}

// New creates a syncer.
func New(chain *bch.Chain, src Source, opts Options) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Syncer{
		chain:    chain,
		src:      src,
		opts:     opts,
		lastSnap: chain.Height(),
		kick:     make(chan struct{}, 1),
	}
}

// Kick asks the run loop to check the node's tip now.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run catches up, then follows the node until ctx is cancelled. A final
// snapshot is written on the way out.
func (s *Syncer) Run(ctx context.Context) error {
	defer func() {
		if err := s.Snapshot(); err != nil {
			log.Sync.Error().Err(err).Msg("Final snapshot failed")
		}
	}()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.CatchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrReorgTooDeep) {
				return err
			}
			log.Sync.Warn().Err(err).Msg("Catch-up interrupted")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.kick:
		}
	}
}

// CatchUp applies blocks until the chain reaches the node's current tip.
func (s *Syncer) CatchUp(ctx context.Context) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	target, err := s.src.BlockCount()
	if err != nil {
		return fmt.Errorf("block count: %w", err)
	}
	start := s.chain.Height()
	if start >= target {
		return nil
	}

	bar := s.newBar(start, target)
	defer func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}()
	if bar == nil {
		log.Sync.Info().Uint32("from", start).Uint32("to", target).Msg("Catching up")
	}

	for s.chain.Height() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		height := s.chain.Height() + 1
		blk, err := s.fetch(ctx, height)
		if err != nil {
			return err
		}

		if tip := s.chain.TipHash(); !tip.IsZero() && blk.Header.PrevBlock != tip {
			if err := s.rollback(height, tip, blk.Header.PrevBlock); err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Set64(int64(s.chain.Height() - start))
			}
			continue
		}

		// Only the newest blocks can be reorged away.
		saveRollback := target-height < utxodb.RollbackDepth
		s.apply(blk, saveRollback, height)

		if bar != nil {
			_ = bar.Add(1)
		} else if height%1000 == 0 {
			log.Sync.Info().Uint32("height", height).Uint32("target", target).Msg("Sync progress")
		}
	}
	return nil
}

// fetch returns the hydrated block at height from the cache or the node,
// retrying node errors until ctx ends.
func (s *Syncer) fetch(ctx context.Context, height uint32) (*block.Block, error) {
	cfg := s.chain.Config()

	if s.opts.Cache != nil {
		data, err := s.opts.Cache.Get(height)
		switch {
		case err == nil:
			// Cached blocks are already filtered, so the merkle root cannot
			// be checked again.
			blk, herr := block.Hydrate(data, block.Options{Height: height, TokenOnly: cfg.TokenOnly})
			if herr == nil && s.linksToTip(blk) {
				s.opts.Metrics.CacheRead(true)
				return blk, nil
			}
			log.Sync.Debug().Uint32("height", height).Msg("Discarding stale cached block")
			if derr := s.opts.Cache.Delete(height); derr != nil {
				log.Sync.Warn().Err(derr).Uint32("height", height).Msg("Failed to drop cached block")
			}
		case errors.Is(err, blockcache.ErrMiss), errors.Is(err, blockcache.ErrCorrupt):
		default:
			log.Sync.Warn().Err(err).Uint32("height", height).Msg("Block cache read failed")
		}
		s.opts.Metrics.CacheRead(false)
	}

	for {
		raw, err := s.src.RawBlock(height)
		if err == nil {
			blk, herr := block.Hydrate(raw, block.Options{
				Height:       height,
				TokenOnly:    cfg.TokenOnly,
				VerifyMerkle: cfg.VerifyMerkle,
			})
			if herr != nil {
				return nil, fmt.Errorf("block %d: %w", height, herr)
			}
			s.cachePut(height, blk)
			return blk, nil
		}
		log.Sync.Warn().Err(err).Uint32("height", height).Dur("retry", s.opts.RetryDelay).Msg("Fetching block failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

func (s *Syncer) linksToTip(blk *block.Block) bool {
	tip := s.chain.TipHash()
	return tip.IsZero() || blk.Header.PrevBlock == tip
}

func (s *Syncer) cachePut(height uint32, blk *block.Block) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Put(height, block.Encode(blk.Header, blk.Txs)); err != nil {
		log.Sync.Warn().Err(err).Uint32("height", height).Msg("Caching block failed")
	}
}

// apply hands blk to the chain and takes periodic snapshots. The caller
// holds applyMu.
func (s *Syncer) apply(blk *block.Block, saveRollback bool, height uint32) {
	began := time.Now()
	s.chain.ApplyBlock(blk, saveRollback)
	s.opts.Metrics.BlockProcessed(height, time.Since(began))

	if s.opts.SnapshotInterval > 0 && height-s.lastSnap >= s.opts.SnapshotInterval {
		if err := s.snapshot(); err != nil {
			log.Sync.Error().Err(err).Uint32("height", height).Msg("Snapshot failed")
		}
	}
}

// rollback undoes the tip after the node's block at height did not build
// on it. The caller holds applyMu.
func (s *Syncer) rollback(height uint32, tip, prev types.Hash) error {
	log.Sync.Warn().
		Uint32("height", height).
		Str("tip", tip.String()).
		Str("prev", prev.String()).
		Msg("Node chain diverged, rolling back")
	if !s.chain.Rollback() {
		return fmt.Errorf("at height %d: %w", height, ErrReorgTooDeep)
	}
	s.opts.Metrics.Rollback()
	s.opts.Metrics.SetHeight(s.chain.Height())
	if s.opts.Cache != nil {
		if _, err := s.opts.Cache.DeleteAbove(s.chain.Height()); err != nil {
			log.Sync.Warn().Err(err).Msg("Pruning block cache failed")
		}
	}
	return nil
}

// HandleRawBlock applies a pushed block when it extends the tip and
// otherwise wakes the catch-up loop.
func (s *Syncer) HandleRawBlock(ctx context.Context, raw []byte) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	cfg := s.chain.Config()
	height := s.chain.Height() + 1
	blk, err := block.Hydrate(raw, block.Options{
		Height:       height,
		TokenOnly:    cfg.TokenOnly,
		VerifyMerkle: cfg.VerifyMerkle,
	})
	if err != nil {
		return fmt.Errorf("pushed block: %w", err)
	}
	if blk.Header.PrevBlock != s.chain.TipHash() {
		log.Sync.Debug().Str("hash", blk.Hash()).Msg("Pushed block does not extend tip")
		s.Kick()
		return nil
	}
	s.cachePut(height, blk)
	s.apply(blk, true, height)
	log.Sync.Info().Uint32("height", height).Str("hash", blk.Hash()).Msg("New block")
	return nil
}

// HandleRawTx applies a pushed mempool transaction.
func (s *Syncer) HandleRawTx(_ context.Context, raw []byte) error {
	err := s.chain.ProcessMempoolTx(raw)
	s.opts.Metrics.MempoolTx(err)
	return err
}

// OnGap reacts to lost feed notifications by checking the tip.
func (s *Syncer) OnGap(topic string, _, _ uint32) {
	if topic == "rawblock" {
		s.Kick()
	}
}

// Snapshot writes the chain state to the snapshot database.
func (s *Syncer) Snapshot() error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	return s.snapshot()
}

func (s *Syncer) snapshot() error {
	if s.opts.DB == nil {
		return nil
	}
	err := s.chain.Snapshot(s.opts.DB)
	s.opts.Metrics.Snapshot(err)
	if err != nil {
		return err
	}
	s.lastSnap = s.chain.Height()
	return nil
}

func (s *Syncer) newBar(start, target uint32) *progressbar.ProgressBar {
	if !s.opts.Progress || !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil
	}
	return progressbar.NewOptions64(int64(target-start),
		progressbar.OptionSetWriter(colorable.NewColorableStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(fmt.Sprintf("Indexing blocks %d..%d", start+1, target)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetRenderBlankState(false),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	)
}
