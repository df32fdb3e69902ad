package utxpool

import (
	"errors"
	"fmt"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/applier"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

// StatusRecorder persists the on-chain classification of a transaction.
// Only Applied and Failed transactions are recorded; Invalid ones leave no
// trace.
type StatusRecorder interface {
	Record(id types.Digest, status applier.Status, reason string, height uint64) error
}

// AssemblerConfig parameterizes block assembly.
type AssemblerConfig struct {
	// Generator receives the block's collected fees.
	Generator types.Address

	// MaxBlockTxs caps the number of transactions drained per block.
	MaxBlockTxs int
}

// DefaultAssemblerConfig returns the production assembly configuration.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{MaxBlockTxs: 1_000}
}

// Assembler pulls transactions from the pool, classifies them sequentially
// against a cumulative overlay and commits the surviving effects as one block.
type Assembler struct {
	cfg      AssemblerConfig
	ledger   state.Ledger
	pool     *Pool
	applier  *applier.Applier
	statuses StatusRecorder
}

// NewAssembler wires an assembler. statuses may be nil to skip recording.
func NewAssembler(cfg AssemblerConfig, ledger state.Ledger, pool *Pool, ap *applier.Applier, statuses StatusRecorder) *Assembler {
	if cfg.MaxBlockTxs <= 0 {
		cfg.MaxBlockTxs = DefaultAssemblerConfig().MaxBlockTxs
	}
	return &Assembler{cfg: cfg, ledger: ledger, pool: pool, applier: ap, statuses: statuses}
}

// TxResult is the classification of one transaction within a block.
type TxResult struct {
	ID     types.Digest
	Status applier.Status
	Reason string
}

// BlockResult describes one assembled and committed block.
type BlockResult struct {
	Height    uint64
	Version   uint64
	StateHash types.Digest

	// Results covers Applied and Failed transactions in block order.
	// Invalid transactions are counted but never enter the block.
	Results []TxResult
	Invalid int

	// FeeTotal is the native fee sum credited to the generator.
	FeeTotal int64
}

// AssembleBlock drains the pool and builds the next block. Each transaction
// is classified against the cumulative overlay, so it observes the effects
// of every Applied and Failed transaction before it. The merged diff commits
// atomically; ErrConflictingState surfaces unchanged when the ledger moved
// under the assembler, with the drained transactions returned to the pool.
func (a *Assembler) AssembleBlock() (*BlockResult, error) {
	snap, err := a.ledger.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer snap.Close()

	batch := a.pool.Drain(a.cfg.MaxBlockTxs)
	height := snap.Height() + 1

	overlay := state.NewOverlay(snap)
	blockDiff := state.NewDiff(types.Digest{})
	res := &BlockResult{Height: height}

	for _, t := range batch {
		out, err := a.applier.Classify(t, overlay)
		if err != nil {
			a.requeue(batch)
			return nil, fmt.Errorf("classify %s: %w", t.ID.String(), err)
		}
		if out.Status == applier.StatusInvalid {
			res.Invalid++
			continue
		}
		if err := overlay.ApplyDiff(out.Diff); err != nil {
			a.requeue(batch)
			return nil, fmt.Errorf("overlay %s: %w", t.ID.String(), err)
		}
		blockDiff.Merge(out.Diff)
		tr := TxResult{ID: t.ID, Status: out.Status}
		if out.Reason != nil {
			tr.Reason = out.Reason.Error()
		}
		res.Results = append(res.Results, tr)
	}

	res.FeeTotal = blockDiff.Fee
	if res.FeeTotal > 0 && !a.cfg.Generator.IsZero() {
		blockDiff.AddBalance(a.cfg.Generator, types.AssetID{}, res.FeeTotal)
	}

	commit, err := a.ledger.CommitDiff(blockDiff, snap)
	if errors.Is(err, state.ErrConflictingState) {
		a.requeue(batch)
		return nil, err
	}
	if err != nil {
		a.requeue(batch)
		return nil, fmt.Errorf("commit block %d: %w", height, err)
	}
	if err := a.ledger.SetHeight(height); err != nil {
		return nil, fmt.Errorf("set height %d: %w", height, err)
	}

	res.Version = commit.Version
	res.StateHash = commit.StateHash

	if a.statuses != nil {
		for _, tr := range res.Results {
			if err := a.statuses.Record(tr.ID, tr.Status, tr.Reason, height); err != nil {
				return nil, fmt.Errorf("record status %s: %w", tr.ID.String(), err)
			}
		}
	}
	return res, nil
}

// requeue puts a drained batch back through the priority queue, preserving
// its order for the next attempt.
func (a *Assembler) requeue(batch []*tx.Transaction) {
	a.pool.OnMicroblockDiscarded(batch)
}
