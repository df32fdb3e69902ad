// Package utxpool holds candidate transactions waiting for a block and
// assembles blocks out of them.
//
// Two queues feed the assembler. The general queue collects freshly submitted
// transactions in arrival order. The priority queue collects transactions
// from discarded micro-blocks; when a chain reorganization throws away
// provisionally applied transactions, they re-enter here and are re-validated
// before anything from the general queue, in their original relative order.
package utxpool

import (
	"errors"
	"sync"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

var (
	// ErrPoolFull is returned when the pool is at capacity.
	ErrPoolFull = errors.New("transaction pool is full")

	// ErrDuplicate is returned when the transaction is already pooled.
	ErrDuplicate = errors.New("transaction already pooled")
)

// Config parameterizes a Pool.
type Config struct {
	// Capacity bounds the total number of pooled transactions across both
	// queues.
	Capacity int
}

// DefaultConfig returns the production pool configuration.
func DefaultConfig() Config {
	return Config{Capacity: 100_000}
}

// Pool is the unconfirmed transaction pool. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	general  []*tx.Transaction
	priority []*tx.Transaction
	known    map[types.Digest]bool
	capacity int
}

// New creates an empty pool.
func New(cfg Config) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &Pool{
		known:    make(map[types.Digest]bool),
		capacity: cfg.Capacity,
	}
}

// Add queues a freshly submitted transaction.
func (p *Pool) Add(t *tx.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.known[t.ID] {
		return ErrDuplicate
	}
	if len(p.general)+len(p.priority) >= p.capacity {
		return ErrPoolFull
	}
	p.general = append(p.general, t)
	p.known[t.ID] = true
	return nil
}

// OnMicroblockDiscarded returns the transactions of a discarded micro-block
// to the pool. They keep their original relative order and jump ahead of the
// entire general queue; a transaction meanwhile resubmitted to the general
// queue is pulled out of it so it still re-validates first. The capacity
// check is deliberately absent: transactions that were already provisionally
// applied must not be lost to a full pool.
func (p *Pool) OnMicroblockDiscarded(txs []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inPriority := make(map[types.Digest]bool, len(p.priority))
	for _, t := range p.priority {
		inPriority[t.ID] = true
	}
	for _, t := range txs {
		if inPriority[t.ID] {
			continue
		}
		if p.known[t.ID] {
			p.removeGeneral(t.ID)
		}
		p.priority = append(p.priority, t)
		inPriority[t.ID] = true
		p.known[t.ID] = true
	}
}

func (p *Pool) removeGeneral(id types.Digest) {
	for i, t := range p.general {
		if t.ID == id {
			p.general = append(p.general[:i], p.general[i+1:]...)
			return
		}
	}
}

// Drain removes and returns up to max transactions, priority queue first.
// A general transaction is never returned while a priority transaction
// remains.
func (p *Pool) Drain(max int) []*tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if max <= 0 {
		return nil
	}
	out := make([]*tx.Transaction, 0, max)

	n := len(p.priority)
	if n > max {
		n = max
	}
	out = append(out, p.priority[:n]...)
	p.priority = p.priority[n:]

	if rest := max - len(out); rest > 0 {
		n = len(p.general)
		if n > rest {
			n = rest
		}
		out = append(out, p.general[:n]...)
		p.general = p.general[n:]
	}

	for _, t := range out {
		delete(p.known, t.ID)
	}
	return out
}

// Len is the total number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.general) + len(p.priority)
}

// PriorityLen is the number of transactions awaiting re-validation.
func (p *Pool) PriorityLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.priority)
}
