// Package memory is an in-process Ledger Store used by tests and local runs.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/wattsup/nummus/internal/domain"
)

// ErrReadOnly is returned by writes attempted inside WithinSnapshot
var ErrReadOnly = errors.New("memory store: write inside read-only snapshot")

type table int

const (
	tableAccounts table = iota
	tableAssets
	tableTransactions
	tableSplits
	tableValuations
	tableCorporateSplits
)

type valuationKey struct {
	assetID int64
	date    domain.Ordinal
}

type state struct {
	seq map[table]int64

	accounts        map[int64]domain.Account
	assets          map[int64]domain.Asset
	transactions    map[int64]domain.Transaction // Splits field left empty
	splits          map[int64]domain.Split
	txSplits        map[int64][]int64 // transaction ID -> split IDs in split order
	valuations      map[int64]domain.Valuation
	valuationIndex  map[valuationKey]int64
	corporateSplits map[int64]domain.CorporateSplit
}

func newState() *state {
	return &state{
		seq:             make(map[table]int64),
		accounts:        make(map[int64]domain.Account),
		assets:          make(map[int64]domain.Asset),
		transactions:    make(map[int64]domain.Transaction),
		splits:          make(map[int64]domain.Split),
		txSplits:        make(map[int64][]int64),
		valuations:      make(map[int64]domain.Valuation),
		valuationIndex:  make(map[valuationKey]int64),
		corporateSplits: make(map[int64]domain.CorporateSplit),
	}
}

// clone copies every map. Stored values are never mutated in place, so a
// shallow copy is a full snapshot.
func (st *state) clone() *state {
	return &state{
		seq:             maps.Clone(st.seq),
		accounts:        maps.Clone(st.accounts),
		assets:          maps.Clone(st.assets),
		transactions:    maps.Clone(st.transactions),
		splits:          maps.Clone(st.splits),
		txSplits:        maps.Clone(st.txSplits),
		valuations:      maps.Clone(st.valuations),
		valuationIndex:  maps.Clone(st.valuationIndex),
		corporateSplits: maps.Clone(st.corporateSplits),
	}
}

func (st *state) next(t table) int64 {
	st.seq[t]++
	return st.seq[t]
}

// Store holds the whole ledger behind one RWMutex and implements domain.Transactor.
type Store struct {
	mu   sync.RWMutex
	data *state
}

// New creates an empty Store
func New() *Store {
	return &Store{data: newState()}
}

type mode int

const (
	modeNone mode = iota
	modeSnapshot
	modeTransaction
)

type ctxKey struct{}

func modeFrom(ctx context.Context) mode {
	m, _ := ctx.Value(ctxKey{}).(mode)
	return m
}

// WithinTransaction runs fn holding the write lock. On error every change made
// by fn is discarded. Nested calls join the outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	switch modeFrom(ctx) {
	case modeTransaction:
		return fn(ctx)
	case modeSnapshot:
		return ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.data.clone()
	if err := fn(context.WithValue(ctx, ctxKey{}, modeTransaction)); err != nil {
		s.data = backup
		return err
	}
	return nil
}

// WithinSnapshot runs fn holding the read lock, so no write can interleave.
func (s *Store) WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if modeFrom(ctx) != modeNone {
		return fn(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(context.WithValue(ctx, ctxKey{}, modeSnapshot))
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	return s.WithinSnapshot(ctx, func(context.Context) error {
		return fn(s.data)
	})
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.WithinTransaction(ctx, func(context.Context) error {
		return fn(s.data)
	})
}
