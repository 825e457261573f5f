package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/sessionstore/internal/merge"
	"github.com/roach88/sessionstore/internal/payload"
	"github.com/roach88/sessionstore/internal/store"
)

// Handler is the contract a host request lifecycle drives.
type Handler interface {
	// Open starts a span and clears any snapshot left from a previous one.
	Open(ctx context.Context) error

	// Read returns the live payload bytes for id, empty when there is none.
	// The first Read of a span captures the initial snapshot. With exclusive
	// set the write lock is taken now and held until the span ends it.
	Read(ctx context.Context, id string, exclusive bool) ([]byte, error)

	// Write persists data for id, merging with concurrent changes.
	Write(ctx context.Context, id string, data []byte) bool

	// RotateID moves the session stored under oldID to newID.
	RotateID(ctx context.Context, oldID, newID string, deleteOld bool) bool

	// Destroy removes the session row for id.
	Destroy(ctx context.Context, id string) bool

	// Close releases anything still held and ends the span.
	Close() error
}

var _ Handler = (*Lifecycle)(nil)

type state int

const (
	stateUnopened state = iota
	stateOpen
	stateClosed
)

// Options configures a Lifecycle.
type Options struct {
	// Codec decodes stored bytes for merging. Defaults to payload.JSONCodec.
	Codec payload.Codec

	// Exclusive makes every Read take the write lock, whatever the caller
	// passes.
	Exclusive bool

	Logger *slog.Logger

	// Meter records write, rekey and lock counters. Defaults to a noop meter.
	Meter metric.Meter
}

// Lifecycle is the per-request session span.
//
// A Lifecycle is not safe for concurrent use; create one per request.
type Lifecycle struct {
	store     *store.Store
	codec     payload.Codec
	exclusive bool
	logger    *slog.Logger
	metrics   *instruments

	state state
	h     *store.Handle

	// Snapshot from the first Read of the span.
	captured  bool
	initialID string
	initial   payload.Map
}

// New creates a Lifecycle over st in the Unopened state.
func New(st *store.Store, opts Options) (*Lifecycle, error) {
	if st == nil {
		return nil, errors.New("new session: nil store")
	}
	if opts.Codec == nil {
		opts.Codec = payload.JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m, err := newInstruments(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	return &Lifecycle{
		store:     st,
		codec:     opts.Codec,
		exclusive: opts.Exclusive,
		logger:    opts.Logger,
		metrics:   m,
	}, nil
}

// Open implements Handler.
func (l *Lifecycle) Open(context.Context) error {
	if l.state == stateClosed {
		return ErrClosed
	}
	l.resetSnapshot()
	l.state = stateOpen
	return nil
}

// Read implements Handler.
func (l *Lifecycle) Read(ctx context.Context, id string, exclusive bool) ([]byte, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	exclusive = exclusive || l.exclusive

	h, err := l.handle(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	locked := h.InTx()

	rec, err := l.store.Fetch(ctx, h, id, exclusive)
	if err != nil {
		l.abort()
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	if exclusive && !locked {
		l.metrics.recordLock(ctx)
	}
	if !h.InTx() {
		l.release()
	}

	var data []byte
	if rec != nil {
		data = rec.Data
	}
	if !l.captured {
		l.captured = true
		l.initialID = id
		l.initial = l.decode(data)
	}
	return data, nil
}

// Write implements Handler.
//
// The write lock is taken before the existence check so that two first
// writers to the same id cannot both skip the merge.
func (l *Lifecycle) Write(ctx context.Context, id string, data []byte) bool {
	if err := l.checkOpen(); err != nil {
		l.logFailure("write", id, err)
		return false
	}

	mode, err := l.write(ctx, id, data)
	l.metrics.recordWrite(ctx, mode, err == nil)
	if err != nil {
		l.logFailure("write", id, err)
		return false
	}

	l.logger.Debug("session written", "id", id, "mode", mode, "bytes", len(data))
	return true
}

func (l *Lifecycle) write(ctx context.Context, id string, data []byte) (mode string, err error) {
	mode = modeMerge

	h, err := l.handle(ctx)
	if err != nil {
		return mode, err
	}
	defer func() {
		if err != nil {
			if rbErr := h.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
		l.release()
	}()

	if err := l.lock(ctx, h); err != nil {
		return mode, err
	}

	exists, err := l.store.Exists(ctx, h, id)
	if err != nil {
		return mode, err
	}

	if !exists {
		mode = modeInsert
		if _, err := l.store.Upsert(ctx, h, id, data); err != nil {
			return mode, err
		}
		return mode, h.Commit()
	}

	rec, err := l.store.Fetch(ctx, h, id, true)
	if err != nil {
		return mode, err
	}
	var current []byte
	if rec != nil {
		current = rec.Data
	}

	resolved := merge.Resolve(l.snapshotFor(id), l.decode(data), l.decode(current))
	encoded, err := l.codec.Encode(resolved)
	if err != nil {
		return mode, fmt.Errorf("encode: %w", err)
	}

	if _, err := l.store.Upsert(ctx, h, id, encoded); err != nil {
		return mode, err
	}
	return mode, h.Commit()
}

// RotateID implements Handler. A transaction held from an exclusive Read is
// reused and stays open for the following Write; otherwise the rekey
// commits on its own.
func (l *Lifecycle) RotateID(ctx context.Context, oldID, newID string, deleteOld bool) bool {
	if err := l.checkOpen(); err != nil {
		l.logFailure("rotate", oldID, err)
		return false
	}

	err := l.rotate(ctx, oldID, newID, deleteOld)
	l.metrics.recordRekey(ctx, err == nil)
	if err != nil {
		l.logFailure("rotate", oldID, err)
		return false
	}

	l.logger.Debug("session id rotated", "old", oldID, "new", newID, "delete_old", deleteOld)
	return true
}

func (l *Lifecycle) rotate(ctx context.Context, oldID, newID string, deleteOld bool) error {
	if oldID == "" || newID == "" {
		return errors.New("empty session id")
	}

	h, err := l.handle(ctx)
	if err != nil {
		return err
	}
	held := h.InTx()

	if err := l.store.Rekey(ctx, h, oldID, newID, deleteOld); err != nil {
		l.abort()
		return err
	}
	if !held {
		l.release()
	}

	if l.captured && l.initialID == oldID {
		l.initialID = newID
	}
	return nil
}

// Destroy implements Handler.
func (l *Lifecycle) Destroy(ctx context.Context, id string) bool {
	if err := l.checkOpen(); err != nil {
		l.logFailure("destroy", id, err)
		return false
	}

	if err := l.destroy(ctx, id); err != nil {
		l.logFailure("destroy", id, err)
		return false
	}

	l.logger.Debug("session destroyed", "id", id)
	return true
}

func (l *Lifecycle) destroy(ctx context.Context, id string) (err error) {
	h, err := l.handle(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := h.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
		l.release()
	}()

	if err := l.store.Delete(ctx, h, id); err != nil {
		return err
	}
	return h.Commit()
}

// Close implements Handler. Any transaction still held is rolled back.
func (l *Lifecycle) Close() error {
	if l.state == stateClosed {
		return nil
	}
	l.state = stateClosed
	l.resetSnapshot()

	if l.h == nil {
		return nil
	}
	err := l.h.Release()
	l.h = nil
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (l *Lifecycle) checkOpen() error {
	switch l.state {
	case stateUnopened:
		return ErrNotOpen
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// handle returns the held handle, acquiring one if needed.
func (l *Lifecycle) handle(ctx context.Context) (*store.Handle, error) {
	if l.h != nil {
		return l.h, nil
	}
	h, err := l.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	l.h = h
	return h, nil
}

// lock begins the span transaction if it is not already held.
func (l *Lifecycle) lock(ctx context.Context, h *store.Handle) error {
	if h.InTx() {
		return nil
	}
	if err := h.Begin(ctx); err != nil {
		return err
	}
	l.metrics.recordLock(ctx)
	return nil
}

// release returns the held handle to the pool.
func (l *Lifecycle) release() {
	if l.h == nil {
		return
	}
	if err := l.h.Release(); err != nil {
		l.logger.Warn("release session handle", "error", err)
	}
	l.h = nil
}

// abort rolls back whatever is held and releases the handle.
func (l *Lifecycle) abort() {
	if l.h == nil {
		return
	}
	if err := l.h.Rollback(); err != nil {
		l.logger.Warn("rollback session transaction", "error", err)
	}
	l.release()
}

// snapshotFor returns the initial snapshot if it belongs to id, else an
// empty map.
func (l *Lifecycle) snapshotFor(id string) payload.Map {
	if l.captured && l.initialID == id {
		return l.initial
	}
	return payload.Map{}
}

func (l *Lifecycle) resetSnapshot() {
	l.captured = false
	l.initialID = ""
	l.initial = nil
}

// decode applies the lenient decode policy.
func (l *Lifecycle) decode(data []byte) payload.Map {
	m, err := l.codec.Decode(data)
	if err != nil {
		l.logger.Debug("undecodable session payload treated as empty", "error", err)
		return payload.Map{}
	}
	return m
}

func (l *Lifecycle) logFailure(op, id string, err error) {
	l.logger.Error("session operation failed", "error", &WriteError{Op: op, ID: id, Err: err})
}
