// Package procedure implements the registered-procedure execution
// contract: validate params, run inside an auto-committing/aborting
// transaction, convert panics to errors, and enforce a per-call time
// budget for parallel execution.
package procedure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/txn"
	"github.com/leengari/tickdb/internal/walog"
)

// Database is the minimal surface a procedure needs from the database: the
// ability to resolve tables by name to stage a transaction against.
type Database interface {
	txn.TableProvider
}

// Fn is a registered procedure body. It receives the database, a
// transaction handle scoped to this single invocation, and raw parameter
// bytes, returning raw result bytes.
type Fn func(db Database, tx *txn.Handle, params []byte) ([]byte, error)

// ParamValidator checks raw parameter bytes against a procedure's declared
// schema before it runs, returning a non-nil error (wrapping
// dberrors.ErrBadParams) on mismatch.
type ParamValidator func(params []byte) error

// Definition is one registered procedure.
type Definition struct {
	Name     string
	Validate ParamValidator // optional
	Run      Fn
}

// Registry holds the set of procedures registered at startup.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Definition
	wal   *walog.Log
}

// NewRegistry creates an empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Definition)}
}

// SetWAL attaches wal so every call's transaction durs its staged
// operations before they publish. Without it, Call's transactions commit
// in memory only.
func (r *Registry) SetWAL(wal *walog.Log) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wal = wal
}

// Register adds a procedure definition, failing if the name is already
// registered.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.procs[def.Name]; exists {
		return fmt.Errorf("%w: %q", dberrors.ErrAlreadyRegistered, def.Name)
	}
	r.procs[def.Name] = def
	return nil
}

func (r *Registry) lookup(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.procs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", dberrors.ErrProcedureNotFound, name)
	}
	return def, nil
}

// Call runs procedure name once: validates params, opens a transaction
// scoped to the call, recovers any panic as ErrProcedurePanic (auto-aborting
// the transaction), commits on success, and aborts on any error so no
// partial state is ever published.
func (r *Registry) Call(db Database, name string, params []byte) (result []byte, err error) {
	def, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if def.Validate != nil {
		if verr := def.Validate(params); verr != nil {
			return nil, fmt.Errorf("%w: %v", dberrors.ErrBadParams, verr)
		}
	}

	r.mu.RLock()
	wal := r.wal
	r.mu.RUnlock()

	tx := txn.Begin(db, wal)
	defer tx.Close() // auto-abort if we return before Commit

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", dberrors.ErrProcedurePanic, rec)
			result = nil
		}
	}()

	out, runErr := def.Run(db, tx, params)
	if runErr != nil {
		return nil, runErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return nil, commitErr
	}
	return out, nil
}

// Request is one queued procedure invocation together with the channel
// its caller awaits the response on.
type Request struct {
	Name     string
	Params   []byte
	Response chan<- Response
}

// Response is the result delivered back to a Request's caller.
type Response struct {
	Result []byte
	Err    error
}

// RunPool drains requests across a fixed worker pool, re-checking deadline
// before each call: a worker that would start a call after deadline returns
// ErrTimeout instead of running it. Returns once requests is closed and
// drained or ctx is cancelled.
func (r *Registry) RunPool(ctx context.Context, db Database, requests <-chan Request, workers int, deadline time.Time) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req, ok := <-requests:
					if !ok {
						return
					}
					if !deadline.IsZero() && time.Now().After(deadline) {
						req.Response <- Response{Err: dberrors.ErrTimeout}
						continue
					}
					result, err := r.Call(db, req.Name, req.Params)
					req.Response <- Response{Result: result, Err: err}
				}
			}
		}()
	}
	wg.Wait()
}
