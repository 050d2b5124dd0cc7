package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/leengari/tickdb/internal/dbase"
	"github.com/leengari/tickdb/internal/dberrors"
	"github.com/leengari/tickdb/internal/obslog"
	"github.com/leengari/tickdb/internal/procedure"
)

// Handler dispatches one API request against db and returns its response.
// The runtime itself only schedules; request semantics (CRUD, DDL, query
// translation) live with the caller that wires a Handler in.
type Handler func(db *dbase.Database, req Request) Response

// Runtime drives the tick loop: drain the submission queue (DDL before
// DML) within the API budget, run queued procedures within the procedure
// budget, and persist on the configured interval within the persistence
// budget.
type Runtime struct {
	db         *dbase.Database
	procedures *procedure.Registry
	handler    Handler
	observer   obslog.Observer

	apiQueue  *Queue
	procQueue chan procedure.Request

	tickRate                 int
	maxAPIRequestsPerTick    int
	persistenceIntervalTicks int
	workerCount              int

	tickCount uint64
}

// New builds a Runtime wired to db, procedures, and handler, with queue
// capacities and budgets taken from db's configuration.
func New(db *dbase.Database, procedures *procedure.Registry, handler Handler, observer obslog.Observer, workerCount int) *Runtime {
	cfg := db.Config()
	capacity := cfg.TickRate * 100
	if capacity <= 0 {
		capacity = 100
	}
	if observer == nil {
		observer = obslog.Multi(nil)
	}
	return &Runtime{
		db:                       db,
		procedures:               procedures,
		handler:                  handler,
		observer:                 observer,
		apiQueue:                 NewQueue(capacity),
		procQueue:                make(chan procedure.Request, capacity),
		tickRate:                 cfg.TickRate,
		maxAPIRequestsPerTick:    cfg.MaxAPIRequestsPerTick,
		persistenceIntervalTicks: cfg.PersistenceIntervalTicks,
		workerCount:              workerCount,
	}
}

// Submit enqueues an API request, applying backpressure.
func (r *Runtime) Submit(req Request) bool { return r.apiQueue.Submit(req) }

// SubmitProcedure enqueues a procedure invocation, applying the same
// backpressure discipline as the API queue.
func (r *Runtime) SubmitProcedure(req procedure.Request) bool {
	select {
	case r.procQueue <- req:
		return true
	default:
		return false
	}
}

// DroppedRequests returns the number of API requests dropped due to
// backpressure.
func (r *Runtime) DroppedRequests() uint64 { return r.apiQueue.Dropped() }

func (r *Runtime) tickDuration() time.Duration {
	rate := r.tickRate
	if rate <= 0 {
		rate = 20
	}
	return time.Second / time.Duration(rate)
}

// Run drives ticks until ctx is cancelled. Each tick runs the API,
// Procedure, and Persistence phases in sequence with soft budgets of
// 30/50/20% of the tick duration; if the phases finish early the tick
// sleeps out the remainder, and if they overrun the next tick starts
// immediately with no sleep.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tickStart := time.Now()
		total := r.tickDuration()
		r.tickCount++

		r.observer.OnEvent(obslog.Event{Type: obslog.EventTickStart, Tick: r.tickCount, Timestamp: tickStart})

		apiDeadline := tickStart.Add(total * 30 / 100)
		r.runAPIPhase(apiDeadline)
		r.observer.OnEvent(obslog.Event{Type: obslog.EventAPIPhase, Tick: r.tickCount, Timestamp: time.Now()})

		procDeadline := tickStart.Add(total * 80 / 100)
		r.runProcedurePhase(ctx, procDeadline)
		r.observer.OnEvent(obslog.Event{Type: obslog.EventProcedurePhase, Tick: r.tickCount, Timestamp: time.Now()})

		r.runPersistencePhase()
		r.observer.OnEvent(obslog.Event{Type: obslog.EventPersistencePhase, Tick: r.tickCount, Timestamp: time.Now()})

		r.observer.OnEvent(obslog.Event{Type: obslog.EventTickEnd, Tick: r.tickCount, Timestamp: time.Now()})

		elapsed := time.Since(tickStart)
		if remaining := total - elapsed; remaining > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(remaining):
			}
		}
		// If elapsed >= total, the tick overran: start the next tick
		// immediately, never extending or skipping one.
	}
}

// runAPIPhase drains the submission queue, DDL before DML, up to
// maxAPIRequestsPerTick requests, stopping early if the phase budget
// expires.
func (r *Runtime) runAPIPhase(deadline time.Time) {
	batch := r.apiQueue.drainAvailable(r.maxAPIRequestsPerTick)

	var ddl, dml []Request
	for _, req := range batch {
		if req.Kind == KindDDL {
			ddl = append(ddl, req)
		} else {
			dml = append(dml, req)
		}
	}

	processed := 0
	for _, req := range append(ddl, dml...) {
		if time.Now().After(deadline) {
			break
		}
		if processed >= r.maxAPIRequestsPerTick && r.maxAPIRequestsPerTick > 0 {
			break
		}
		resp := r.handler(r.db, req)
		if req.Response != nil {
			req.Response <- resp
		}
		processed++
	}
}

// runProcedurePhase drains the procedure queue, running calls sequentially
// (or across a worker pool, when workerCount > 1) within the phase budget.
func (r *Runtime) runProcedurePhase(ctx context.Context, deadline time.Time) {
	var batch []procedure.Request
	for {
		select {
		case req := <-r.procQueue:
			batch = append(batch, req)
		default:
			goto drained
		}
	}
drained:
	if len(batch) == 0 {
		return
	}

	if r.workerCount > 1 {
		reqCh := make(chan procedure.Request, len(batch))
		for _, req := range batch {
			reqCh <- req
		}
		close(reqCh)
		r.procedures.RunPool(ctx, r.db, reqCh, r.workerCount, deadline)
		return
	}

	for _, req := range batch {
		if time.Now().After(deadline) {
			req.Response <- procedure.Response{Err: dberrors.ErrTimeout}
			continue
		}
		result, err := r.procedures.Call(r.db, req.Name, req.Params)
		req.Response <- procedure.Response{Result: result, Err: err}
	}
}

// runPersistencePhase increments the internal tick counter (done in Run)
// and, when it is a multiple of persistenceIntervalTicks, flushes the schema
// file and every table's data file (tables are not tracked as dirty, so
// unchanged tables are rewritten too).
func (r *Runtime) runPersistencePhase() {
	interval := r.persistenceIntervalTicks
	if interval <= 0 {
		interval = 1
	}
	if r.tickCount%uint64(interval) != 0 {
		return
	}
	if err := r.db.Flush(); err != nil {
		slog.Error("persistence phase flush failed", "tick", r.tickCount, "error", err)
	}
}
