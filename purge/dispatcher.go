package purge

import (
	"net/http"
	"time"

	"github.com/digineo/purged/cache"
	"github.com/digineo/purged/keytpl"
	"github.com/digineo/purged/metrics"
	"github.com/digineo/purged/mirror"
	"go.uber.org/zap"
)

// State of a Request.
type State uint8

const (
	StateResolveKey State = iota
	StateDispatch
	StateAwaitCompletion
	StateRespond
)

func (s State) String() string {
	switch s {
	case StateResolveKey:
		return "resolve_key"
	case StateDispatch:
		return "dispatch"
	case StateAwaitCompletion:
		return "await_completion"
	case StateRespond:
		return "respond"
	default:
		return "unknown"
	}
}

// Location configures purging for one cache zone.
type Location struct {
	Cache Cache
	Key   *keytpl.Template

	// PurgeAll turns every request into a bulk purge.
	PurgeAll bool

	// Mirror, if set, receives exact purges (as single key invalidation)
	// and bulk or prefix purges (as flush).
	Mirror mirror.Invalidator

	Log *zap.Logger
}

// Request carries one purge through its states. It must not be shared
// between goroutines.
type Request struct {
	HTTP *http.Request

	// Captures are available to the key template as $0, $1, ...
	Captures []string

	// Log, if set, replaces the location's logger.
	Log *zap.Logger

	state    State
	key      string
	isPrefix bool
	mode     Mode
	pending  *cache.Pending
	result   Result
	started  time.Time
}

// NewRequest prepares a purge for r.
func NewRequest(r *http.Request, captures ...string) *Request {
	return &Request{HTTP: r, Captures: captures}
}

// State returns the current state.
func (req *Request) State() State { return req.state }

// Mode returns the selected purge mode. It is valid once the request has
// left StateDispatch.
func (req *Request) Mode() Mode { return req.mode }

// Purge advances req until it either finishes or has to wait for a
// background read. In the latter case, the outcome is Pending, and Purge
// must be called again once Result.Ready is closed. Calling Purge on a
// finished request returns the same result again.
//
// Bulk and prefix purges run to completion within a single call.
func (loc *Location) Purge(req *Request) Result {
	for {
		switch req.state {
		case StateResolveKey:
			req.started = time.Now()
			key, isPrefix, err := Resolve(loc.Key, req.HTTP, req.Captures)
			if err != nil {
				loc.finish(req, Result{Outcome: InternalError, Err: err})
				continue
			}
			req.key, req.isPrefix = key, isPrefix
			req.state = StateDispatch

		case StateDispatch:
			req.mode = loc.mode(req.isPrefix)
			switch req.mode {
			case BulkAll:
				loc.finish(req, all(loc.Cache, loc.logger(req)))
			case Prefix:
				want := []byte(req.key[:len(req.key)-1])
				loc.finish(req, prefix(loc.Cache, loc.logger(req), want))
			default:
				lk := loc.Cache.Open(req.key)
				if lk.Status == cache.StatusPending && lk.Pending != nil {
					req.pending = lk.Pending
					req.state = StateAwaitCompletion
					continue
				}
				loc.finish(req, exact(loc.Cache, loc.logger(req), req.key, lk))
			}

		case StateAwaitCompletion:
			select {
			case <-req.pending.Ready():
			default:
				return Result{
					Outcome: Pending,
					Mode:    req.mode,
					Key:     req.key,
					Ready:   req.pending.Ready(),
				}
			}
			lk := req.pending.Result()
			req.pending = nil
			loc.finish(req, exact(loc.Cache, loc.logger(req), req.key, lk))

		default:
			return req.result
		}
	}
}

// Wait runs req to completion, blocking while background reads are in
// flight. Waiting cannot be cancelled: once started, a purge finishes
// even if nobody is interested in its result anymore.
func (loc *Location) Wait(req *Request) Result {
	for {
		res := loc.Purge(req)
		if res.Outcome != Pending {
			return res
		}
		<-res.Ready
	}
}

func (loc *Location) mode(isPrefix bool) Mode {
	switch {
	case loc.PurgeAll:
		return BulkAll
	case isPrefix:
		return Prefix
	default:
		return Exact
	}
}

func (loc *Location) logger(req *Request) *zap.Logger {
	switch {
	case req.Log != nil:
		return req.Log
	case loc.Log != nil:
		return loc.Log
	default:
		return zap.NewNop()
	}
}

func (loc *Location) finish(req *Request, res Result) {
	res.Mode = req.mode
	res.Key = req.key
	req.result = res
	req.state = StateRespond

	mode := res.Mode.String()
	if req.key == "" {
		mode = "none" // key evaluation failed, no mode chosen
	}
	metrics.PurgeRequests.WithLabelValues(mode, res.Outcome.String()).Inc()
	metrics.PurgeDuration.WithLabelValues(mode).Observe(time.Since(req.started).Seconds())

	log := loc.logger(req)
	fields := []zap.Field{
		zap.String("key", res.Key),
		zap.String("mode", mode),
		zap.Stringer("outcome", res.Outcome),
	}
	switch res.Outcome {
	case InternalError:
		log.Error("purge failed", append(fields, zap.Error(res.Err))...)
		return
	case NotFound:
		log.Debug("nothing to purge", append(fields, zap.Bool("raced", res.Raced))...)
		return
	}

	if res.Mode != Exact {
		log.Info("purged cache tree", append(fields,
			zap.String("root", res.Path),
			zap.Int("removed", res.Removed),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))...)
	} else {
		log.Info("purged cache entry", append(fields,
			zap.String("path", res.Path),
			zap.Int64("freed", res.Freed))...)
	}
	loc.mirror(log, res)
}

func (loc *Location) mirror(log *zap.Logger, res Result) {
	if loc.Mirror == nil {
		return
	}

	var err error
	if res.Mode == Exact {
		err = loc.Mirror.Invalidate(res.Key)
	} else {
		err = loc.Mirror.Flush()
	}
	if err != nil {
		metrics.MirrorFailures.Inc()
		log.Warn("mirror invalidation failed",
			zap.String("key", res.Key),
			zap.Error(err))
	}
}
