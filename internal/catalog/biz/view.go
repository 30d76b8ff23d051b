package biz

import (
	"context"
	"sync"
	"time"

	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"go.uber.org/zap"
)

// Querier is the part of CatalogUseCase a View depends on
type Querier interface {
	Query(ctx context.Context, p Predicate) (*ResultSet, error)
}

// ViewState 视图当前状态
type ViewState struct {
	Predicate Predicate
	Result    *ResultSet // nil until the first successful query
	Savings   Savings
	Loading   bool
	Err       error // last failure, cleared by the next success
	Seq       uint64
}

// View 一个逻辑视图（如一个浏览器标签页），最新的请求总是胜出
//
// Apply 会取消上一次仍在进行的查询；被取代的查询结果永远不会写入视图状态。
type View struct {
	q Querier

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	state  ViewState
	used   time.Time
}

func NewView(q Querier) *View {
	return &View{q: q, used: time.Now()}
}

// Apply runs p for this view. A call overtaken by a newer Apply returns
// ErrSuperseded and leaves the state to the newer call. A failed query keeps
// the previous result visible and records the error.
func (v *View) Apply(ctx context.Context, p Predicate) (ViewState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.seq++
	seq := v.seq
	v.cancel = cancel
	v.used = time.Now()
	v.state.Predicate = p
	v.state.Loading = true
	v.state.Seq = seq
	v.mu.Unlock()

	rs, err := v.q.Query(ctx, p)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		return v.state, ErrSuperseded
	}
	v.cancel = nil
	v.state.Loading = false
	if err != nil {
		v.state.Err = err
		return v.state, err
	}
	v.state.Result = rs
	v.state.Savings = Aggregate(rs.Entries)
	v.state.Err = nil
	return v.state, nil
}

// State returns a copy of the current state
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Cancel aborts the in-flight query, if any
func (v *View) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		return time.Now()
	}
	return v.used
}

// ViewRegistry 按 view id 管理视图，空闲超时后回收
type ViewRegistry struct {
	q      Querier
	idle   time.Duration
	logger *logger.Logger
	mu     sync.Mutex
	views  map[string]*View
	now    func() time.Time
	lastGC time.Time
}

// NewViewRegistry creates a registry evicting views unused for idle; 0 means 10 minutes
func NewViewRegistry(q Querier, idle time.Duration, log *logger.Logger) *ViewRegistry {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ViewRegistry{
		q:      q,
		idle:   idle,
		logger: log.Named("views"),
		views:  make(map[string]*View),
		now:    time.Now,
	}
}

// Get returns the view for id, creating it on first use
func (r *ViewRegistry) Get(id string) *View {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked()
	v, ok := r.views[id]
	if !ok {
		v = NewView(r.q)
		r.views[id] = v
	}
	return v
}

// Len reports the number of live views
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *ViewRegistry) evictLocked() {
	now := r.now()
	if now.Sub(r.lastGC) < r.idle/4 {
		return
	}
	r.lastGC = now

	for id, v := range r.views {
		if now.Sub(v.idleSince()) > r.idle {
			v.Cancel()
			delete(r.views, id)
			r.logger.Debug("view evicted", zap.String("view_id", id))
		}
	}
}
