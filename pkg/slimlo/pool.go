package slimlo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/slimlo/internal/errcode"
	"github.com/ocx/slimlo/internal/supervisor"
)

// ErrDisposed is the panic value used when a Pool is used after Dispose.
// Per the error-handling design, use-after-dispose is a programmer bug,
// not a reportable conversion failure, so it panics rather than returning
// a Result or an error.
var ErrDisposed = errors.New("slimlo: pool is disposed")

// workerSlot holds at most one live Supervisor, guarded by mu. mu is the
// sole serialization point for that Supervisor's lifecycle and in-flight
// conversion; Pool never touches sup without holding it.
type workerSlot struct {
	index    int
	mu       sync.Mutex
	sup      *supervisor.Supervisor
	lastUsed time.Time
}

// Pool owns N worker slots, dispatching conversions to them round-robin
// with crash recovery and bounded-lifetime recycling.
type Pool struct {
	cfg   PoolConfig
	slots []*workerSlot
	sem   chan struct{}

	counter  uint64
	disposed atomic.Bool

	engineVersion atomic.Value // string
	crashCount    atomic.Int64

	stopMaintenance chan struct{}
	maintenanceDone chan struct{}

	// newSupervisor is overridable by tests within this module to inject an
	// in-process fake worker instead of execing a real binary.
	newSupervisor func(supervisor.Config) *supervisor.Supervisor
}

// NewPool validates cfg and constructs a Pool with N idle slots; no worker
// children are spawned until the first Execute/ExecuteBuffer or an explicit
// WarmUp. Configuration errors are returned synchronously, never panicked.
func NewPool(cfg PoolConfig) (*Pool, error) {
	cfg = cfg.withDefaults()
	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("slimlo: max workers must be >= 1, got %d", cfg.MaxWorkers)
	}
	if cfg.WorkerPath == "" {
		return nil, errors.New("slimlo: worker path must be set")
	}
	if _, err := os.Stat(cfg.WorkerPath); err != nil {
		return nil, fmt.Errorf("slimlo: worker binary not found: %w", err)
	}

	slots := make([]*workerSlot, cfg.MaxWorkers)
	for i := range slots {
		slots[i] = &workerSlot{index: i}
	}

	p := &Pool{
		cfg:           cfg,
		slots:         slots,
		sem:           make(chan struct{}, cfg.MaxWorkers),
		newSupervisor: supervisor.New,
	}

	if cfg.MaintenanceInterval > 0 {
		p.stopMaintenance = make(chan struct{})
		p.maintenanceDone = make(chan struct{})
		go p.maintenanceLoop()
	}
	return p, nil
}

func (p *Pool) supervisorConfig() supervisor.Config {
	return supervisor.Config{
		WorkerPath:        p.cfg.WorkerPath,
		EngineDir:         p.cfg.EngineDir,
		ResourcePath:      p.cfg.ResourcePath,
		FontDirs:          p.cfg.FontDirs,
		StartTimeout:      p.cfg.StartTimeout,
		ConversionTimeout: p.cfg.ConversionTimeout,
		DisposeGrace:      p.cfg.DisposeGrace,
		Logger:            p.cfg.Logger,
	}
}

// Execute converts the file at input to output, dispatching to one of the
// pool's workers.
func (p *Pool) Execute(ctx context.Context, input, output string, format Format, opts *Options) (*Result, error) {
	p.checkNotDisposed()
	if format != FormatDOCX {
		return &Result{Success: false, ErrorCode: errcode.InvalidFormat, ErrorMessage: fmt.Sprintf("unsupported format %q: only docx is accepted", format)}, nil
	}

	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	slot := p.slots[p.nextSlotIndex()]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if res := p.ensureAlive(ctx, slot); res != nil {
		return res, nil
	}

	result, err := slot.sup.Convert(ctx, input, output, format, opts)
	slot.lastUsed = time.Now()
	p.afterConversion(ctx, slot, result)
	return result, err
}

// ExecuteBuffer converts docBytes in-memory, returning the PDF bytes
// inline in the result on success.
func (p *Pool) ExecuteBuffer(ctx context.Context, docBytes []byte, format Format, opts *Options) (*Result, error) {
	p.checkNotDisposed()
	if format != FormatDOCX {
		return &Result{Success: false, ErrorCode: errcode.InvalidFormat, ErrorMessage: fmt.Sprintf("unsupported format %q: only docx is accepted", format)}, nil
	}

	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	slot := p.slots[p.nextSlotIndex()]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if res := p.ensureAlive(ctx, slot); res != nil {
		return res, nil
	}

	result, err := slot.sup.ConvertBuffer(ctx, docBytes, format, opts)
	slot.lastUsed = time.Now()
	p.afterConversion(ctx, slot, result)
	return result, err
}

// WarmUp eagerly starts every slot's worker, rather than waiting for the
// first conversion to trigger a lazy start.
func (p *Pool) WarmUp(ctx context.Context) error {
	p.checkNotDisposed()

	var errs []error
	for _, slot := range p.slots {
		slot.mu.Lock()
		if res := p.ensureAlive(ctx, slot); res != nil {
			errs = append(errs, fmt.Errorf("slot %d: %s", slot.index, res.ErrorMessage))
		}
		slot.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Dispose tears down every slot's worker (graceful-then-forceful) and
// marks the pool unusable. Idempotent; safe to call more than once.
func (p *Pool) Dispose(ctx context.Context) {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	if p.stopMaintenance != nil {
		close(p.stopMaintenance)
		<-p.maintenanceDone
	}

	var wg sync.WaitGroup
	for _, slot := range p.slots {
		wg.Add(1)
		go func(s *workerSlot) {
			defer wg.Done()
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.sup != nil {
				s.sup.Dispose(ctx)
				s.sup = nil
			}
		}(slot)
	}
	wg.Wait()
}

func (p *Pool) checkNotDisposed() {
	if p.disposed.Load() {
		panic(ErrDisposed)
	}
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() { <-p.sem }

func (p *Pool) nextSlotIndex() int {
	n := atomic.AddUint64(&p.counter, 1)
	return int(n % uint64(len(p.slots)))
}

// ensureAlive returns a non-nil failure Result if the slot's Supervisor
// could not be (re)started; the caller must hold slot.mu.
func (p *Pool) ensureAlive(ctx context.Context, slot *workerSlot) *Result {
	if slot.sup != nil && slot.sup.IsAlive() && slot.sup.Initialized() {
		return nil
	}
	if slot.sup != nil {
		slot.sup.Dispose(ctx)
		slot.sup = nil
	}

	sup := p.newSupervisor(p.supervisorConfig())
	if err := sup.Start(ctx); err != nil {
		return &Result{Success: false, ErrorCode: errcode.InitFailed, ErrorMessage: err.Error()}
	}
	slot.sup = sup
	if v := sup.EngineVersion(); v != "" {
		p.engineVersion.Store(v)
	}
	return nil
}

// afterConversion applies the recycle-after-K and crash-detection rules;
// the caller must hold slot.mu.
func (p *Pool) afterConversion(ctx context.Context, slot *workerSlot, result *Result) {
	if slot.sup == nil {
		return
	}

	dead := !slot.sup.IsAlive()
	if dead {
		p.crashCount.Add(1)
	}
	recycle := result != nil && p.cfg.RecycleAfter > 0 && slot.sup.ConversionCount() >= p.cfg.RecycleAfter

	if dead || recycle {
		slot.sup.Dispose(ctx)
		slot.sup = nil
	}
}

func (p *Pool) maintenanceLoop() {
	defer close(p.maintenanceDone)
	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopMaintenance:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

// sweepIdle recycles workers that have sat idle past IdleRecycle. It uses
// TryLock so it never blocks behind an in-flight conversion.
func (p *Pool) sweepIdle() {
	if p.cfg.IdleRecycle <= 0 {
		return
	}
	for _, slot := range p.slots {
		if !slot.mu.TryLock() {
			continue
		}
		if slot.sup != nil && time.Since(slot.lastUsed) > p.cfg.IdleRecycle {
			slot.sup.Dispose(context.Background())
			slot.sup = nil
		}
		slot.mu.Unlock()
	}
}
