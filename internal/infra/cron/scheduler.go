package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/core/tenant"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
)

// ResourcePrefix prefixes the distributor key of every registered task.
const ResourcePrefix = "cron."

// Run results recorded in metrics.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultPanic = "panic"
)

// Task describes one periodic job.
type Task struct {
	Name string

	// Interval between runs. Must be positive.
	Interval time.Duration

	// InitialDelay before the first run. Zero runs immediately.
	InitialDelay time.Duration

	// DefaultTenantOnly restricts the task to the default tenant.
	DefaultTenantOnly bool

	// Run performs the work for one tenant.
	Run func(ctx context.Context, t domain.TenantIdentity) error
}

// TenantLister returns the tenants to run tasks for. It is called before
// every run so tenants added by a reload are picked up.
type TenantLister func() []domain.TenantIdentity

// Scheduler owns the task loops.
type Scheduler struct {
	tenants   TenantLister
	resources *tenant.Distributor
	metrics   *metric.Registry
	logger    logger.Logger
	overrides map[string]time.Duration

	mu      sync.Mutex
	jobs    []*job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics records run outcomes in r.
func WithMetrics(r *metric.Registry) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// WithIntervalOverride replaces both the interval and the initial delay of
// the named task. Used by tests to run tasks quickly.
func WithIntervalOverride(name string, d time.Duration) Option {
	return func(s *Scheduler) { s.overrides[name] = d }
}

// New creates a scheduler. Tasks start when Start is called.
func New(tenants TenantLister, resources *tenant.Distributor, opts ...Option) *Scheduler {
	s := &Scheduler{
		tenants:   tenants,
		resources: resources,
		logger:    logger.Default(),
		overrides: make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Register adds a task. Registering a name twice keeps the first task.
// Tasks registered after Start begin immediately.
func (s *Scheduler) Register(task Task) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("cron: task needs a name and a run function")
	}
	if d, ok := s.overrides[task.Name]; ok {
		task.Interval = d
		task.InitialDelay = d
	}
	if task.Interval <= 0 {
		return fmt.Errorf("cron: task %s: interval must be positive", task.Name)
	}

	created := false
	j, err := tenant.Resource(s.resources, domain.DefaultTenant(), ResourcePrefix+task.Name, func() (*job, error) {
		created = true
		return &job{task: task, sched: s, done: make(chan struct{})}, nil
	})
	if err != nil || !created {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	if s.started {
		j.start(s.ctx)
	}
	return nil
}

// Start launches every registered task.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, j := range s.jobs {
		j.start(s.ctx)
	}
	s.logger.Info("cron scheduler started", "tasks", len(s.jobs))
}

// Stop cancels all loops and waits for in-flight runs, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		if err := j.wait(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("cron scheduler stopped")
	return nil
}

// RunNow runs the named task once for every applicable tenant and blocks
// until it finishes.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	v, ok := s.resources.Get(domain.DefaultTenant(), ResourcePrefix+name)
	if !ok {
		return fmt.Errorf("cron: unknown task %s", name)
	}
	v.(*job).runAll(ctx)
	return nil
}

type job struct {
	task  Task
	sched *Scheduler

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func (j *job) start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	ctx, j.cancel = context.WithCancel(ctx)
	go j.loop(ctx)
}

func (j *job) loop(ctx context.Context) {
	defer close(j.done)

	timer := time.NewTimer(j.task.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			j.runAll(ctx)
			timer.Reset(j.task.Interval)
		}
	}
}

func (j *job) wait(ctx context.Context) error {
	j.mu.Lock()
	started := j.started
	j.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements io.Closer so the distributor can stop the job.
func (j *job) Close() error {
	j.mu.Lock()
	started, cancel := j.started, j.cancel
	j.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-j.done
	return nil
}

func (j *job) runAll(ctx context.Context) {
	targets := []domain.TenantIdentity{domain.DefaultTenant()}
	if !j.task.DefaultTenantOnly && j.sched.tenants != nil {
		targets = j.sched.tenants()
	}
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		j.runOne(ctx, t)
	}
}

func (j *job) runOne(ctx context.Context, t domain.TenantIdentity) {
	log := j.sched.logger.With("task", j.task.Name, "tenant", t.String())
	start := time.Now()
	result := ResultOK

	defer func() {
		if r := recover(); r != nil {
			result = ResultPanic
			log.Error("cron task panicked", "panic", r)
		}
		j.sched.metrics.CronRun(j.task.Name, result)
	}()

	if err := j.task.Run(ctx, t); err != nil {
		result = ResultError
		log.Error("cron task failed", "error", err, "elapsed", time.Since(start))
		return
	}
	log.Debug("cron task completed", "elapsed", time.Since(start))
}
