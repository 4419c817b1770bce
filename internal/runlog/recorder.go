package runlog

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/influxdb"
)

const (
	// queueSize bounds summaries waiting to be written.
	queueSize = 256

	writeTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsSink receives one metric per run. Satisfied by *influxdb.Client.
type MetricsSink interface {
	WriteRunMetric(m influxdb.RunMetric)
}

// Publisher sends JSON to an MQTT topic. Satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// RecorderConfig configures a Recorder. Only ActorID and Repository are required.
type RecorderConfig struct {
	ActorID    string
	Repository Repository
	Metrics    MetricsSink
	Publisher  Publisher
	RunTopic   string
	Logger     Logger
}

// Recorder implements deviceset.Observer. RunFinished only queues the
// summary; a worker goroutine stores it, writes the metric, publishes it
// and notifies listeners. Failures are logged and never reach the caller.
type Recorder struct {
	cfg    RecorderConfig
	logger Logger
	queue  chan deviceset.Summary

	mu        sync.Mutex
	listeners []func(Run)
	quit      chan struct{}
	done      chan struct{}
}

// NewRecorder creates a stopped Recorder. Call Start before the first run.
func NewRecorder(cfg RecorderConfig) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan deviceset.Summary, queueSize),
	}
}

// AddListener registers fn for every stored run.
func (r *Recorder) AddListener(fn func(Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// RunFinished implements deviceset.Observer. It never blocks; when the
// queue is full the summary is dropped with a warning.
func (r *Recorder) RunFinished(s deviceset.Summary) {
	select {
	case r.queue <- s:
	default:
		r.logger.Warn("run queue full, dropping summary", "run_id", s.ID, "kind", string(s.Kind))
	}
}

// Start launches the worker. Calling Start on a running Recorder is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quit != nil {
		return
	}
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
	go r.work(r.quit, r.done)
}

// Stop writes the summaries already queued and stops the worker.
func (r *Recorder) Stop() {
	r.mu.Lock()
	quit, done := r.quit, r.done
	r.quit = nil
	r.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	<-done
}

func (r *Recorder) work(quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case s := <-r.queue:
			r.record(s)
		case <-quit:
			for {
				select {
				case s := <-r.queue:
					r.record(s)
				default:
					return
				}
			}
		}
	}
}

// record stores, measures and publishes one summary.
func (r *Recorder) record(s deviceset.Summary) {
	run := FromSummary(r.cfg.ActorID, s)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.cfg.Repository.Create(ctx, &run); err != nil {
		r.logger.Error("storing run failed", "run_id", run.ID, "error", err)
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.WriteRunMetric(influxdb.RunMetric{
			ActorID:    run.ActorID,
			Kind:       run.Kind,
			State:      run.State,
			Slots:      len(run.Slots),
			Failed:     len(run.FailedSlots),
			Duration:   s.Duration(),
			FinishedAt: run.FinishedAt,
		})
	}

	if r.cfg.Publisher != nil && r.cfg.RunTopic != "" {
		if err := r.cfg.Publisher.PublishJSON(r.cfg.RunTopic, run); err != nil {
			r.logger.Warn("publishing run failed", "run_id", run.ID, "error", err)
		}
	}

	r.mu.Lock()
	listeners := append(([]func(Run))(nil), r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(run)
	}
}

// FromSummary converts a device-set summary into a Run for actorID.
func FromSummary(actorID string, s deviceset.Summary) Run {
	slots := append([]string{}, s.Slots...)
	failed := append([]string{}, s.FailedSlots...)
	return Run{
		ID:          s.ID,
		ActorID:     actorID,
		Kind:        string(s.Kind),
		Text:        s.Text,
		Slots:       slots,
		FailedSlots: failed,
		State:       string(s.State),
		Message:     s.Message,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		DurationMS:  s.Duration().Milliseconds(),
	}
}
