package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groupkit-ai/groupkit/graph"
	"github.com/groupkit-ai/groupkit/internal/metrics"
	"github.com/groupkit-ai/groupkit/runtime"
	"github.com/groupkit-ai/groupkit/termination"
	"github.com/groupkit-ai/groupkit/tokenizer"
	"github.com/groupkit-ai/groupkit/types"
)

// State is the manager's control-loop state.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingStart    State = "awaiting_start"
	StateSelectingSpeaker State = "selecting_speaker"
	StateDispatching      State = "dispatching"
	StateAwaitingResponse State = "awaiting_response"
	StateTerminated       State = "terminated"
)

// UserSource is the source attributed to the seeded task message.
const UserSource = "user"

// Manager owns one group run at a time: the message thread, the active
// strategy, and the termination condition. It is the thread's single writer;
// strategies and conditions only read it.
type Manager struct {
	id          string
	groupTopic  string
	agents      map[string]types.Agent
	order       []string
	strategy    Strategy
	termination termination.Condition

	router     *runtime.Router
	containers map[string]*runtime.AgentContainer
	responses  chan runtime.Envelope
	fifo       *runtime.FIFOLock
	started    bool

	thread        types.Thread
	lastEvaluated int
	usage         types.TokenUsage
	counter       types.TokenCounter

	dispatchRetries int
	dispatchBackoff time.Duration
	responseTimeout time.Duration

	state   State
	stateMu sync.RWMutex

	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTermination sets the termination condition gating run completion.
// Without one, a run only ends by natural completion or a fatal error.
func WithTermination(cond termination.Condition) Option {
	return func(m *Manager) { m.termination = cond }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithGroupTopic overrides the generated group topic name.
func WithGroupTopic(topic string) Option {
	return func(m *Manager) { m.groupTopic = topic }
}

// WithDispatchRetry configures retry of failed turn-request publishes.
func WithDispatchRetry(retries int, backoff time.Duration) Option {
	return func(m *Manager) {
		m.dispatchRetries = retries
		m.dispatchBackoff = backoff
	}
}

// WithResponseTimeout bounds the wait for any single participant response so
// a lost participant fails the run instead of hanging it. Zero disables the
// bound; cancellation still applies.
func WithResponseTimeout(d time.Duration) Option {
	return func(m *Manager) { m.responseTimeout = d }
}

// WithTokenCounter replaces the counter used to estimate usage for messages
// that arrive without provider usage metadata. The default character-based
// estimator needs no encoding data; pass a tokenizer.Tiktoken for exact
// counts.
func WithTokenCounter(counter types.TokenCounter) Option {
	return func(m *Manager) { m.counter = counter }
}

// WithMetricsRegistry enables prometheus metrics, registered on reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.collector = metrics.NewCollector(reg, m.logger)
	}
}

// NewManager creates a manager for the given participants and strategy.
func NewManager(agents []types.Agent, strategy Strategy, opts ...Option) (*Manager, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("manager requires at least one agent")
	}
	if strategy == nil {
		return nil, fmt.Errorf("manager requires a strategy")
	}

	m := &Manager{
		agents:          make(map[string]types.Agent, len(agents)),
		strategy:        strategy,
		responses:       make(chan runtime.Envelope, 128),
		fifo:            runtime.NewFIFOLock(),
		containers:      make(map[string]*runtime.AgentContainer, len(agents)),
		counter:         tokenizer.NewEstimator(),
		dispatchRetries: 1,
		dispatchBackoff: 100 * time.Millisecond,
		state:           StateIdle,
		tracer:          otel.Tracer("groupkit/orchestration"),
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "orchestration_manager"))

	for _, a := range agents {
		if _, dup := m.agents[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate agent name: %s", a.Name())
		}
		m.agents[a.Name()] = a
		m.order = append(m.order, a.Name())
	}
	if m.groupTopic == "" {
		m.groupTopic = "group/" + uuid.New().String()
	}
	m.id = m.groupTopic + "/manager"
	m.router = runtime.NewRouter(0, m.logger)

	return m, nil
}

// State returns the current control-loop state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// Thread returns a copy of the message thread. Safe to call while a run is
// in flight.
func (m *Manager) Thread() types.Thread {
	m.lockThread()
	defer m.fifo.Release()
	return m.thread.Clone()
}

// lockThread takes the delivery lock for thread-state access outside the run
// loop. Holds are bounded by a single append, so no cancellation is offered.
func (m *Manager) lockThread() {
	_ = m.fifo.Acquire(context.Background())
}

// start wires the manager and one container per agent onto the router. It
// runs once; the fabric survives across runs until Close.
func (m *Manager) start(ctx context.Context) error {
	if m.started {
		return nil
	}
	if err := m.router.Register(ctx, m.id, m.handleEnvelope); err != nil {
		return err
	}
	if err := m.router.Subscribe(m.groupTopic, m.id); err != nil {
		return err
	}
	for _, name := range m.order {
		c := runtime.NewAgentContainer(m.agents[name], m.router, m.groupTopic, m.logger)
		if err := c.Start(ctx); err != nil {
			return err
		}
		m.containers[name] = c
	}
	m.started = true
	return nil
}

// handleEnvelope receives group-topic traffic. Only participant responses
// are forwarded to the control loop; everything else (our own broadcasts)
// is dropped here.
func (m *Manager) handleEnvelope(ctx context.Context, env runtime.Envelope) {
	if env.Kind != runtime.EnvelopeResponse || env.Sender == m.id {
		return
	}
	select {
	case m.responses <- env:
	case <-ctx.Done():
	}
}

// Run executes the task to completion and returns the final result. Fatal
// conditions return both the failed TaskResult and the error.
func (m *Manager) Run(ctx context.Context, task string) (*TaskResult, error) {
	stream, err := m.RunStream(ctx, task)
	if err != nil {
		return nil, err
	}
	var result *TaskResult
	for ev := range stream {
		if ev.Result != nil {
			result = ev.Result
		}
	}
	if result == nil {
		return nil, ctx.Err()
	}
	return result, result.Err
}

// RunStream executes the task and yields every intermediate message followed
// by exactly one final event carrying the TaskResult. The returned channel
// closes when the run ends.
func (m *Manager) RunStream(ctx context.Context, task string) (<-chan Event, error) {
	if s := m.State(); s != StateIdle {
		return nil, types.NewErrorf(types.ErrRunState,
			"run requested in state %s; call Reset after a terminated run", s)
	}
	if err := m.start(ctx); err != nil {
		return nil, err
	}
	m.setState(StateAwaitingStart)

	seed := types.NewTextMessage(UserSource, task)
	events := make(chan Event, 16)
	go m.runLoop(ctx, &seed, events)
	return events, nil
}

// runLoop drives the control loop. A non-nil seed starts a fresh run;
// a nil seed continues a restored thread.
func (m *Manager) runLoop(ctx context.Context, seed *types.Message, events chan<- Event) {
	defer close(events)
	started := time.Now()

	ctx, span := m.tracer.Start(ctx, "orchestration.run",
		trace.WithAttributes(attribute.String("group.topic", m.groupTopic)))
	defer span.End()

	finish := func(reason string, err error) {
		m.setState(StateTerminated)
		m.publishTermination(reason)
		result := &TaskResult{
			Messages:   m.thread.Clone(),
			StopReason: reason,
			Usage:      m.usage,
			Err:        err,
		}
		status := "completed"
		if err != nil {
			status = "failed"
			span.RecordError(err)
			m.logger.Error("run failed", zap.String("reason", reason), zap.Error(err))
		} else {
			m.logger.Info("run terminated",
				zap.String("reason", reason),
				zap.Int("messages", len(m.thread)),
			)
		}
		if m.collector != nil {
			m.collector.RecordRun(status, time.Since(started))
			m.collector.AddTokens(m.usage)
		}
		events <- Event{Result: result}
	}

	if seed != nil {
		// Seed the thread and broadcast the task to the group.
		if err := m.appendMessage(ctx, *seed); err != nil {
			finish("run cancelled", err)
			return
		}
		if err := m.router.Publish(ctx, runtime.Envelope{
			Topic:   m.groupTopic,
			Kind:    runtime.EnvelopeStart,
			Sender:  m.id,
			Message: *seed,
		}); err != nil {
			finish("failed to broadcast task", err)
			return
		}
		events <- Event{Message: seed}

		if stopMsg, err := m.evaluateTermination(); err != nil {
			finish("termination misuse", err)
			return
		} else if stopMsg != nil {
			finish(stopMsg.Content, nil)
			return
		}
	}

	outstanding := 0
	for {
		m.setState(StateSelectingSpeaker)
		speakers, err := m.strategy.SelectNext(ctx, m.thread)
		if err != nil {
			finish("speaker selection failed", err)
			return
		}
		if done, reason, err := m.drainStrategyMessages(ctx, events); err != nil {
			finish(reason, err)
			return
		} else if done {
			finish(reason, nil)
			return
		}
		for _, s := range speakers {
			if s == graph.StopNode {
				finish(StopReasonCompleted, nil)
				return
			}
		}

		if len(speakers) > 0 {
			m.setState(StateDispatching)
			if err := m.dispatch(ctx, speakers); err != nil {
				finish("dispatch failed", err)
				return
			}
			outstanding += len(speakers)
		}
		if outstanding == 0 {
			// Nothing runnable and nothing in flight: the strategy has
			// quiesced without a stop node.
			finish(StopReasonCompleted, nil)
			return
		}

		m.setState(StateAwaitingResponse)
		env, err := m.awaitResponse(ctx)
		if err != nil {
			finish("run cancelled", err)
			return
		}
		outstanding--

		if env.Err != "" {
			err := types.NewErrorf(types.ErrDispatch, "participant %s failed: %s", env.Sender, env.Err)
			finish("participant failed", err)
			return
		}

		if err := m.appendMessage(ctx, env.Message); err != nil {
			finish("run cancelled", err)
			return
		}
		if m.collector != nil {
			m.collector.RecordTurn(env.Message.Source)
		}
		_, turnSpan := m.tracer.Start(ctx, "orchestration.turn",
			trace.WithAttributes(
				attribute.String("turn.speaker", env.Message.Source),
				attribute.String("turn.kind", string(env.Message.Kind)),
			))
		turnSpan.End()
		msg := env.Message
		events <- Event{Message: &msg}

		if stopMsg, err := m.evaluateTermination(); err != nil {
			finish("termination misuse", err)
			return
		} else if stopMsg != nil {
			finish(stopMsg.Content, nil)
			return
		}
	}
}

// dispatch publishes a turn request to every selected speaker, retrying per
// the configured policy before giving up.
func (m *Manager) dispatch(ctx context.Context, speakers []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, speaker := range speakers {
		g.Go(func() error {
			env := runtime.Envelope{
				Topic:  runtime.ParticipantTopic(m.groupTopic, speaker),
				Kind:   runtime.EnvelopeRequest,
				Sender: m.id,
			}
			var err error
			for attempt := 0; attempt <= m.dispatchRetries; attempt++ {
				if attempt > 0 {
					if m.collector != nil {
						m.collector.RecordDispatchRetry()
					}
					select {
					case <-time.After(m.dispatchBackoff):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if err = m.router.Publish(ctx, env); err == nil {
					return nil
				}
			}
			return types.WrapError(types.ErrDispatch,
				fmt.Sprintf("request to %s failed after %d attempts", speaker, m.dispatchRetries+1), err)
		})
	}
	return g.Wait()
}

func (m *Manager) awaitResponse(ctx context.Context) (runtime.Envelope, error) {
	var timeout <-chan time.Time
	if m.responseTimeout > 0 {
		timer := time.NewTimer(m.responseTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case env := <-m.responses:
		return env, nil
	case <-timeout:
		return runtime.Envelope{}, types.NewErrorf(types.ErrDispatch,
			"no participant response within %s", m.responseTimeout)
	case <-ctx.Done():
		return runtime.Envelope{}, ctx.Err()
	}
}

// drainStrategyMessages broadcasts messages emitted by the strategy itself
// (e.g. voting results) and applies termination to them. It returns
// done=true when one of them terminated the run.
func (m *Manager) drainStrategyMessages(ctx context.Context, events chan<- Event) (bool, string, error) {
	producer, ok := m.strategy.(MessageProducer)
	if !ok {
		return false, "", nil
	}
	for _, msg := range producer.DrainMessages() {
		if err := m.appendMessage(ctx, msg); err != nil {
			return false, "run cancelled", err
		}
		if err := m.router.Publish(ctx, runtime.Envelope{
			Topic:   m.groupTopic,
			Kind:    runtime.EnvelopeResponse,
			Sender:  m.id,
			Message: msg,
		}); err != nil {
			return false, "failed to broadcast strategy message", err
		}
		event := msg
		events <- Event{Message: &event}

		stopMsg, err := m.evaluateTermination()
		if err != nil {
			return false, "termination misuse", err
		}
		if stopMsg != nil {
			return true, stopMsg.Content, nil
		}
	}
	return false, "", nil
}

// appendMessage appends to the thread under the manager's FIFO lock, so
// concurrent observers never see a torn append. Messages arriving without
// provider usage metadata get an estimated count so run totals stay honest.
func (m *Manager) appendMessage(ctx context.Context, msg types.Message) error {
	if msg.Usage.IsZero() && m.counter != nil {
		n := m.counter.CountTokens(msg.Render())
		msg.Usage = types.TokenUsage{CompletionTokens: n, TotalTokens: n}
	}
	if err := m.fifo.Acquire(ctx); err != nil {
		return err
	}
	m.thread = append(m.thread, msg)
	m.usage.Add(msg.Usage)
	m.fifo.Release()
	return nil
}

// evaluateTermination feeds the delta since the last evaluation to the
// termination condition.
func (m *Manager) evaluateTermination() (*types.Message, error) {
	if m.termination == nil {
		return nil, nil
	}
	m.lockThread()
	delta := m.thread.Since(m.lastEvaluated)
	m.lastEvaluated = len(m.thread)
	m.fifo.Release()
	if len(delta) == 0 {
		return nil, nil
	}
	return m.termination.Evaluate(delta)
}

func (m *Manager) publishTermination(reason string) {
	// Best effort: termination must never block the result.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = m.router.Publish(ctx, runtime.Envelope{
		Topic:   m.groupTopic,
		Kind:    runtime.EnvelopeTermination,
		Sender:  m.id,
		Message: types.NewStopMessage(m.id, reason),
	})
}

// Reset prepares the manager for a fresh run after termination, restoring
// the strategy's execution state and the termination condition. Re-running
// the identical task then reproduces the identical speaker order and stop
// reason.
func (m *Manager) Reset(ctx context.Context) error {
	if s := m.State(); s != StateTerminated && s != StateIdle {
		return types.NewErrorf(types.ErrRunState, "cannot reset while in state %s", s)
	}
	m.strategy.Reset()
	if m.termination != nil {
		m.termination.Reset()
	}
	m.lockThread()
	m.thread = nil
	m.lastEvaluated = 0
	m.usage = types.TokenUsage{}
	m.fifo.Release()

	// Drain any response that raced with the previous termination.
	for {
		select {
		case <-m.responses:
			continue
		default:
		}
		break
	}

	if m.started {
		if err := m.router.Publish(ctx, runtime.Envelope{
			Topic:  m.groupTopic,
			Kind:   runtime.EnvelopeReset,
			Sender: m.id,
		}); err != nil {
			return err
		}
	}
	m.setState(StateIdle)
	return nil
}

// Close tears down the fabric. The manager cannot run again afterwards.
func (m *Manager) Close() {
	m.router.Close()
}
