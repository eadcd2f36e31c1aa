package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/groupkit-ai/groupkit/types"
)

// MagenticSource identifies messages injected by the Magentic strategy
// itself, such as regenerated plans.
const MagenticSource = "magentic"

// Ledger is the working state the Magentic strategy maintains across turns:
// the task being pursued, the facts gathered so far and the current plan.
type Ledger struct {
	Task  string
	Facts []string
	Plan  []string
}

// ProgressFunc inspects the delta since the previous selection and reports
// whether the group made progress, optionally naming the next speaker. An
// empty speaker falls back to round-robin order.
type ProgressFunc func(ctx context.Context, thread types.Thread, ledger Ledger) (progressed bool, next string, err error)

// PlannerFunc regenerates the ledger after repeated stalls. The returned
// ledger replaces the current one and its plan is injected into the
// conversation so participants see the new direction.
type PlannerFunc func(ctx context.Context, thread types.Thread, ledger Ledger) (Ledger, error)

// Magentic is a ledger-based strategy. It tracks task progress through a
// shared ledger of facts and plan steps; when the group stalls for several
// consecutive rounds the planner is invoked to regenerate the ledger and
// the new plan is broadcast to the group.
type Magentic struct {
	mu        sync.Mutex
	order     []string
	ledger    Ledger
	progress  ProgressFunc
	planner   PlannerFunc
	maxStalls int
	stalls    int
	next      int
	pending   []types.Message
}

// MagenticOption customizes a Magentic strategy.
type MagenticOption func(*Magentic)

// WithProgressFunc replaces the default progress heuristic.
func WithProgressFunc(fn ProgressFunc) MagenticOption {
	return func(m *Magentic) { m.progress = fn }
}

// WithPlannerFunc replaces the default planner.
func WithPlannerFunc(fn PlannerFunc) MagenticOption {
	return func(m *Magentic) { m.planner = fn }
}

// WithMaxStalls sets how many consecutive non-progress rounds trigger a
// replan. Values below one are ignored.
func WithMaxStalls(n int) MagenticOption {
	return func(m *Magentic) {
		if n >= 1 {
			m.maxStalls = n
		}
	}
}

// NewMagentic creates a ledger-based strategy over the given participant
// order.
func NewMagentic(order []string, task string, opts ...MagenticOption) (*Magentic, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("magentic requires at least one participant")
	}
	m := &Magentic{
		order:     append([]string(nil), order...),
		ledger:    Ledger{Task: task},
		maxStalls: 3,
	}
	m.progress = defaultProgress
	m.planner = defaultPlanner
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Ledger returns a copy of the current ledger.
func (m *Magentic) Ledger() Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.ledger
	out.Facts = append([]string(nil), m.ledger.Facts...)
	out.Plan = append([]string(nil), m.ledger.Plan...)
	return out
}

// SelectNext advances the ledger, replanning when the stall budget is
// exhausted, and picks the next speaker.
func (m *Magentic) SelectNext(ctx context.Context, thread types.Thread) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	progressed, preferred, err := m.progress(ctx, thread, m.ledger)
	if err != nil {
		return nil, fmt.Errorf("magentic progress check: %w", err)
	}
	if progressed {
		m.stalls = 0
	} else {
		m.stalls++
	}
	if m.stalls >= m.maxStalls {
		ledger, err := m.planner(ctx, thread, m.ledger)
		if err != nil {
			return nil, fmt.Errorf("magentic replan: %w", err)
		}
		m.ledger = ledger
		m.stalls = 0
		if plan := strings.Join(ledger.Plan, "\n"); plan != "" {
			m.pending = append(m.pending,
				types.NewTextMessage(MagenticSource, "updated plan:\n"+plan))
		}
	}

	if preferred != "" {
		for i, name := range m.order {
			if name == preferred {
				m.next = (i + 1) % len(m.order)
				return []string{name}, nil
			}
		}
		return nil, types.NewErrorf(types.ErrAgentNotActive,
			"magentic selected unknown participant %q", preferred)
	}
	name := m.order[m.next%len(m.order)]
	m.next++
	return []string{name}, nil
}

// DrainMessages returns plan announcements queued by replanning. It lets
// the manager broadcast the regenerated plan before the next turn.
func (m *Magentic) DrainMessages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// Reset clears progress tracking and queued announcements; the ledger task
// is kept but facts and plan are discarded.
func (m *Magentic) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = Ledger{Task: m.ledger.Task}
	m.stalls = 0
	m.next = 0
	m.pending = nil
}

// defaultProgress treats any non-empty rendered message as progress and
// leaves speaker choice to round-robin order.
func defaultProgress(_ context.Context, thread types.Thread, _ Ledger) (bool, string, error) {
	last, ok := thread.Last()
	if !ok {
		return true, "", nil
	}
	return strings.TrimSpace(last.Render()) != "", "", nil
}

// defaultPlanner folds the latest messages into the fact list and restates
// the task as a single-step plan.
func defaultPlanner(_ context.Context, thread types.Thread, ledger Ledger) (Ledger, error) {
	if last, ok := thread.Last(); ok {
		if text := strings.TrimSpace(last.Render()); text != "" {
			ledger.Facts = append(ledger.Facts, text)
		}
	}
	ledger.Plan = []string{ledger.Task}
	return ledger, nil
}
