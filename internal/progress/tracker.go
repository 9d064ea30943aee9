package progress

import (
	"maps"
	"sync"
	"time"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// TrackerConfig is the configuration for the Tracker.
type TrackerConfig struct {
	// OnUpdate is called after every change of the view.
	OnUpdate func(model.ClientView)
	// OnTerminal is called exactly once, when the operation completes or fails.
	OnTerminal func(model.ClientView)
	// Now returns the current time.
	Now    func() time.Time
	Logger log.Logger
}

func (c *TrackerConfig) defaults() error {
	if c.OnUpdate == nil {
		c.OnUpdate = func(model.ClientView) {}
	}
	if c.OnTerminal == nil {
		c.OnTerminal = func(model.ClientView) {}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "progress.Tracker"})
	return nil
}

// Tracker owns the ClientView of a single operation. It deduplicates the delivered events,
// classifies them and fires the terminal callback once. Once terminal, the view is frozen.
type Tracker struct {
	mu         sync.Mutex
	view       model.ClientView
	seen       map[model.EventKey]struct{}
	eta        Estimator
	onUpdate   func(model.ClientView)
	onTerminal func(model.ClientView)
	now        func() time.Time
	logger     log.Logger
}

// NewTracker returns a new Tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	_ = cfg.defaults()

	return &Tracker{
		view:       model.ClientView{CurrentStage: model.StageDetecting},
		seen:       map[model.EventKey]struct{}{},
		onUpdate:   cfg.OnUpdate,
		onTerminal: cfg.OnTerminal,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

// SetOperation sets the operation the view belongs to.
func (t *Tracker) SetOperation(id string) {
	t.mu.Lock()
	t.view.OperationID = id
	t.mu.Unlock()
}

// SetLocalStage moves the view to a client side stage. Local stages are not part of the history.
func (t *Tracker) SetLocalStage(stage model.Stage, message string) {
	t.mu.Lock()
	if t.view.Terminal {
		t.mu.Unlock()
		return
	}
	t.view.CurrentStage = stage
	t.view.Message = message
	v := t.snapshot()
	t.mu.Unlock()

	t.onUpdate(v)
}

// Apply adds an event to the view. It returns false when the event was ignored, because it's a
// duplicate of an already recorded (stage, message, progress) or the view is already terminal.
func (t *Tracker) Apply(ev model.ProgressEvent) bool {
	t.mu.Lock()
	if t.view.Terminal {
		t.mu.Unlock()
		t.logger.Debugf("Ignoring event %s after terminal stage", ev.Stage)
		return false
	}

	key := ev.Key()
	if _, ok := t.seen[key]; ok {
		t.mu.Unlock()
		return false
	}
	t.seen[key] = struct{}{}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}
	t.eta.Observe(ts)

	t.view.History = append(t.view.History, ev)
	t.view.CurrentStage = ev.Stage
	t.view.Progress = ev.Progress
	t.view.Message = ev.Message
	if len(ev.Details) > 0 {
		t.view.Details = maps.Clone(ev.Details)
	}

	var terminal bool
	switch Classify(ev) {
	case OutcomeCompleted:
		terminal = t.markTerminal(false, "")
	case OutcomeFailed:
		msg := ev.Error
		if msg == "" {
			msg = ev.Message
		}
		terminal = t.markTerminal(true, msg)
	}
	v := t.snapshot()
	t.mu.Unlock()

	t.onUpdate(v)
	if terminal {
		t.onTerminal(v)
	}

	return true
}

// Complete marks the operation as completed by an explicit completion signal.
func (t *Tracker) Complete(details map[string]string) {
	t.mu.Lock()
	if !t.view.Terminal {
		if len(details) > 0 {
			t.view.Details = maps.Clone(details)
		}
		t.view.CurrentStage = model.StageCompleted
		t.view.Progress = 100
	}
	terminal := t.markTerminal(false, "")
	v := t.snapshot()
	t.mu.Unlock()

	if terminal {
		t.onUpdate(v)
		t.onTerminal(v)
	}
}

// Fail marks the operation as failed with an error text.
func (t *Tracker) Fail(errText string) {
	t.mu.Lock()
	if !t.view.Terminal {
		t.view.CurrentStage = model.StageFailed
	}
	terminal := t.markTerminal(true, errText)
	v := t.snapshot()
	t.mu.Unlock()

	if terminal {
		t.onUpdate(v)
		t.onTerminal(v)
	}
}

// View returns a snapshot of the current view.
func (t *Tracker) View() model.ClientView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Terminal returns true when the view reached a terminal state.
func (t *Tracker) Terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view.Terminal
}

// markTerminal must be called with the lock held. Returns true only the first time.
func (t *Tracker) markTerminal(failed bool, errText string) bool {
	if t.view.Terminal {
		return false
	}
	t.view.Terminal = true
	t.view.Failed = failed
	t.view.Error = errText
	return true
}

// snapshot must be called with the lock held.
func (t *Tracker) snapshot() model.ClientView {
	v := t.view
	v.History = append([]model.ProgressEvent(nil), t.view.History...)
	v.Details = maps.Clone(t.view.Details)
	v.StartedAt = t.eta.Start()

	progress := v.Progress
	if v.Terminal {
		progress = 100
	}
	v.Elapsed, v.Remaining = t.eta.Estimate(progress, t.now())

	return v
}
