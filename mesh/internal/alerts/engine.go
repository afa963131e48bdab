package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrhavens/becomingone/mesh/internal/config"
	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour

	// MeshSource is the source id of alerts raised by mesh_* rules.
	MeshSource = "mesh"
)

// Alert is one alert event.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SourceID   string     `json:"source_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

type rule struct {
	config.AlertRule
	cond Condition
}

// Engine evaluates rules and tracks firing alerts. It is safe for
// concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name + ":" + source id
	lastFire map[string]time.Time // for cooldown
	history  []*Alert             // resolved, newest last

	deliveries sync.WaitGroup
}

// New builds an Engine from cfg. A rule whose condition does not parse is
// an error. An Engine without rules is valid and never fires.
func New(cfg config.AlertsConfig) (*Engine, error) {
	rules := make([]rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		c, err := ParseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		if r.Severity == "" {
			r.Severity = "warning"
		}
		if r.Cooldown <= 0 {
			r.Cooldown = defaultCooldown
		}
		rules = append(rules, rule{AlertRule: r, cond: c})
	}
	return &Engine{
		rules:    rules,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}, nil
}

// Evaluate runs the per-node rules against snap.
func (e *Engine) Evaluate(snap types.Snapshot) {
	for _, r := range e.rules {
		if r.cond.Mesh() {
			continue
		}
		fires, v := r.cond.EvalNode(snap)
		e.apply(r, snap.NodeID, fires, v)
	}
}

// EvaluateMesh runs the mesh_* rules against the merged state.
func (e *Engine) EvaluateMesh(m types.MeshState) {
	for _, r := range e.rules {
		if !r.cond.Mesh() {
			continue
		}
		fires, v := r.cond.EvalMesh(m)
		e.apply(r, MeshSource, fires, v)
	}
}

func (e *Engine) apply(r rule, source string, fires bool, value float64) {
	key := r.Name + ":" + source
	now := e.now()

	e.mu.Lock()
	var notify *Alert
	a, firing := e.active[key]
	switch {
	case fires && !firing && now.Sub(e.lastFire[key]) > r.Cooldown:
		a = &Alert{
			ID:       uuid.NewString(),
			RuleName: r.Name,
			SourceID: source,
			Severity: r.Severity,
			Value:    value,
			Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.3f)",
				r.Severity, r.Name, source, r.Condition, value),
			FiredAt: now,
			State:   "firing",
		}
		e.active[key] = a
		e.lastFire[key] = now
		cp := *a
		notify = &cp
	case fires && firing:
		a.Value = value
	case !fires && firing:
		resolved := now
		a.State = "resolved"
		a.ResolvedAt = &resolved
		delete(e.active, key)
		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		cp := *a
		notify = &cp
	}
	e.mu.Unlock()

	if notify == nil {
		return
	}
	if notify.State == "firing" {
		slog.Warn("alerts: alert fired", "rule", r.Name, "source", source, "value", value, "severity", r.Severity)
	} else {
		slog.Info("alerts: alert resolved", "rule", r.Name, "source", source)
	}
	e.deliveries.Add(1)
	go func() {
		defer e.deliveries.Done()
		e.deliver(notify)
	}()
}

// Active returns copies of firing alerts plus alerts resolved within the
// last hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := e.now().Add(-recentWindow)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Firing returns the number of currently firing alerts.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.deliveries.Wait() }
