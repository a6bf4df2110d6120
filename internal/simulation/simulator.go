// Package simulation builds environment descriptions for an external test
// harness: mock systems, generated data, chaos events, and success criteria.
// Nothing here executes a workflow.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/adaptflow/internal/logging"
	"github.com/rendis/adaptflow/internal/metrics"
	"github.com/rendis/adaptflow/internal/randsrc"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/schema"
)

// Simulator builds environments and retains them up to a capacity and TTL.
type Simulator struct {
	profile tuning.SimulationProfile
	src     randsrc.Source
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	envs  map[string]*schema.SimulationEnvironment
	order []string // insertion order, oldest first

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Simulator. A nil src uses the process-global generator.
func New(profile tuning.SimulationProfile, src randsrc.Source, m *metrics.Metrics, logger *slog.Logger) *Simulator {
	if src == nil {
		src = randsrc.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		profile: profile,
		src:     src,
		now:     time.Now,
		metrics: m,
		logger:  logger,
		envs:    make(map[string]*schema.SimulationEnvironment),
	}
}

// Build assembles and retains a new environment. An empty scenario is
// "standard". The plan is copied, not referenced.
func (s *Simulator) Build(ctx context.Context, workflowID string, variant schema.VariantType, plan []schema.Step, scenario string) (schema.SimulationEnvironment, error) {
	scenario = strings.TrimSpace(scenario)
	if scenario == "" {
		scenario = tuning.ScenarioStandard
	}
	if !variant.Valid() {
		return schema.SimulationEnvironment{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown variant %q", variant).
			WithWorkflow(workflowID).WithField("variant")
	}

	now := s.now().UTC()
	env := &schema.SimulationEnvironment{
		ID:                uuid.New().String(),
		WorkflowID:        workflowID,
		Scenario:          scenario,
		Variant:           variant,
		Plan:              clonePlan(plan),
		VirtualSystems:    append([]schema.VirtualSystem(nil), s.profile.VirtualSystems...),
		MockData:          s.mockData(now),
		ChaosEvents:       append([]schema.ChaosEvent(nil), s.profile.ChaosEvents...),
		SuccessCriteria:   s.profile.SuccessCriteria,
		ParallelScenarios: cloneScenarios(s.profile.ParallelScenarios),
		CreatedAt:         now,
	}

	evicted := s.insert(env)

	ctx = logging.WithSimID(logging.WithWorkflowID(ctx, workflowID), env.ID)
	s.logger.InfoContext(ctx, "simulation environment built", "scenario", scenario, "variant", variant, "evicted", evicted)
	s.metrics.RecordSimulations("built", 1)
	s.metrics.RecordSimulations("evicted", evicted)

	return cloneEnv(env), nil
}

func (s *Simulator) mockData(now time.Time) schema.MockData {
	p := s.profile
	data := schema.MockData{
		Customers:    make([]schema.MockCustomer, p.Customers),
		Transactions: make([]schema.MockTransaction, p.Transactions),
	}
	for i := range data.Customers {
		data.Customers[i] = schema.MockCustomer{
			ID:    i,
			Name:  fmt.Sprintf("Customer %d", i),
			Email: fmt.Sprintf("customer%d@example.com", i),
		}
	}
	for i := range data.Transactions {
		data.Transactions[i] = schema.MockTransaction{
			ID:        i,
			Amount:    randsrc.Uniform(s.src, p.AmountMin, p.AmountMax),
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	data.SystemMetrics = schema.SystemMetrics{
		CPUUsage:       randsrc.Uniform(s.src, 10, 90),
		MemoryUsage:    randsrc.Uniform(s.src, 30, 80),
		NetworkLatency: randsrc.Uniform(s.src, 50, 200),
	}
	return data
}

// insert stores env and evicts the oldest entries beyond capacity.
func (s *Simulator) insert(env *schema.SimulationEnvironment) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envs[env.ID] = env
	s.order = append(s.order, env.ID)

	evicted := 0
	for limit := s.profile.MaxEnvironments; limit > 0 && len(s.envs) > limit; {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.envs[oldest]; ok {
			delete(s.envs, oldest)
			evicted++
		}
	}
	return evicted
}

// Get returns a retained environment. Expired environments are NOT_FOUND
// even before the janitor removes them.
func (s *Simulator) Get(simID string) (schema.SimulationEnvironment, error) {
	s.mu.RLock()
	env, ok := s.envs[simID]
	s.mu.RUnlock()
	if !ok || s.expired(env, s.now()) {
		return schema.SimulationEnvironment{}, schema.NewErrorf(schema.ErrCodeNotFound, "simulation %q not found", simID)
	}
	return cloneEnv(env), nil
}

// ListFor returns the workflow's live environments, oldest first.
func (s *Simulator) ListFor(workflowID string) []schema.SimulationEnvironment {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schema.SimulationEnvironment
	for _, id := range s.order {
		env, ok := s.envs[id]
		if !ok || env.WorkflowID != workflowID || s.expired(env, now) {
			continue
		}
		out = append(out, cloneEnv(env))
	}
	return out
}

// ForgetWorkflow drops every environment of the workflow and returns how many were removed.
func (s *Simulator) ForgetWorkflow(workflowID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(func(env *schema.SimulationEnvironment) bool { return env.WorkflowID == workflowID })
}

// Sweep removes expired environments and returns how many were removed.
func (s *Simulator) Sweep() int {
	now := s.now()
	s.mu.Lock()
	n := s.removeLocked(func(env *schema.SimulationEnvironment) bool { return s.expired(env, now) })
	s.mu.Unlock()
	s.metrics.RecordSimulations("evicted", n)
	return n
}

// Len returns the number of retained environments, expired or not.
func (s *Simulator) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.envs)
}

func (s *Simulator) removeLocked(match func(*schema.SimulationEnvironment) bool) int {
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		env, ok := s.envs[id]
		if !ok {
			continue
		}
		if match(env) {
			delete(s.envs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

func (s *Simulator) expired(env *schema.SimulationEnvironment, now time.Time) bool {
	ttl := s.profile.TTL.Std()
	return ttl > 0 && now.Sub(env.CreatedAt) >= ttl
}

// Start launches the janitor loop that sweeps expired environments every
// JanitorInterval.
func (s *Simulator) Start(ctx context.Context) error {
	interval := s.profile.JanitorInterval.Std()
	if interval <= 0 {
		return fmt.Errorf("janitor interval must be positive, got %s", interval)
	}

	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.done != nil {
		return fmt.Errorf("simulation janitor already started")
	}

	loopCtx, cancel := context.WithCancel(logging.WithTask(ctx, "simulation.janitor"))
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, interval)
	s.logger.InfoContext(loopCtx, "simulation janitor started", "interval", interval)
	return nil
}

func (s *Simulator) loop(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.DebugContext(ctx, "expired simulations evicted", "count", n)
			}
		}
	}
}

// Stop cancels the janitor and waits for it to exit. Safe to call when not started.
func (s *Simulator) Stop() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func clonePlan(plan []schema.Step) []schema.Step {
	if plan == nil {
		return nil
	}
	out := make([]schema.Step, len(plan))
	for i, st := range plan {
		out[i] = st.Clone()
	}
	return out
}

func cloneScenarios(in []schema.ParallelScenario) []schema.ParallelScenario {
	out := make([]schema.ParallelScenario, len(in))
	for i, ps := range in {
		chars := make(map[string]string, len(ps.Characteristics))
		for k, v := range ps.Characteristics {
			chars[k] = v
		}
		out[i] = schema.ParallelScenario{Name: ps.Name, Characteristics: chars}
	}
	return out
}

func cloneEnv(env *schema.SimulationEnvironment) schema.SimulationEnvironment {
	out := *env
	out.Plan = clonePlan(env.Plan)
	out.VirtualSystems = append([]schema.VirtualSystem(nil), env.VirtualSystems...)
	out.MockData.Customers = append([]schema.MockCustomer(nil), env.MockData.Customers...)
	out.MockData.Transactions = append([]schema.MockTransaction(nil), env.MockData.Transactions...)
	out.ChaosEvents = append([]schema.ChaosEvent(nil), env.ChaosEvents...)
	out.ParallelScenarios = cloneScenarios(env.ParallelScenarios)
	return out
}
