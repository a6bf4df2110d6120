package schema

import "time"

// VirtualSystem describes a mocked integration with a fixed latency/failure profile.
type VirtualSystem struct {
	Name           string  `json:"name" yaml:"name"`
	Type           string  `json:"type" yaml:"type"`
	ResponseTimeMs int     `json:"response_time_ms" yaml:"response_time_ms"`
	FailureRate    float64 `json:"failure_rate" yaml:"failure_rate"`
}

// MockCustomer is one generated customer row.
type MockCustomer struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MockTransaction is one generated transaction row.
type MockTransaction struct {
	ID        int       `json:"id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemMetrics is a generated host metrics sample.
type SystemMetrics struct {
	CPUUsage       float64 `json:"cpu_usage"`
	MemoryUsage    float64 `json:"memory_usage"`
	NetworkLatency float64 `json:"network_latency"`
}

// MockData is the deterministic-shape data set handed to the test harness.
type MockData struct {
	Customers     []MockCustomer    `json:"customers"`
	Transactions  []MockTransaction `json:"transactions"`
	SystemMetrics SystemMetrics     `json:"system_metrics"`
}

// ChaosEffect describes what a chaos event does once triggered.
type ChaosEffect struct {
	Kind  string `json:"kind" yaml:"kind"`
	Value string `json:"value" yaml:"value"`
}

// ChaosEvent is a simulated fault with a trigger probability.
type ChaosEvent struct {
	Type        string      `json:"type" yaml:"type"`
	Probability float64     `json:"probability" yaml:"probability"`
	Effect      ChaosEffect `json:"effect" yaml:"effect"`
}

// SuccessCriteria are the numeric pass thresholds for a simulation run.
type SuccessCriteria struct {
	MaxExecutionSeconds float64 `json:"max_execution_seconds" yaml:"max_execution_seconds"`
	MinSuccessRate      float64 `json:"min_success_rate" yaml:"min_success_rate"`
	MinSatisfaction     float64 `json:"min_satisfaction" yaml:"min_satisfaction"`
	MinEfficiency       float64 `json:"min_efficiency" yaml:"min_efficiency"`
	MaxRecoverySeconds  float64 `json:"max_recovery_seconds" yaml:"max_recovery_seconds"`
}

// ParallelScenario is a named alternative environment run alongside the main one.
type ParallelScenario struct {
	Name            string            `json:"name" yaml:"name"`
	Characteristics map[string]string `json:"characteristics" yaml:"characteristics"`
}

// SimulationEnvironment is the full environment description for an external
// test harness. It is never mutated after construction.
type SimulationEnvironment struct {
	ID                string             `json:"id"`
	WorkflowID        string             `json:"workflow_id"`
	Scenario          string             `json:"scenario"`
	Variant           VariantType        `json:"variant"`
	Plan              []Step             `json:"plan"`
	VirtualSystems    []VirtualSystem    `json:"virtual_systems"`
	MockData          MockData           `json:"mock_data"`
	ChaosEvents       []ChaosEvent       `json:"chaos_events"`
	SuccessCriteria   SuccessCriteria    `json:"success_criteria"`
	ParallelScenarios []ParallelScenario `json:"parallel_scenarios"`
	CreatedAt         time.Time          `json:"created_at"`
}
