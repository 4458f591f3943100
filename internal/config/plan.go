package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPlan is wrapped by every plan validation failure.
var ErrInvalidPlan = errors.New("invalid plan")

// LoadPlan reads a plan file, fills in defaults from cfg and validates it.
func LoadPlan(path string, cfg HarnessConfig) (PlanDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanDefinition{}, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	plan, err := ParsePlan(data)
	if err != nil {
		return PlanDefinition{}, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	plan = ApplyPlanDefaults(plan, cfg)
	if err := ValidatePlan(plan); err != nil {
		return PlanDefinition{}, err
	}
	return plan, nil
}

// ParsePlan decodes a plan document. Unknown fields are rejected so typos in
// stage definitions surface early.
func ParsePlan(data []byte) (PlanDefinition, error) {
	var plan PlanDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return PlanDefinition{}, err
	}
	return plan, nil
}

// ApplyPlanDefaults fills readiness timeouts, probe intervals and entry points
// that the plan leaves unset.
func ApplyPlanDefaults(plan PlanDefinition, cfg HarnessConfig) PlanDefinition {
	timeout := cfg.Orchestrator.DefaultReadinessTimeout
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}

	stages := make([]StageDefinition, len(plan.Stages))
	for i, stage := range plan.Stages {
		if stage.ReadinessTimeout <= 0 {
			stage.ReadinessTimeout = timeout
		}
		if stage.Process.EntryPoint == "" && len(stage.Process.Command) == 0 {
			stage.Process.EntryPoint = DefaultEntryPoint(stage.Process.Kind)
		}
		if stage.Probe != nil && stage.Probe.Interval <= 0 {
			probe := *stage.Probe
			probe.Interval = DefaultProbeInterval
			stage.Probe = &probe
		}
		stages[i] = stage
	}
	plan.Stages = stages
	return plan
}

// ValidatePlan checks that every stage can be launched and verified.
func ValidatePlan(plan PlanDefinition) error {
	if len(plan.Stages) == 0 {
		return fmt.Errorf("%w: plan %q has no stages", ErrInvalidPlan, plan.Name)
	}

	seen := make(map[string]bool, len(plan.Stages))
	for i, stage := range plan.Stages {
		if stage.Name == "" {
			return fmt.Errorf("%w: stage %d has no name", ErrInvalidPlan, i)
		}
		if seen[stage.Name] {
			return fmt.Errorf("%w: duplicate stage name %q", ErrInvalidPlan, stage.Name)
		}
		seen[stage.Name] = true

		if stage.Process.EntryPoint == "" && len(stage.Process.Command) == 0 {
			return fmt.Errorf("%w: stage %q: process needs a known kind, an entryPoint or a command", ErrInvalidPlan, stage.Name)
		}
		if stage.Process.EntryPoint != "" && len(stage.Process.Command) > 0 {
			return fmt.Errorf("%w: stage %q: entryPoint and command are mutually exclusive", ErrInvalidPlan, stage.Name)
		}
		if stage.ReadinessTimeout < 0 || stage.Settle < 0 {
			return fmt.Errorf("%w: stage %q: durations must not be negative", ErrInvalidPlan, stage.Name)
		}

		if stage.Probe != nil {
			if err := validateCommandSource(stage.Probe.Command, stage.Probe.Line); err != nil {
				return fmt.Errorf("%w: stage %q probe: %v", ErrInvalidPlan, stage.Name, err)
			}
		}

		for j, v := range stage.Verify {
			if err := validateCommandSource(v.Command, v.Line); err != nil {
				return fmt.Errorf("%w: stage %q verification %d: %v", ErrInvalidPlan, stage.Name, j, err)
			}
			if v.Expect != nil && v.Expect.MinLines < 0 {
				return fmt.Errorf("%w: stage %q verification %d: minLines must not be negative", ErrInvalidPlan, stage.Name, j)
			}
		}

		for j, r := range stage.Requests {
			if r.URL == "" {
				return fmt.Errorf("%w: stage %q request %d has no url", ErrInvalidPlan, stage.Name, j)
			}
		}
	}

	return nil
}

func validateCommandSource(tokens []string, line string) error {
	hasTokens := len(tokens) > 0
	hasLine := strings.TrimSpace(line) != ""
	switch {
	case hasTokens && hasLine:
		return fmt.Errorf("command and line are mutually exclusive")
	case !hasTokens && !hasLine:
		return fmt.Errorf("command or line is required")
	}
	return nil
}
