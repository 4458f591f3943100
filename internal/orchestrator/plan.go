package orchestrator

import (
	"stagectl/internal/command"
	"stagectl/internal/config"
	"stagectl/internal/launcher"
	"stagectl/internal/transport"
)

// StagesFromPlan converts a validated plan into stages. Plan defaults are
// expected to have been applied already.
func StagesFromPlan(plan config.PlanDefinition, cfg config.HarnessConfig) []Stage {
	stages := make([]Stage, 0, len(plan.Stages))
	for _, def := range plan.Stages {
		stage := Stage{
			Name:             def.Name,
			Process:          launcher.SpecFromDefinition(def.Name, def.Process, cfg.Launcher),
			ReadinessTimeout: def.ReadinessTimeout,
			Settle:           def.Settle,
		}

		if def.Probe != nil {
			stage.Probe = &ProbeSpec{
				Command:  buildCommand(def.Probe.Command, def.Probe.Line, nil),
				Interval: def.Probe.Interval,
			}
		}

		for _, v := range def.Verify {
			stage.Verify = append(stage.Verify, Verification{
				Name:    v.Name,
				Command: buildCommand(v.Command, v.Line, v.Env),
				Expect:  v.Expect,
			})
		}

		for _, req := range def.Requests {
			stage.Requests = append(stage.Requests, transport.Request{
				Name:   req.Name,
				Method: req.Method,
				URL:    req.URL,
			})
		}

		stages = append(stages, stage)
	}
	return stages
}

func buildCommand(tokens []string, line string, env map[string]string) command.Command {
	var cmd command.Command
	if len(tokens) > 0 {
		cmd = command.New(tokens...)
	} else {
		cmd = command.Parse(line)
	}
	if env != nil {
		cmd = cmd.WithEnv(env)
	}
	return cmd
}
