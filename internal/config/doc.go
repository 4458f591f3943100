// Package config provides configuration management for stagectl.
//
// Two kinds of documents are handled here: the harness configuration, which
// tunes how processes are launched and commands executed, and plans, which list
// the stages a run goes through.
//
// # Configuration Layers
//
// The harness configuration is loaded and merged in the following order, later
// sources overriding earlier ones:
//
//  1. Default Configuration (GetDefaultConfig)
//  2. User Configuration (~/.config/stagectl/config.yaml)
//  3. Project Configuration (./.stagectl/config.yaml)
//
// Example:
//
//	logging:
//	  level: debug
//	launcher:
//	  pollInterval: 1s
//	orchestrator:
//	  defaultReadinessTimeout: 15s
//	executor:
//	  defaultEnv:
//	    LC_ALL: C
//
// # Plans
//
// A plan is an ordered list of stages. Each stage launches one process and,
// once it is ready, optionally probes it, waits for it to settle, runs
// verification commands and sends remote requests:
//
//	name: service-and-extension
//	stages:
//	  - name: service
//	    process:
//	      kind: service
//	      args: ["--port", "9200"]
//	    readinessTimeout: 10s
//	  - name: extension
//	    process:
//	      kind: extension
//	    verify:
//	      - line: pwd
//	        expect:
//	          minLines: 1
//
// Durations are written as Go duration strings ("500ms", "10s").
package config
