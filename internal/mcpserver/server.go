// Package mcpserver exposes stagectl runs and command execution as MCP tools
// over stdio.
//
// Everything the server writes to stdout belongs to the protocol, so launched
// processes always have their output captured into the log instead.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"stagectl/internal/command"
	"stagectl/internal/config"
	"stagectl/internal/metrics"
	"stagectl/internal/orchestrator"
	"stagectl/pkg/logging"
)

const subsystem = "MCP"

const (
	ToolRunPlan = "stagectl_run_plan"
	ToolExecute = "stagectl_execute"
)

// Server serves stagectl tools to an MCP client.
type Server struct {
	cfg      config.HarnessConfig
	metrics  *metrics.Collector
	executor *command.Executor
	mcp      *server.MCPServer
}

// New creates a server using cfg for every run. collector may be nil.
func New(cfg config.HarnessConfig, version string, collector *metrics.Collector) *Server {
	defaultEnv := cfg.Executor.DefaultEnv
	if defaultEnv == nil {
		defaultEnv = config.DefaultEnv()
	}

	s := &Server{
		cfg:      cfg,
		metrics:  collector,
		executor: command.NewExecutor(defaultEnv),
	}
	s.mcp = server.NewMCPServer(
		"stagectl",
		version,
		server.WithToolCapabilities(true),
	)
	s.mcp.AddTools(s.Tools()...)
	return s
}

// Tools returns the tools this server registers.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolRunPlan,
				mcp.WithDescription("Launch the stages of a plan in order, run their verifications and tear every process down. Returns the run result as JSON."),
				mcp.WithString("path",
					mcp.Description("Path to a plan YAML file. Omit to run the built-in service and extension plan."),
				),
				mcp.WithString("timeout",
					mcp.Description("Upper bound for the whole run, e.g. 2m"),
				),
			),
			Handler: s.handleRunPlan,
		},
		{
			Tool: mcp.NewTool(ToolExecute,
				mcp.WithDescription("Run one command synchronously and return its output lines"),
				mcp.WithString("command",
					mcp.Required(),
					mcp.Description("Command line, split on whitespace"),
				),
			),
			Handler: s.handleExecute,
		},
	}
}

// ServeStdio blocks serving the protocol on stdin and stdout.
func (s *Server) ServeStdio() error {
	logging.Info(subsystem, "Serving %d tools over stdio", len(s.Tools()))
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleRunPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path, _ := args["path"].(string)
	plan := config.DefaultPlan()
	if path != "" {
		loaded, err := config.LoadPlan(path, s.cfg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		plan = loaded
	} else {
		plan = config.ApplyPlanDefaults(plan, s.cfg)
	}

	if raw, _ := args["timeout"].(string); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid timeout %q: %v", raw, err)), nil
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	o := orchestrator.New(s.cfg,
		orchestrator.WithCaptureOutput(),
		orchestrator.WithMetrics(s.metrics),
	)
	result, runErr := o.Run(ctx, plan.Name, orchestrator.StagesFromPlan(plan, s.cfg))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format run result: %v", err)), nil
	}
	if runErr != nil {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// executeResponse is the JSON body returned by the execute tool.
type executeResponse struct {
	Lines    []string `json:"lines"`
	ExitCode int      `json:"exit_code"`
	Error    string   `json:"error,omitempty"`
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command parameter is required"), nil
	}

	cmd := command.Parse(line)
	if len(cmd.Args) == 0 {
		return mcp.NewToolResultError("command parameter is empty"), nil
	}

	res := s.executor.Run(ctx, cmd)
	resp := executeResponse{Lines: res.Lines, ExitCode: res.ExitCode}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format output: %v", err)), nil
	}
	if res.Err != nil {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
