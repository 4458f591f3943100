package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagectl/internal/config"
)

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestTools(t *testing.T) {
	s := New(config.GetDefaultConfig(), "test", nil)
	tools := s.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, ToolRunPlan, tools[0].Tool.Name)
	assert.Equal(t, ToolExecute, tools[1].Tool.Name)
	assert.Contains(t, tools[1].Tool.InputSchema.Required, "command")
}

func TestHandleExecute(t *testing.T) {
	if _, err := exec.LookPath("pwd"); err != nil {
		t.Skip("pwd not available")
	}
	s := New(config.GetDefaultConfig(), "test", nil)

	result, err := s.handleExecute(context.Background(), callRequest(ToolExecute, map[string]interface{}{"command": "pwd"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var resp executeResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
	assert.Len(t, resp.Lines, 1)
	assert.Equal(t, 0, resp.ExitCode)
}

func TestHandleExecute_Errors(t *testing.T) {
	s := New(config.GetDefaultConfig(), "test", nil)

	result, err := s.handleExecute(context.Background(), callRequest(ToolExecute, map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleExecute(context.Background(), callRequest(ToolExecute, map[string]interface{}{"command": "/nonexistent/binary"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "failed to start command")
}

func TestHandleRunPlan_InvalidInput(t *testing.T) {
	s := New(config.GetDefaultConfig(), "test", nil)

	result, err := s.handleRunPlan(context.Background(), callRequest(ToolRunPlan, map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing.yaml"),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nstages: []\n"), 0644))
	result, err = s.handleRunPlan(context.Background(), callRequest(ToolRunPlan, map[string]interface{}{"path": path}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no stages")

	result, err = s.handleRunPlan(context.Background(), callRequest(ToolRunPlan, map[string]interface{}{"timeout": "soon"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid timeout")
}

func TestHandleRunPlan_StartFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := `
name: broken
stages:
  - name: service
    readinessTimeout: 2s
    process:
      command: ["/nonexistent/service-binary"]
`
	require.NoError(t, os.WriteFile(path, []byte(plan), 0644))

	s := New(config.GetDefaultConfig(), "test", nil)
	result, err := s.handleRunPlan(context.Background(), callRequest(ToolRunPlan, map[string]interface{}{"path": path}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotEmpty(t, decoded["run_id"])
}
