package cmd

import (
	"bytes"
	"os/exec"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	assert.Equal(t, testVersion, rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "stagectl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage, "usage should not be printed on run failures")
}

func TestVersionTemplate(t *testing.T) {
	// Create a new command to test version template
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "stagectl version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})

	require.NoError(t, testCmd.Execute())
	assert.Equal(t, "stagectl version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]*cobra.Command)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = c
	}

	for _, expected := range []string{"version", "run", "exec", "entrypoint", "mcp"} {
		assert.Contains(t, found, expected, "subcommand %s should be registered", expected)
	}
	require.Contains(t, found, "entrypoint")
	assert.True(t, found["entrypoint"].Hidden, "entrypoint is internal plumbing")
}

func TestVersionCommand(t *testing.T) {
	SetVersion("9.9.9")
	cmd := newVersionCmd()

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	assert.Equal(t, "stagectl version 9.9.9\n", buf.String())
}

func TestRunCommand_RejectsUnknownOutput(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Set("output", "xml"))

	err := cmd.PreRunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output 'xml'")
}

func TestRunCommand_RejectsNegativeTimeout(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.Flags().Set("timeout", "-1s"))

	err := cmd.PreRunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout must not be negative")
}

func TestRunCommand_Defaults(t *testing.T) {
	cmd := newRunCmd()
	require.NoError(t, cmd.PreRunE(cmd, nil))

	output, err := cmd.Flags().GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "console", output)
}

func TestExecCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{
			name: "command after dashes",
			args: []string{"--", "sh", "-c", "echo one; echo two"},
			want: "one\ntwo\n",
		},
		{
			name: "line is split on whitespace",
			args: []string{"--line", "echo hello   world"},
			want: "hello world\n",
		},
		{
			name: "missing program prints nothing",
			args: []string{"--", "/nonexistent/definitely-not-a-binary"},
			want: "",
		},
		{
			name:    "status reports non-zero exit",
			args:    []string{"--status", "--", "sh", "-c", "echo out; exit 3"},
			want:    "out\n",
			wantErr: "exited with code 3",
		},
		{
			name:    "line and dashes together",
			args:    []string{"--line", "pwd", "--", "pwd"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "nothing to run",
			args:    []string{},
			wantErr: "empty command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newExecCmd()
			var out, errOut bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestEntrypointCommand_UnknownID(t *testing.T) {
	cmd := newEntrypointCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stagectl.nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "stagectl.nope"), err.Error())
}

func TestEntrypointCommand_Completion(t *testing.T) {
	cmd := newEntrypointCmd()

	ids, directive := cmd.ValidArgsFunction(cmd, nil, "")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Contains(t, ids, "stagectl.service")
	assert.Contains(t, ids, "stagectl.extension")
}
