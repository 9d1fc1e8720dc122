package utcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CLIClientTransport implements C5 over a local subprocess, grounded on
// the teacher's cli_transport.go. Auth is always ignored per spec.md §4.2.
type CLIClientTransport struct {
	logger func(format string, args ...any)
}

func NewCLIClientTransport(logger func(format string, args ...any)) *CLIClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &CLIClientTransport{logger: logger}
}

type cliExecResult struct {
	stdout   string
	stderr   string
	exitCode int
}

func (t *CLIClientTransport) execute(ctx context.Context, p *CliProvider, extraArgs []string) (cliExecResult, error) {
	parts := strings.Fields(p.CommandName)
	if len(parts) == 0 {
		return cliExecResult{}, &ConfigError{Msg: "cli provider has no command_name"}
	}
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := append(append([]string{}, parts[1:]...), extraArgs...)
	cmd := exec.CommandContext(runCtx, parts[0], args...)
	cmd.Env = t.prepareEnv(p)
	if p.WorkingDir != nil {
		cmd.Dir = *p.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return cliExecResult{}, &TransportError{Protocol: "cli", Msg: "spawning command", Err: err}
		}
	}
	return cliExecResult{stdout: stdout.String(), stderr: stderr.String(), exitCode: exitCode}, nil
}

func (t *CLIClientTransport) prepareEnv(p *CliProvider) []string {
	env := os.Environ()
	for k, v := range p.EnvVars {
		env = append(env, k+"="+v)
	}
	return env
}

func (t *CLIClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*CliProvider)
	if !ok {
		return nil, &ConfigError{Msg: "CLIClientTransport received a non-CliProvider"}
	}
	result, err := t.execute(ctx, p, []string{"--utcp-manual"})
	if err != nil {
		return nil, err
	}
	if result.exitCode != 0 {
		t.logger("cli discovery for %s exited %d: %s", p.Name, result.exitCode, result.stderr)
		return nil, nil
	}
	return extractManualTools(result.stdout), nil
}

// extractManualTools tries the whole output as a UtcpManual JSON document
// first, then scans line by line for a standalone JSON object, matching
// the teacher's extractManual behavior.
func extractManualTools(output string) []Tool {
	var manual struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal([]byte(output), &manual); err == nil && len(manual.Tools) > 0 {
		return manual.Tools
	}
	var bare []Tool
	if err := json.Unmarshal([]byte(output), &bare); err == nil {
		return bare
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &manual); err == nil && len(manual.Tools) > 0 {
			return manual.Tools
		}
	}
	return nil
}

func (t *CLIClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	return nil
}

func (t *CLIClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*CliProvider)
	if !ok {
		return nil, &ConfigError{Msg: "CLIClientTransport received a non-CliProvider"}
	}
	bare := stripProviderPrefix(callName)
	extraArgs := append([]string{bare}, formatArguments(args)...)
	result, err := t.execute(ctx, p, extraArgs)
	if err != nil {
		return nil, err
	}
	if result.exitCode != 0 {
		if v, ok := parseJSONOrNil(result.stderr); ok {
			return nil, &TransportError{Protocol: "cli", Msg: fmt.Sprintf("exit %d", result.exitCode), Err: fmt.Errorf("%v", v)}
		}
		return nil, &TransportError{Protocol: "cli", Msg: fmt.Sprintf("exit %d: %s", result.exitCode, result.stderr)}
	}
	var value any
	if err := json.Unmarshal([]byte(result.stdout), &value); err == nil {
		return value, nil
	}
	return strings.TrimSpace(result.stdout), nil
}

func (t *CLIClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	return nil, &UnsupportedOperationError{Protocol: "cli", Operation: "call_tool_stream"}
}

// formatArguments renders a map into "--flag value" pairs, booleans as
// bare "--flag" when true, and []interface{} as repeated "--flag item"
// pairs, matching the teacher's formatArguments.
func formatArguments(args map[string]any) []string {
	out := make([]string, 0, len(args)*2)
	for k, v := range args {
		flag := "--" + k
		switch val := v.(type) {
		case bool:
			if val {
				out = append(out, flag)
			}
		case []any:
			for _, item := range val {
				out = append(out, flag, fmt.Sprintf("%v", item))
			}
		case float64:
			out = append(out, flag, strconv.FormatFloat(val, 'g', -1, 64))
		default:
			out = append(out, flag, fmt.Sprintf("%v", val))
		}
	}
	return out
}

func parseJSONOrNil(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
