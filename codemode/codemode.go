// Package codemode is the scripting sandbox (C12): it exposes call_tool,
// call_tool_stream, and search_tools as host functions to a Go snippet
// evaluated by an embedded yaegi interpreter, grounded on the teacher's
// src/plugins/codemode/codemode.go.
package codemode

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	utcp "github.com/utcp-go/utcp-core"
)

// ToolName is the fully-qualified name codemode registers itself under
// when wired into a client as an ordinary text-protocol tool.
const ToolName = "codemode.run_code"

const defaultTimeout = 30 * time.Second

// Args is the CodeMode invocation payload from spec.md §3.
type Args struct {
	Code    string `json:"code"`
	Timeout *int   `json:"timeout,omitempty"`
}

// Result is the CodeMode invocation result from spec.md §3.
type Result struct {
	Value  any    `json:"value"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// CodeMode binds a client instance to the scripting sandbox.
type CodeMode struct {
	client utcp.UtcpClientInterface

	// executeFunc, when set, replaces Execute's body — a test hook.
	executeFunc func(ctx context.Context, args Args) (*Result, error)
}

// New builds a CodeMode bound to client.
func New(client utcp.UtcpClientInterface) *CodeMode {
	return &CodeMode{client: client}
}

// Tool returns the utcp.Tool record codemode registers itself as, wired
// through RegisterTextTool on a TextClientTransport in the owning
// process (codemode has no remote discovery of its own).
func (c *CodeMode) Tool() (utcp.Tool, utcp.ToolHandler) {
	tool := utcp.Tool{
		Name:        ToolName,
		Description: "Execute a Go snippet with call_tool/call_tool_stream/search_tools bound as host functions.",
		Inputs: utcp.Schema{
			Type: "object",
			Properties: map[string]any{
				"code":    map[string]any{"type": "string"},
				"timeout": map[string]any{"type": "integer", "description": "milliseconds"},
			},
			Required: []string{"code"},
		},
		Outputs: utcp.Schema{
			Type: "object",
			Properties: map[string]any{
				"value":  map[string]any{},
				"stdout": map[string]any{"type": "string"},
				"stderr": map[string]any{"type": "string"},
			},
		},
		Tags: []string{"codemode", "scripting"},
	}
	handler := func(_ map[string]any, inputs map[string]any) (map[string]any, error) {
		args := Args{}
		if code, ok := inputs["code"].(string); ok {
			args.Code = code
		}
		if t, ok := inputs["timeout"].(float64); ok {
			ti := int(t)
			args.Timeout = &ti
		}
		result, err := c.Execute(context.Background(), args)
		if err != nil {
			return nil, err
		}
		if result.Stderr != "" {
			return nil, &utcp.TransportError{Protocol: "codemode", Msg: result.Stderr}
		}
		return map[string]any{"value": result.Value, "stdout": result.Stdout, "stderr": result.Stderr}, nil
	}
	return tool, handler
}

// Execute runs args.Code, per spec.md §4.8's three steps: JSON fast-path
// pass-through, else wrap-and-evaluate, then convert the final scripting
// value to JSON.
func (c *CodeMode) Execute(ctx context.Context, args Args) (*Result, error) {
	if c.executeFunc != nil {
		return c.executeFunc(ctx, args)
	}

	timeout := defaultTimeout
	if args.Timeout != nil && *args.Timeout > 0 {
		timeout = time.Duration(*args.Timeout) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	trimmed := strings.TrimSpace(args.Code)
	var fastPath any
	if json.Unmarshal([]byte(trimmed), &fastPath) == nil && looksLikeJSONLiteral(trimmed) {
		return &Result{Value: fastPath}, nil
	}

	program, err := prepareWrappedProgram(args.Code)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &utcp.TransportError{Protocol: "codemode", Msg: "loading stdlib symbols", Err: err}
	}
	if err := injectHelpers(runCtx, i, c.client); err != nil {
		return nil, err
	}

	type evalOutcome struct {
		value any
		err   error
	}
	done := make(chan evalOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalOutcome{err: fmt.Errorf("panic evaluating snippet: %v", r)}
			}
		}()
		if _, err := i.Eval(program); err != nil {
			done <- evalOutcome{err: err}
			return
		}
		v, err := i.Eval("run()")
		if err != nil {
			done <- evalOutcome{err: err}
			return
		}
		done <- evalOutcome{value: unwrapReflectValue(v)}
	}()

	select {
	case <-runCtx.Done():
		return nil, &utcp.TransportError{Protocol: "codemode", Msg: "execution timed out"}
	case outcome := <-done:
		if outcome.err != nil {
			if asErr, ok := outcome.value.(error); ok {
				return &Result{Stderr: asErr.Error()}, nil
			}
			return &Result{Stderr: outcome.err.Error()}, nil
		}
		if asErr, ok := outcome.value.(error); ok {
			return &Result{Stderr: asErr.Error()}, nil
		}
		return &Result{Value: outcome.value}, nil
	}
}

func unwrapReflectValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

// looksLikeJSONLiteral rejects bare Go identifiers/numbers that
// json.Unmarshal would also happily accept as scalars but that are
// really the start of a Go snippet (e.g. a single statement like
// "x" is valid JSON only when it's a quoted string).
func looksLikeJSONLiteral(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[', '"', '-':
		return true
	default:
		return s == "true" || s == "false" || s == "null" || isDigit(s[0])
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

var (
	packageOrImportLine = regexp.MustCompile(`(?m)^\s*(package\s+\w+|import\s*\(|import\s+"[^"]*"|\s*"[^"]*"|\)\s*)\s*$`)
)

// prepareWrappedProgram strips any package/import lines a caller may have
// mistakenly included (yaegi snippets are a function body, not a whole
// file) and wraps the snippet in a run() function returning __out,
// matching spec.md §4.8's "wrap as let __out = { <code> }; __out" rule
// realized as a Go function body. The generated program carries its own
// import block so snippets can reference codemode.CallTool et al.
// without writing an import themselves.
func prepareWrappedProgram(code string) (string, error) {
	stripped := stripPackageAndImports(code)
	body := ensureOutAssigned(stripped)
	var b strings.Builder
	b.WriteString("package main\n\n")
	b.WriteString("import (\n")
	b.WriteString("\t\"context/context\"\n")
	b.WriteString("\tcodemode \"")
	b.WriteString(helpersPackagePath)
	b.WriteString("\"\n")
	b.WriteString("\t\"fmt/fmt\"\n")
	b.WriteString(")\n\n")
	b.WriteString("func run() interface{} {\n")
	b.WriteString("\tvar __out interface{}\n")
	for _, line := range strings.Split(body, "\n") {
		b.WriteString("\t")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\treturn __out\n}\n")
	return b.String(), nil
}

func stripPackageAndImports(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if packageOrImportLine.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// ensureOutAssigned rewrites a trailing bare expression statement into an
// assignment to __out, so the wrapped function always has something to
// return even when the snippet itself never mentions __out.
func ensureOutAssigned(code string) string {
	if strings.Contains(code, "__out") {
		return code
	}
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if isAssignableExpression(trimmed) {
			lines[i] = strings.Replace(lines[i], trimmed, "__out = "+trimmed, 1)
		}
		break
	}
	return strings.Join(lines, "\n")
}

// isAssignableExpression is a conservative check: a line that already
// assigns, declares, or ends a block is left untouched; anything else is
// treated as the final expression.
func isAssignableExpression(line string) bool {
	if strings.HasSuffix(line, "{") || strings.HasSuffix(line, "}") {
		return false
	}
	if strings.Contains(line, ":=") || strings.HasPrefix(line, "var ") || strings.HasPrefix(line, "return") {
		return false
	}
	if strings.HasPrefix(line, "__out") {
		return false
	}
	return true
}
