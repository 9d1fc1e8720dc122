package codemode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	utcp "github.com/utcp-go/utcp-core"
)

// LlmModel is the minimal text-completion interface the orchestrator
// drives, matching the teacher's orchestrator.go.
type LlmModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const orchestratorTimeout = 20 * time.Second

// Orchestrator runs the three-prompt loop from spec.md §4.8: ask whether
// tools are needed, ask which tools to use, then ask for a snippet using
// only the selected tools, and execute it.
type Orchestrator struct {
	codeMode *CodeMode
	client   utcp.UtcpClientInterface
	model    LlmModel

	specsOnce sync.Once
	specsText string
	specsErr  error
}

// NewOrchestrator builds an Orchestrator bound to client and model.
func NewOrchestrator(client utcp.UtcpClientInterface, model LlmModel) *Orchestrator {
	return &Orchestrator{codeMode: New(client), client: client, model: model}
}

// CallTool drives the full sequence for a user prompt and returns the
// executed snippet's result.
func (o *Orchestrator) CallTool(ctx context.Context, prompt string) (*Result, error) {
	specs, err := o.toolSpecs(ctx)
	if err != nil {
		return nil, err
	}

	needed, err := o.decideIfToolsNeeded(ctx, prompt, specs)
	if err != nil {
		return nil, err
	}
	if !needed {
		return &Result{Value: nil}, nil
	}

	selected, err := o.selectTools(ctx, prompt, specs)
	if err != nil {
		return nil, err
	}

	code, err := o.generateSnippet(ctx, prompt, specs, selected)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, orchestratorTimeout)
	defer cancel()
	return o.codeMode.Execute(execCtx, Args{Code: code})
}

// toolSpecs renders the specs of up to 50 registered tools (an empty-query
// SearchTools call) once and caches the text for the orchestrator's
// lifetime.
func (o *Orchestrator) toolSpecs(ctx context.Context) (string, error) {
	o.specsOnce.Do(func() {
		tools, err := o.client.SearchTools(ctx, "", 50)
		if err != nil {
			o.specsErr = err
			return
		}
		o.specsText = renderToolsForPrompt(tools)
	})
	return o.specsText, o.specsErr
}

func renderToolsForPrompt(tools []utcp.Tool) string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, t := range tools {
		name := strings.ToLower(t.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		if len(t.Inputs.Required) > 0 {
			fmt.Fprintf(&b, "  required inputs: %s\n", strings.Join(t.Inputs.Required, ", "))
		}
		if encoded, err := json.Marshal(t.Inputs); err == nil {
			fmt.Fprintf(&b, "  input schema: %s\n", string(encoded))
		}
		if encoded, err := json.Marshal(t.Outputs); err == nil {
			fmt.Fprintf(&b, "  output schema: %s\n", string(encoded))
		}
	}
	return b.String()
}

func (o *Orchestrator) decideIfToolsNeeded(ctx context.Context, prompt, specs string) (bool, error) {
	query := fmt.Sprintf(
		"Given these tools:\n%s\nDoes answering the following request require calling any tool? "+
			"Respond with exactly {\"needs_tools\": true} or {\"needs_tools\": false}.\nRequest: %s",
		specs, prompt,
	)
	raw, err := o.model.Generate(ctx, query)
	if err != nil {
		return false, &utcp.TransportError{Protocol: "codemode", Msg: "llm decide-tools call failed", Err: err}
	}
	var parsed struct {
		NeedsTools bool `json:"needs_tools"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return false, &utcp.TransportError{Protocol: "codemode", Msg: "parsing decide-tools response", Err: err}
	}
	return parsed.NeedsTools, nil
}

func (o *Orchestrator) selectTools(ctx context.Context, prompt, specs string) ([]string, error) {
	query := fmt.Sprintf(
		"Given these tools:\n%s\nWhich tool names are needed to satisfy this request? "+
			"Respond with exactly {\"tools\": [\"name1\", \"name2\"]}.\nRequest: %s",
		specs, prompt,
	)
	raw, err := o.model.Generate(ctx, query)
	if err != nil {
		return nil, &utcp.TransportError{Protocol: "codemode", Msg: "llm select-tools call failed", Err: err}
	}
	var parsed struct {
		Tools []string `json:"tools"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, &utcp.TransportError{Protocol: "codemode", Msg: "parsing select-tools response", Err: err}
	}
	return parsed.Tools, nil
}

func (o *Orchestrator) generateSnippet(ctx context.Context, prompt, specs string, selected []string) (string, error) {
	query := fmt.Sprintf(
		"Using only these tools: %s\n\nFull specs:\n%s\n"+
			"Write a Go snippet (no package/import lines) that fulfills this request, "+
			"calling codemode.CallTool/CallToolStream/SearchTools as needed, "+
			"and assigning the final answer to a variable named __out.\nRequest: %s",
		strings.Join(selected, ", "), specs, prompt,
	)
	raw, err := o.model.Generate(ctx, query)
	if err != nil {
		return "", &utcp.TransportError{Protocol: "codemode", Msg: "llm generate-snippet call failed", Err: err}
	}
	code := stripCodeFence(raw)
	if !isValidSnippet(code) {
		return "", &utcp.TransportError{Protocol: "codemode", Msg: "model produced an invalid snippet"}
	}
	return code, nil
}

// isValidSnippet rejects the teacher-documented failure modes: a raw Go
// map literal representation leaking into the output, or a snippet that
// never assigns __out.
func isValidSnippet(code string) bool {
	if strings.Contains(code, "map[value:") {
		return false
	}
	return strings.Contains(code, "__out")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```go")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// extractJSON pulls a JSON value out of raw model output: a bare JSON
// document, a markdown-fenced one, or leading JSON followed by trailing
// prose, tracked via brace depth and string/escape state.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return trimmed
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(trimmed); i++ {
		c := trimmed[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return trimmed[start : i+1]
			}
		}
	}
	return trimmed[start:]
}
