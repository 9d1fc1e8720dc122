package utcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cast"
)

// MCPClientTransport implements C5 over the Model Context Protocol,
// grounded on the teacher's src/transports/mcp/mcp_transport.go. A
// provider with Command set is driven over a cached stdio subprocess;
// one with URL set is driven over HTTP JSON-RPC POSTs. Per spec.md §9's
// adopted safe contract, each stdio process serializes its JSON-RPC
// exchange behind a single request-scope mutex (one outstanding request
// at a time, monotone ids).
type MCPClientTransport struct {
	httpClient *http.Client
	logger     func(format string, args ...any)
	nextID     int64

	mu        sync.Mutex
	processes map[string]*mcpProcess
}

type mcpProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	mu     sync.Mutex
}

func NewMCPClientTransport(logger func(format string, args ...any)) *MCPClientTransport {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	return &MCPClientTransport{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		processes:  make(map[string]*mcpProcess),
	}
}

func (t *MCPClientTransport) generateID() int64 { return atomic.AddInt64(&t.nextID, 1) }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (t *MCPClientTransport) spawnProcess(p *MCPProvider) (*mcpProcess, error) {
	cmd := exec.Command(p.Command, p.Args...)
	cmd.Env = os.Environ()
	for k, v := range p.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "opening stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "opening stdout pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "starting process", Err: err}
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &mcpProcess{cmd: cmd, stdin: stdin, stdout: scanner}, nil
}

// sendRequestStdio writes req then reads lines until it finds the
// response matching req.ID, forwarding any lines with no id (notifications)
// to the logger. Held under proc.mu for the whole exchange.
func (proc *mcpProcess) sendRequestStdio(req jsonRPCRequest, logger func(string, ...any)) (*jsonRPCResponse, error) {
	proc.mu.Lock()
	defer proc.mu.Unlock()

	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "encoding request", Err: err}
	}
	if _, err := proc.stdin.Write(append(encoded, '\n')); err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "writing to stdin", Err: err}
	}

	for proc.stdout.Scan() {
		line := bytes.TrimSpace(proc.stdout.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.ID == nil {
			logger("mcp notification from subprocess: %s", resp.Method)
			continue
		}
		if *resp.ID == req.ID {
			return &resp, nil
		}
	}
	if err := proc.stdout.Err(); err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "reading from stdout", Err: err}
	}
	return nil, &TransportError{Protocol: "mcp", Msg: "subprocess closed stdout before responding"}
}

func (t *MCPClientTransport) getOrSpawn(p *MCPProvider) (*mcpProcess, error) {
	t.mu.Lock()
	if proc, ok := t.processes[p.Name]; ok {
		t.mu.Unlock()
		return proc, nil
	}
	t.mu.Unlock()

	proc, err := t.spawnProcess(p)
	if err != nil {
		return nil, err
	}

	initReq := jsonRPCRequest{JSONRPC: "2.0", ID: t.generateID(), Method: "initialize", Params: map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "utcp-core", "version": "1.0"},
	}}
	if _, err := proc.sendRequestStdio(initReq, t.logger); err != nil {
		t.cleanupProcess(proc)
		return nil, err
	}

	t.mu.Lock()
	t.processes[p.Name] = proc
	t.mu.Unlock()
	return proc, nil
}

func (t *MCPClientTransport) cleanupProcess(proc *mcpProcess) {
	proc.stdin.Close()
	if proc.cmd.Process != nil {
		proc.cmd.Process.Kill()
	}
	proc.cmd.Wait()
}

type mcpToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (t *MCPClientTransport) RegisterToolProvider(ctx context.Context, provider Provider) ([]Tool, error) {
	p, ok := provider.(*MCPProvider)
	if !ok {
		return nil, &ConfigError{Msg: "MCPClientTransport received a non-MCPProvider"}
	}

	var rawResult json.RawMessage
	if p.IsStdio() {
		proc, err := t.getOrSpawn(p)
		if err != nil {
			return nil, err
		}
		req := jsonRPCRequest{JSONRPC: "2.0", ID: t.generateID(), Method: "tools/list"}
		resp, err := proc.sendRequestStdio(req, t.logger)
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, &TransportError{Protocol: "mcp", Msg: resp.Error.Message}
		}
		rawResult = resp.Result
	} else {
		resp, err := t.sendRequestHTTP(ctx, p, jsonRPCRequest{JSONRPC: "2.0", ID: t.generateID(), Method: "tools/list"})
		if err != nil {
			return nil, err
		}
		if resp.Error != nil {
			return nil, &TransportError{Protocol: "mcp", Msg: resp.Error.Message}
		}
		rawResult = resp.Result
	}

	var parsed struct {
		Tools []mcpToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(rawResult, &parsed); err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "parsing tools/list result", Err: err}
	}

	tools := make([]Tool, len(parsed.Tools))
	for i, d := range parsed.Tools {
		tools[i] = Tool{Name: d.Name, Description: d.Description, Inputs: schemaFromMap(d.InputSchema)}
	}
	return tools, nil
}

func schemaFromMap(m map[string]any) Schema {
	if m == nil {
		return Schema{}
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return Schema{}
	}
	var s Schema
	_ = json.Unmarshal(encoded, &s)
	return s
}

func (t *MCPClientTransport) sendRequestHTTP(ctx context.Context, p *MCPProvider, req jsonRPCRequest) (*jsonRPCResponse, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "encoding request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(encoded))
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		httpReq.Header.Set(k, v)
	}
	if err := applyHTTPAuth(httpReq, p.Auth); err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "reading response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Protocol: "mcp", Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, string(body))}
	}
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "parsing JSON-RPC response", Err: err}
	}
	return &rpcResp, nil
}

func (t *MCPClientTransport) DeregisterToolProvider(ctx context.Context, provider Provider) error {
	p, ok := provider.(*MCPProvider)
	if !ok {
		return nil
	}
	t.mu.Lock()
	proc, ok := t.processes[p.Name]
	delete(t.processes, p.Name)
	t.mu.Unlock()
	if ok {
		t.cleanupProcess(proc)
	}
	return nil
}

func (t *MCPClientTransport) CallTool(ctx context.Context, callName string, args map[string]any, provider Provider) (any, error) {
	p, ok := provider.(*MCPProvider)
	if !ok {
		return nil, &ConfigError{Msg: "MCPClientTransport received a non-MCPProvider"}
	}
	req := jsonRPCRequest{JSONRPC: "2.0", ID: t.generateID(), Method: "tools/call", Params: map[string]any{
		"name":      callName,
		"arguments": args,
	}}

	var resp *jsonRPCResponse
	var err error
	if p.IsStdio() {
		proc, spawnErr := t.getOrSpawn(p)
		if spawnErr != nil {
			return nil, spawnErr
		}
		resp, err = proc.sendRequestStdio(req, t.logger)
	} else {
		resp, err = t.sendRequestHTTP(ctx, p, req)
	}
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: resp.Error.Message}
	}
	var v any
	if err := json.Unmarshal(resp.Result, &v); err != nil {
		return nil, &TransportError{Protocol: "mcp", Msg: "parsing tools/call result", Err: err}
	}
	return flattenMCPContent(v), nil
}

// flattenMCPContent collapses the conventional MCP tools/call result shape
// ({"content": [{"type": "text", "text": "..."}, ...]}) into the plain
// joined text callers expect, using cast for lenient coercion since
// "text"/"type" fields are occasionally numbers or other scalars in the
// wild. Any other result shape is returned unchanged.
func flattenMCPContent(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	blocks, ok := m["content"].([]any)
	if !ok {
		return v
	}
	var parts []string
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if cast.ToString(block["type"]) != "text" {
			continue
		}
		parts = append(parts, cast.ToString(block["text"]))
	}
	if len(parts) == 0 {
		return v
	}
	return strings.Join(parts, "\n")
}

func (t *MCPClientTransport) CallToolStream(ctx context.Context, callName string, args map[string]any, provider Provider) (StreamResult, error) {
	value, err := t.CallTool(ctx, callName, args, provider)
	if err != nil {
		return nil, err
	}
	if arr, ok := value.([]any); ok {
		return NewSliceStreamResult(arr, nil), nil
	}
	return newSingleItemStream(value, nil), nil
}
