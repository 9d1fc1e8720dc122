package codemode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"

	utcp "github.com/utcp-go/utcp-core"
)

// helpersPackagePath is the synthetic import path yaegi snippets use to
// reach the host functions, mirroring the teacher's
// "codemode_helpers/codemode_helpers" convention.
const helpersPackagePath = "codemodehelpers/codemodehelpers"

// injectHelpers binds call_tool/call_tool_stream/search_tools/sprintf to
// client and exposes them to the interpreter under helpersPackagePath,
// grounded on the teacher's injectHelpers.
func injectHelpers(ctx context.Context, i *interp.Interpreter, client utcp.UtcpClientInterface) error {
	callTool := func(name string, args map[string]any) (any, error) {
		return client.CallTool(ctx, name, args)
	}

	callToolStream := func(name string, args map[string]any) ([]any, error) {
		stream, err := client.CallToolStream(ctx, name, args)
		if err != nil {
			return nil, err
		}
		defer stream.Close()
		var out []any
		for {
			v, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	searchTools := func(query string, limit int) ([]map[string]any, error) {
		tools, err := client.SearchTools(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			encoded, err := json.Marshal(t)
			if err != nil {
				continue
			}
			var m map[string]any
			if err := json.Unmarshal(encoded, &m); err == nil {
				out = append(out, m)
			}
		}
		return out, nil
	}

	sprintfHost := func(format string, args ...any) string { return sprintfPlaceholders(format, args) }
	errorfHost := func(format string, args ...any) error { return fmt.Errorf("%s", sprintfPlaceholders(format, args)) }

	exports := interp.Exports{
		helpersPackagePath: {
			"CallTool":       reflect.ValueOf(callTool),
			"CallToolStream": reflect.ValueOf(callToolStream),
			"SearchTools":    reflect.ValueOf(searchTools),
			"Sprintf":        reflect.ValueOf(sprintfHost),
			"Errorf":         reflect.ValueOf(errorfHost),
		},
	}
	return i.Use(exports)
}

// sprintfPlaceholders implements spec.md §4.8's sprintf(fmt, [args]): "{}"
// placeholders are replaced by args in order, unlike fmt.Sprintf's verbs.
func sprintfPlaceholders(format string, args []any) string {
	var b strings.Builder
	argIdx := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '{' && i+1 < len(format) && format[i+1] == '}' {
			if argIdx < len(args) {
				fmt.Fprintf(&b, "%v", args[argIdx])
				argIdx++
			} else {
				b.WriteString("{}")
			}
			i++
			continue
		}
		b.WriteByte(format[i])
	}
	return b.String()
}
