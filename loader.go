package utcp

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/utcp-go/utcp-core/internal/ijson"
)

// varPattern matches both "${KEY}" and "$KEY" forms.
var varPattern = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// looksLikeYAML is a cheap sniff for manifests that aren't JSON: JSON
// documents always start with '{' or '[' once leading whitespace is
// trimmed, so anything else is handed to the YAML decoder instead.
func looksLikeYAML(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] != '{' && trimmed[0] != '['
}

// LoadProvidersFromBytes parses a manifest document in any of the shapes
// spec.md §4.6 names (provider array, {providers:...},
// {manual_call_templates:...}, or a single provider object), applies
// v0.1→v1.0 migration when the legacy shape is detected, performs
// variable substitution, and materializes concrete Provider values. The
// document may be JSON or YAML; YAML manifests are decoded with
// gopkg.in/yaml.v3 and normalized into the same any-tree the JSON path
// produces before anything else runs.
func LoadProvidersFromBytes(data []byte, cfg *ClientConfig) ([]Provider, error) {
	var doc any
	if looksLikeYAML(data) {
		var yamlDoc any
		if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
			return nil, &ConfigError{Msg: "invalid manifest YAML", Err: err}
		}
		doc = normalizeYAMLValue(yamlDoc)
	} else if err := ijson.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Msg: "invalid manifest JSON", Err: err}
	}

	if m, ok := doc.(map[string]any); ok {
		if _, hasLegacy := m["providers"]; hasLegacy {
			doc = migrateV01Config(m)
		}
	}

	substituted, err := substituteVariables(doc, cfg)
	if err != nil {
		return nil, err
	}

	rawProviders, docAllowed, err := extractProviderObjects(substituted)
	if err != nil {
		return nil, err
	}

	providers := make([]Provider, 0, len(rawProviders))
	for i, raw := range rawProviders {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &ConfigError{Msg: "provider entry is not a JSON object"}
		}
		assignDefaultName(obj, i)

		encoded, err := ijson.Marshal(obj)
		if err != nil {
			return nil, &ConfigError{Msg: "re-encoding provider entry", Err: err}
		}
		p, err := unmarshalProvider(encoded)
		if err != nil {
			return nil, err
		}
		if docAllowed != nil && !containsTag(docAllowed, p.Type()) {
			continue
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// normalizeYAMLValue converts a yaml.v3-decoded tree into the same shape
// encoding/json would produce (map[string]any throughout, never
// map[any]any), since the rest of the loader pipeline type-switches on
// map[string]any.
func normalizeYAMLValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAMLValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAMLValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAMLValue(val)
		}
		return out
	default:
		return v
	}
}

// extractProviderObjects normalizes the document into a flat slice of raw
// provider objects, plus the document-level allowed_communication_protocols
// filter if present and non-empty (nil when absent or empty — spec.md
// §4.6/§9 treats an explicit empty list the same as an absent one, so it
// must not filter out every provider).
func extractProviderObjects(doc any) ([]any, []ProtocolTag, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil, nil
	case map[string]any:
		var allowed []ProtocolTag
		if rawAllowed, ok := v["allowed_communication_protocols"]; ok {
			if tags := toProtocolTags(rawAllowed); len(tags) > 0 {
				allowed = tags
			}
		}
		if mct, ok := v["manual_call_templates"]; ok {
			items, err := asObjectSlice(mct)
			return items, allowed, err
		}
		if providers, ok := v["providers"]; ok {
			items, err := asObjectSlice(providers)
			return items, allowed, err
		}
		if _, hasType := v["provider_type"]; hasType {
			return []any{v}, allowed, nil
		}
		if _, hasType := v["type"]; hasType {
			return []any{v}, allowed, nil
		}
		return nil, nil, &ConfigError{Msg: "manifest object has neither manual_call_templates, providers, nor a provider_type"}
	default:
		return nil, nil, &ConfigError{Msg: "manifest document must be an object or array"}
	}
}

// asObjectSlice accepts either a JSON array of provider objects or a JSON
// object keyed by provider name ({providers: {name: {...}}}), injecting
// the key as "name" in the latter case when absent.
func asObjectSlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		out := make([]any, 0, len(t))
		for key, val := range t {
			obj, ok := val.(map[string]any)
			if !ok {
				return nil, &ConfigError{Msg: "provider entry is not a JSON object"}
			}
			if _, hasName := obj["name"]; !hasName {
				obj["name"] = key
			}
			out = append(out, obj)
		}
		return out, nil
	default:
		return nil, &ConfigError{Msg: "providers/manual_call_templates must be an array or object"}
	}
}

func toProtocolTags(v any) []ProtocolTag {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ProtocolTag, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, ProtocolTag(s))
		}
	}
	return out
}

func containsTag(tags []ProtocolTag, tag ProtocolTag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// assignDefaultName fills a missing "name" field with "<type>_<index>",
// matching spec.md §4.6's provider-materialization rule.
func assignDefaultName(obj map[string]any, index int) {
	if name, ok := obj["name"]; ok {
		if s, ok := name.(string); ok && s != "" {
			return
		}
	}
	typ := "provider"
	if t, ok := obj["provider_type"].(string); ok && t != "" {
		typ = t
	} else if t, ok := obj["call_template_type"].(string); ok && t != "" {
		typ = t
	} else if t, ok := obj["type"].(string); ok && t != "" {
		typ = t
	}
	obj["name"] = fmt.Sprintf("%s_%d", typ, index)
}

// substituteVariables walks the JSON tree depth-first, rewriting every
// string value containing ${KEY} or $KEY references.
func substituteVariables(node any, cfg *ClientConfig) (any, error) {
	switch v := node.(type) {
	case string:
		return substituteInString(v, cfg)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			sub, err := substituteVariables(val, cfg)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			sub, err := substituteVariables(val, cfg)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return node, nil
	}
}

func substituteInString(s string, cfg *ClientConfig) (string, error) {
	var firstErr error
	result := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := varPattern.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		val, err := cfg.resolveVariable(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// migrateV01Config rewrites a legacy top-level config document
// ({providers:[...]}) into the v1.0 shape ({manual_call_templates:[...]}),
// renaming provider_type to call_template_type on each entry and carrying
// variables/load_variables_from through unchanged. Grounded on
// original_source/src/migration.rs.
func migrateV01Config(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	rawProviders := out["providers"]
	delete(out, "providers")

	var entries []any
	switch v := rawProviders.(type) {
	case []any:
		entries = v
	case map[string]any:
		for name, val := range v {
			if obj, ok := val.(map[string]any); ok {
				if _, has := obj["name"]; !has {
					obj["name"] = name
				}
				entries = append(entries, obj)
			}
		}
	}

	migrated := make([]any, 0, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			migrated = append(migrated, e)
			continue
		}
		m := make(map[string]any, len(obj))
		for k, v := range obj {
			m[k] = v
		}
		if pt, ok := m["provider_type"]; ok {
			m["call_template_type"] = pt
			delete(m, "provider_type")
		}
		applyHTTPMethodRename(m)
		migrated = append(migrated, m)
	}
	out["manual_call_templates"] = migrated
	return out
}

// applyHTTPMethodRename renames "method" to "http_method" for http call
// templates that don't already carry an http_method, grounded on
// original_source/src/migration.rs's provider_to_call_template.
func applyHTTPMethodRename(m map[string]any) {
	if m["call_template_type"] != "http" {
		return
	}
	if _, hasHTTPMethod := m["http_method"]; hasHTTPMethod {
		return
	}
	if method, ok := m["method"]; ok {
		m["http_method"] = method
	}
}

// migrateV01Manual rewrites a legacy manual document (tool metadata plus
// a provider_info block) into the v1.0 manual shape: injects
// manual_version/utcp_version, maps provider_info.{name,version,
// description} into info.{title,version,description}, and per tool
// renames parameters→inputs (defaulting outputs) and provider→
// tool_call_template (with its own provider_type→call_template_type
// rename).
func migrateV01Manual(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	out["manual_version"] = "1.0.0"
	out["utcp_version"] = "0.2.0"

	if pi, ok := out["provider_info"].(map[string]any); ok {
		info := make(map[string]any)
		if name, ok := pi["name"]; ok {
			info["title"] = name
		}
		if version, ok := pi["version"]; ok {
			info["version"] = version
		}
		if desc, ok := pi["description"]; ok {
			info["description"] = desc
		}
		out["info"] = info
		delete(out, "provider_info")
	}

	if toolsRaw, ok := out["tools"].([]any); ok {
		tools := make([]any, 0, len(toolsRaw))
		for _, t := range toolsRaw {
			tool, ok := t.(map[string]any)
			if !ok {
				tools = append(tools, t)
				continue
			}
			tools = append(tools, migrateV01Tool(tool))
		}
		out["tools"] = tools
	}
	return out
}

func migrateV01Tool(tool map[string]any) map[string]any {
	m := make(map[string]any, len(tool)+1)
	for k, v := range tool {
		m[k] = v
	}
	if params, ok := m["parameters"]; ok {
		m["inputs"] = params
		delete(m, "parameters")
	}
	if _, ok := m["outputs"]; !ok {
		m["outputs"] = map[string]any{"type": "object"}
	}
	if prov, ok := m["provider"].(map[string]any); ok {
		ct := make(map[string]any, len(prov))
		for k, v := range prov {
			ct[k] = v
		}
		if pt, ok := ct["provider_type"]; ok {
			ct["call_template_type"] = pt
			delete(ct, "provider_type")
		}
		applyHTTPMethodRename(ct)
		m["tool_call_template"] = ct
		delete(m, "provider")
	}
	return m
}

// ValidateV1Config checks the structural requirement from spec.md §4.6:
// a config must carry either manual_call_templates or legacy providers,
// and (when parsed as a manual document) each tool must carry name,
// description, inputs, outputs, and either tool_call_template or legacy
// provider.
func ValidateV1Config(doc map[string]any) error {
	_, hasMCT := doc["manual_call_templates"]
	_, hasProviders := doc["providers"]
	if !hasMCT && !hasProviders {
		return &ConfigError{Msg: "config requires manual_call_templates or providers"}
	}
	toolsRaw, hasTools := doc["tools"].([]any)
	if !hasTools {
		return nil
	}
	for i, t := range toolsRaw {
		tool, ok := t.(map[string]any)
		if !ok {
			return &ConfigError{Msg: fmt.Sprintf("tool %d is not an object", i)}
		}
		for _, req := range []string{"name", "description", "inputs", "outputs"} {
			if _, ok := tool[req]; !ok {
				return &ConfigError{Msg: fmt.Sprintf("tool %d missing required field %q", i, req)}
			}
		}
		_, hasCT := tool["tool_call_template"]
		_, hasProv := tool["provider"]
		if !hasCT && !hasProv {
			return &ConfigError{Msg: fmt.Sprintf("tool %d missing tool_call_template or provider", i)}
		}
	}
	return nil
}

// stripLeadingDots trims leading '.' characters, used by the kernel when
// normalizing a bare discovered tool name into its prefixed form.
func stripLeadingDots(s string) string {
	return strings.TrimLeft(s, ".")
}
