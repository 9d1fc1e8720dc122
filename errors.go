package utcp

import "fmt"

// VariableNotFoundError is returned when a ${VAR} reference in a provider
// config cannot be resolved from inline variables, a loader, or the
// process environment.
type VariableNotFoundError struct {
	VariableName string
}

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf(
		"variable %q referenced in provider configuration not found; "+
			"add it to the environment or to the client configuration",
		e.VariableName,
	)
}

// ConfigError wraps malformed JSON/YAML, missing required fields, and
// unknown protocol types encountered while loading a manifest.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Msg, e.Err)
	}
	return "config error: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError covers missing/empty credentials, invalid auth locations, and
// auth mechanisms a given plugin refuses to support (e.g. oauth2 almost
// everywhere, or a location a plugin doesn't implement).
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "auth error: " + e.Msg }

// UnknownProtocolError is returned by the registry and the kernel when no
// plugin is registered for a protocol tag.
type UnknownProtocolError struct {
	Protocol string
}

func (e *UnknownProtocolError) Error() string {
	return fmt.Sprintf("unknown protocol: %q", e.Protocol)
}

// ProviderNotFoundError is returned by the repository and the kernel when
// a provider name has no registration.
type ProviderNotFoundError struct {
	Name string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider not found: %q", e.Name)
}

// NoToolsForProviderError is returned when a provider exists but has no
// associated tool list entry (should not happen outside of races during
// SaveProviderWithTools, but the repository contract allows it).
type NoToolsForProviderError struct {
	Name string
}

func (e *NoToolsForProviderError) Error() string {
	return fmt.Sprintf("no tools found for provider: %q", e.Name)
}

// InvalidToolNameError is returned when a tool name cannot be split into a
// provider component and a bare-tool component.
type InvalidToolNameError struct {
	Name string
}

func (e *InvalidToolNameError) Error() string {
	return fmt.Sprintf("invalid tool name: %q", e.Name)
}

// ProtocolNotAllowedError is returned by resolution when a provider's own
// protocol tag is not present in its allowed-protocols list.
type ProtocolNotAllowedError struct {
	Provider string
	Tag      ProtocolTag
	Allowed  []ProtocolTag
}

func (e *ProtocolNotAllowedError) Error() string {
	return fmt.Sprintf(
		"protocol %q not allowed for provider %q (allowed: %v)",
		e.Tag, e.Provider, e.Allowed,
	)
}

// TransportError wraps a failure originating inside a protocol plugin:
// non-2xx HTTP status, socket I/O, non-zero subprocess exit with empty
// stdout, or a discovery/response payload that fails to parse.
type TransportError struct {
	Protocol string
	Msg      string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transport error: %s: %v", e.Protocol, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s transport error: %s", e.Protocol, e.Msg)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamError wraps a mid-stream I/O failure, a frame parse failure, or an
// incomplete trailing frame.
type StreamError struct {
	Msg string
	Err error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream error: %s: %v", e.Msg, e.Err)
	}
	return "stream error: " + e.Msg
}

func (e *StreamError) Unwrap() error { return e.Err }

// UnsupportedOperationError is returned when a plugin is asked to do
// something it fundamentally cannot, such as streaming from a transport
// that has no notion of a stream.
type UnsupportedOperationError struct {
	Protocol  string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Protocol, e.Operation)
}
