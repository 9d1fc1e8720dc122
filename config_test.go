package utcp

import "testing"

type fakeVariablesConfig struct{ vars map[string]string }

func (f *fakeVariablesConfig) Load() error { return nil }
func (f *fakeVariablesConfig) Get(key string) (string, bool) {
	v, ok := f.vars[key]
	return v, ok
}

func TestResolveVariablePrefersInlineOverLoaders(t *testing.T) {
	cfg := NewClientConfig()
	cfg.Variables["API_KEY"] = "inline-value"
	cfg.LoadVariablesFrom = []VariablesConfig{&fakeVariablesConfig{vars: map[string]string{"API_KEY": "loader-value"}}}

	v, err := cfg.resolveVariable("API_KEY")
	if err != nil || v != "inline-value" {
		t.Fatalf("expected inline value to win, got %q, %v", v, err)
	}
}

func TestResolveVariableFallsBackToLoaders(t *testing.T) {
	cfg := NewClientConfig()
	cfg.LoadVariablesFrom = []VariablesConfig{&fakeVariablesConfig{vars: map[string]string{"FROM_LOADER": "x"}}}

	v, err := cfg.resolveVariable("FROM_LOADER")
	if err != nil || v != "x" {
		t.Fatalf("expected loader value, got %q, %v", v, err)
	}
}

func TestResolveVariableFallsBackToEnvironment(t *testing.T) {
	t.Setenv("UTCP_TEST_ENV_VAR", "env-value")
	cfg := NewClientConfig()

	v, err := cfg.resolveVariable("UTCP_TEST_ENV_VAR")
	if err != nil || v != "env-value" {
		t.Fatalf("expected environment fallback, got %q, %v", v, err)
	}
}

func TestResolveVariableNotFound(t *testing.T) {
	cfg := NewClientConfig()
	if _, err := cfg.resolveVariable("DEFINITELY_UNSET_VAR_XYZ"); err == nil {
		t.Fatalf("expected VariableNotFoundError")
	}
}
