package utcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadProvidersFromBytesArrayShape(t *testing.T) {
	data := []byte(`[
		{"name":"weather","provider_type":"http","url":"https://example.com/weather"},
		{"provider_type":"http","url":"https://example.com/unnamed"}
	]`)
	providers, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.NoError(t, err)
	require.Len(t, providers, 2)
	require.Equal(t, "weather", providers[0].Base().Name)
	require.Equal(t, "http_1", providers[1].Base().Name)
}

func TestLoadProvidersFromBytesManualCallTemplatesShape(t *testing.T) {
	data := []byte(`{"manual_call_templates": {
		"weather": {"provider_type": "http", "url": "https://example.com"}
	}}`)
	providers, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, "weather", providers[0].Base().Name)
}

func TestLoadProvidersFromBytesSingleProviderObject(t *testing.T) {
	data := []byte(`{"name":"solo","provider_type":"cli","command_name":"echo"}`)
	providers, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	cli, ok := providers[0].(*CliProvider)
	require.True(t, ok)
	require.Equal(t, "echo", cli.CommandName)
}

func TestLoadProvidersFromBytesVariableSubstitution(t *testing.T) {
	cfg := NewClientConfig()
	cfg.Variables["WEATHER_URL"] = "https://weather.example.com"
	data := []byte(`[{"name":"weather","provider_type":"http","url":"${WEATHER_URL}/v1"}]`)

	providers, err := LoadProvidersFromBytes(data, cfg)
	require.NoError(t, err)
	require.Equal(t, "https://weather.example.com/v1", providers[0].(*HttpProvider).URL)
}

func TestLoadProvidersFromBytesMissingVariableErrors(t *testing.T) {
	data := []byte(`[{"name":"weather","provider_type":"http","url":"${DOES_NOT_EXIST_XYZ}"}]`)
	_, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.Error(t, err)
}

func TestLoadProvidersFromBytesLegacyV01Config(t *testing.T) {
	data := []byte(`{"providers": [
		{"name":"weather","provider_type":"http","url":"https://example.com"}
	]}`)
	providers, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, ProtocolHTTP, providers[0].Type())
}

func TestLoadProvidersFromBytesDocumentLevelAllowlistFilters(t *testing.T) {
	data := []byte(`{
		"allowed_communication_protocols": ["http"],
		"manual_call_templates": [
			{"name":"weather","provider_type":"http","url":"https://example.com"},
			{"name":"shell","provider_type":"cli","command_name":"echo"}
		]
	}`)
	providers, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, "weather", providers[0].Base().Name)
}

func TestLoadProvidersFromBytesYAMLManifest(t *testing.T) {
	data := []byte(`
manual_call_templates:
  - name: weather
    provider_type: http
    url: https://example.com/weather
`)
	providers, err := LoadProvidersFromBytes(data, NewClientConfig())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, "weather", providers[0].Base().Name)
	require.Equal(t, "https://example.com/weather", providers[0].(*HttpProvider).URL)
}

func TestMigrateV01ManualRenamesFields(t *testing.T) {
	doc := map[string]any{
		"provider_info": map[string]any{"name": "demo", "version": "1.0", "description": "a manual"},
		"tools": []any{
			map[string]any{
				"name":       "echo",
				"parameters": map[string]any{"type": "object"},
				"provider":   map[string]any{"provider_type": "cli", "command_name": "echo"},
			},
		},
	}
	migrated := migrateV01Manual(doc)

	info, ok := migrated["info"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "demo", info["title"])

	tools, ok := migrated["tools"].([]any)
	require.True(t, ok)
	tool := tools[0].(map[string]any)
	require.Contains(t, tool, "inputs")
	require.NotContains(t, tool, "parameters")
	require.Equal(t, map[string]any{"type": "object"}, tool["outputs"])

	ct, ok := tool["tool_call_template"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "cli", ct["call_template_type"])
	require.NotContains(t, ct, "provider_type")
}

func TestValidateV1ConfigRequiresManualCallTemplatesOrProviders(t *testing.T) {
	require.Error(t, ValidateV1Config(map[string]any{}))
	require.NoError(t, ValidateV1Config(map[string]any{"manual_call_templates": []any{}}))
}

func TestValidateV1ConfigChecksRequiredToolFields(t *testing.T) {
	doc := map[string]any{
		"manual_call_templates": []any{},
		"tools": []any{
			map[string]any{"name": "incomplete"},
		},
	}
	require.Error(t, ValidateV1Config(doc))
}
