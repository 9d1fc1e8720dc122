package utcp

import "testing"

func TestUnmarshalProviderDispatchesOnProviderType(t *testing.T) {
	data := []byte(`{"name":"weather","provider_type":"http","url":"https://example.com"}`)
	p, err := unmarshalProvider(data)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	http, ok := p.(*HttpProvider)
	if !ok {
		t.Fatalf("expected *HttpProvider, got %T", p)
	}
	if http.Name != "weather" || http.URL != "https://example.com" {
		t.Fatalf("fields not populated: %#v", http)
	}
	if http.HTTPMethod != "GET" || http.ContentType != "application/json" {
		t.Fatalf("expected HTTP defaults applied, got %#v", http)
	}
}

func TestUnmarshalProviderAcceptsLegacyTypeField(t *testing.T) {
	data := []byte(`{"name":"gq","type":"graphql","url":"https://example.com/graphql"}`)
	p, err := unmarshalProvider(data)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	gq, ok := p.(*GraphQLProvider)
	if !ok {
		t.Fatalf("expected *GraphQLProvider, got %T", p)
	}
	if gq.OperationType != "query" {
		t.Fatalf("expected default operation_type query, got %q", gq.OperationType)
	}
}

func TestUnmarshalProviderUnknownTypeErrors(t *testing.T) {
	data := []byte(`{"name":"mystery","provider_type":"carrier_pigeon"}`)
	if _, err := unmarshalProvider(data); err == nil {
		t.Fatalf("expected error for unknown provider_type")
	}
}

func TestUnmarshalProviderWithAuth(t *testing.T) {
	data := []byte(`{"name":"secured","provider_type":"http","url":"https://x",
		"auth":{"auth_type":"api_key","api_key":"secret","var_name":"X-Api-Key","location":"header"}}`)
	p, err := unmarshalProvider(data)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	auth, ok := p.Base().Auth.(*ApiKeyAuth)
	if !ok {
		t.Fatalf("expected *ApiKeyAuth, got %T", p.Base().Auth)
	}
	if auth.APIKey != "secret" {
		t.Fatalf("expected api key to round-trip, got %q", auth.APIKey)
	}
}

func TestBaseProviderAllowedProtocolsDefaultsToOwnTag(t *testing.T) {
	b := &BaseProvider{Name: "p", ProviderType: ProtocolHTTP}
	if got := b.AllowedProtocols(); len(got) != 1 || got[0] != ProtocolHTTP {
		t.Fatalf("expected default allow-list {http}, got %v", got)
	}
	if !b.IsProtocolAllowed(ProtocolHTTP) {
		t.Fatalf("expected own protocol to be allowed by default")
	}
	if b.IsProtocolAllowed(ProtocolGRPC) {
		t.Fatalf("expected a different protocol to be denied by default")
	}
}

func TestBaseProviderAllowedProtocolsExplicitList(t *testing.T) {
	b := &BaseProvider{
		Name:                       "p",
		ProviderType:               ProtocolHTTP,
		AllowedCommunicationProtos: []ProtocolTag{ProtocolHTTP, ProtocolSSE},
	}
	if !b.IsProtocolAllowed(ProtocolSSE) {
		t.Fatalf("expected sse to be allowed when explicitly listed")
	}
	if b.IsProtocolAllowed(ProtocolGRPC) {
		t.Fatalf("expected grpc to remain denied")
	}
}
