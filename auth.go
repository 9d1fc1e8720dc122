package utcp

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// AuthType discriminates the concrete Auth implementation.
type AuthType string

const (
	APIKeyType AuthType = "api_key"
	BasicType  AuthType = "basic"
	OAuth2Type AuthType = "oauth2"
)

// AuthLocation is where a credential gets attached to a request.
type AuthLocation string

const (
	AuthLocationHeader AuthLocation = "header"
	AuthLocationQuery  AuthLocation = "query"
	AuthLocationCookie AuthLocation = "cookie"
)

// Auth is implemented by every concrete auth variant.
type Auth interface {
	Type() AuthType
	Validate() error
}

// ApiKeyAuth carries a static secret applied at a header, query, or cookie
// location.
type ApiKeyAuth struct {
	AuthType AuthType     `json:"auth_type"`
	APIKey   string       `json:"api_key"`
	VarName  string       `json:"var_name"`
	Location AuthLocation `json:"location"`
}

func NewApiKeyAuth(apiKey string) *ApiKeyAuth {
	return &ApiKeyAuth{
		AuthType: APIKeyType,
		APIKey:   apiKey,
		VarName:  "X-Api-Key",
		Location: AuthLocationHeader,
	}
}

func (a *ApiKeyAuth) Type() AuthType { return APIKeyType }

func (a *ApiKeyAuth) Validate() error {
	if a.APIKey == "" {
		return errors.New("api_key must be provided")
	}
	switch a.Location {
	case AuthLocationHeader, AuthLocationQuery, AuthLocationCookie:
	default:
		return errors.New("location must be 'header', 'query', or 'cookie'")
	}
	return nil
}

// BasicAuth is HTTP Basic username/password authentication.
type BasicAuth struct {
	AuthType AuthType `json:"auth_type"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{AuthType: BasicType, Username: username, Password: password}
}

func (b *BasicAuth) Type() AuthType { return BasicType }

func (b *BasicAuth) Validate() error {
	if b.Username == "" {
		return errors.New("username must be provided")
	}
	if b.Password == "" {
		return errors.New("password must be provided")
	}
	return nil
}

// OAuth2Auth is reserved: the kernel/plugins know its shape but token
// acquisition itself is an external collaborator, per spec.md's scope.
type OAuth2Auth struct {
	AuthType     AuthType `json:"auth_type"`
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scope        *string  `json:"scope,omitempty"`
}

func (o *OAuth2Auth) Type() AuthType { return OAuth2Type }

func (o *OAuth2Auth) Validate() error {
	if o.TokenURL == "" || o.ClientID == "" || o.ClientSecret == "" {
		return errors.New("token_url, client_id and client_secret must be provided")
	}
	return nil
}

// unmarshalAuth inspects auth_type and returns the right concrete variant.
// An empty or null raw message (absent "auth" field), or an empty
// auth_type, returns (nil, nil).
func unmarshalAuth(raw json.RawMessage) (Auth, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var disc struct {
		AuthType AuthType `json:"auth_type"`
	}
	if err := json.Unmarshal(raw, &disc); err != nil {
		return nil, err
	}
	var a Auth
	switch disc.AuthType {
	case APIKeyType:
		a = &ApiKeyAuth{}
	case BasicType:
		a = &BasicAuth{}
	case OAuth2Type:
		a = &OAuth2Auth{}
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported auth_type %q", disc.AuthType)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, err
	}
	return a, nil
}

// applyHTTPAuth implements the auth-application table from spec.md §4.2,
// shared verbatim across every HTTP-family plugin (HTTP, HTTP-stream, SSE,
// GraphQL, WebSocket upgrade, MCP-HTTP, WebRTC signaling).
func applyHTTPAuth(req *http.Request, auth Auth) error {
	if auth == nil {
		return nil
	}
	switch a := auth.(type) {
	case *ApiKeyAuth:
		if a.APIKey == "" {
			return &AuthError{Msg: "api key not set"}
		}
		switch a.Location {
		case AuthLocationHeader:
			req.Header.Set(a.VarName, a.APIKey)
		case AuthLocationQuery:
			q := req.URL.Query()
			q.Set(a.VarName, a.APIKey)
			req.URL.RawQuery = q.Encode()
		case AuthLocationCookie:
			req.AddCookie(&http.Cookie{Name: a.VarName, Value: a.APIKey})
		default:
			return &AuthError{Msg: fmt.Sprintf("unsupported api_key location %q", a.Location)}
		}
	case *BasicAuth:
		req.SetBasicAuth(a.Username, a.Password)
	case *OAuth2Auth:
		return &AuthError{Msg: "oauth2 is not supported by this plugin"}
	default:
		return &AuthError{Msg: fmt.Sprintf("unsupported auth type %T", auth)}
	}
	return nil
}

// basicAuthHeaderValue builds the "Basic base64(u:p)" value, used by
// plugins (gRPC metadata, WebSocket upgrade headers) that can't use
// http.Request.SetBasicAuth directly.
func basicAuthHeaderValue(username, password string) string {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + token
}
