package utcp

import (
	"os"

	"github.com/joho/godotenv"
)

// VariablesConfig is a named source of substitution variables, checked
// after inline config variables and before the process environment.
type VariablesConfig interface {
	Load() error
	Get(key string) (string, bool)
}

// DotEnvConfig loads variables from a .env-formatted file via godotenv,
// grounded on the teacher's UtcpDotEnv.
type DotEnvConfig struct {
	Path string
	vars map[string]string
}

// NewDotEnvConfig builds a loader for the .env file at path. Load must be
// called before Get returns anything.
func NewDotEnvConfig(path string) *DotEnvConfig {
	return &DotEnvConfig{Path: path}
}

func (d *DotEnvConfig) Load() error {
	vars, err := godotenv.Read(d.Path)
	if err != nil {
		return &ConfigError{Msg: "loading dotenv file " + d.Path, Err: err}
	}
	d.vars = vars
	return nil
}

func (d *DotEnvConfig) Get(key string) (string, bool) {
	v, ok := d.vars[key]
	return v, ok
}

// ClientConfig is the top-level configuration passed to NewUtcpClient:
// inline variables, additional variable loaders, and a manifest/template
// path. NewUtcpClient does not read ManifestFilePath; manifests are
// loaded by passing their bytes to LoadProviders.
type ClientConfig struct {
	Variables          map[string]string
	LoadVariablesFrom   []VariablesConfig
	ManifestFilePath    string
}

// NewClientConfig builds an empty ClientConfig ready for field assignment.
func NewClientConfig() *ClientConfig {
	return &ClientConfig{Variables: make(map[string]string)}
}

// resolveVariable implements the three-tier lookup order from spec.md
// §4.6: inline config vars, then loaders in order, then the process
// environment.
func (c *ClientConfig) resolveVariable(name string) (string, error) {
	if c != nil {
		if v, ok := c.Variables[name]; ok {
			return v, nil
		}
		for _, loader := range c.LoadVariablesFrom {
			if v, ok := loader.Get(name); ok {
				return v, nil
			}
		}
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	return "", &VariableNotFoundError{VariableName: name}
}
