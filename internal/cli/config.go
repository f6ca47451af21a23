package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arbiter-io/arbiter/internal/registry"
)

// Config is the optional YAML configuration file.
//
// Example:
//
//	database: /var/lib/arbiter/arbiter.db
//	agent: builder-1
//	workspace: /srv/checkout
//	acl:
//	  admins: [operator]
//	  rules:
//	    - agent: "builder-*"
//	      namespace: "build"
type Config struct {
	Database  string    `yaml:"database,omitempty"`
	Agent     string    `yaml:"agent,omitempty"`
	Workspace string    `yaml:"workspace,omitempty"`
	ACL       ACLConfig `yaml:"acl,omitempty"`
}

// ACLConfig configures the namespace authorizer.
type ACLConfig struct {
	Admins []string           `yaml:"admins,omitempty"`
	Rules  []registry.ACLRule `yaml:"rules,omitempty"`
}

// LoadConfig reads a YAML config file. A missing path returns the zero
// config without error so every setting stays optional.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig overlays config file values under explicit flags: flags win.
func applyConfig(opts *RootOptions, cfg Config) {
	if opts.Database == "arbiter.db" && cfg.Database != "" {
		opts.Database = cfg.Database
	}
	if opts.AgentID == "" && cfg.Agent != "" {
		opts.AgentID = cfg.Agent
	}
	if opts.Workspace == "." && cfg.Workspace != "" {
		opts.Workspace = cfg.Workspace
	}
}

// authorizerFromConfig builds the namespace authorizer. With no rules and
// no admins configured, every namespace is open.
func authorizerFromConfig(cfg Config) registry.Authorizer {
	if len(cfg.ACL.Rules) == 0 && len(cfg.ACL.Admins) == 0 {
		return registry.AllowAll{}
	}
	return registry.NewStaticAuthorizer(cfg.ACL.Rules, cfg.ACL.Admins)
}
