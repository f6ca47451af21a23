package registry

import (
	"errors"
	"fmt"
	"path"
)

// Authorizer resolves whether an agent may operate in a namespace. The ACL
// itself is configured elsewhere; the registry only consults it.
type Authorizer interface {
	Authorized(agentID, namespace string) bool
}

// AuthorizationError is raised when an agent addresses a namespace it is not
// allowed to use. This is caller misconfiguration, not contention, so it is
// an error rather than a decision.
type AuthorizationError struct {
	AgentID   string
	Namespace string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("agent %q is not authorized for namespace %q", e.AgentID, e.Namespace)
}

// IsAuthorizationError reports whether err is an authorization failure.
// Uses errors.As to handle wrapped errors.
func IsAuthorizationError(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// ACLRule grants one agent pattern access to one namespace pattern.
// Patterns use path.Match syntax ("team-*", "builder-?").
type ACLRule struct {
	Agent     string `yaml:"agent"`
	Namespace string `yaml:"namespace"`
}

// StaticAuthorizer is a pattern-matching Authorizer built from a fixed rule
// set, with a global-admin override.
type StaticAuthorizer struct {
	rules  []ACLRule
	admins map[string]bool
}

// NewStaticAuthorizer builds an authorizer from rules and admin agent IDs.
// Admins are authorized for every namespace.
func NewStaticAuthorizer(rules []ACLRule, admins []string) *StaticAuthorizer {
	adminSet := make(map[string]bool, len(admins))
	for _, a := range admins {
		adminSet[a] = true
	}
	return &StaticAuthorizer{rules: rules, admins: adminSet}
}

// Authorized reports whether any rule matches the (agent, namespace) pair,
// or the agent is a global admin.
func (a *StaticAuthorizer) Authorized(agentID, namespace string) bool {
	if a.admins[agentID] {
		return true
	}
	for _, rule := range a.rules {
		if matchPattern(rule.Agent, agentID) && matchPattern(rule.Namespace, namespace) {
			return true
		}
	}
	return false
}

// AllowAll authorizes every agent for every namespace. Used when no ACL is
// configured.
type AllowAll struct{}

// Authorized always returns true.
func (AllowAll) Authorized(string, string) bool { return true }

func matchPattern(pattern, s string) bool {
	if pattern == "" {
		return false
	}
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}
