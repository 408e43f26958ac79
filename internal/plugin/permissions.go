package plugin

import (
	"context"
	"strings"
	"sync"
)

// PermissionChecker decides whether a plugin method may be called
type PermissionChecker interface {
	// Check evaluates a single plugin call
	Check(ctx context.Context, call Call) (Decision, error)
}

// Call describes a plugin method invocation being evaluated
type Call struct {
	Plugin string
	Method string
}

// Decision represents the result of a permission check
type Decision struct {
	Allowed bool
	Reason  string
}

// Permissions is a capability allow/deny list. Identifiers take the form
// "<plugin>:default" (every method), "<plugin>:allow-<method>" and
// "<plugin>:deny-<method>". Method identifiers use dashes, so the method
// "open_url" is granted by "opener:allow-open-url". Deny wins over allow.
type Permissions struct {
	mu    sync.RWMutex
	allow map[string]struct{}
	deny  map[string]struct{}
}

// NewPermissions builds a permission set from capability identifiers
func NewPermissions(identifiers ...string) *Permissions {
	p := &Permissions{
		allow: make(map[string]struct{}),
		deny:  make(map[string]struct{}),
	}
	p.Grant(identifiers...)
	return p
}

// Grant adds capability identifiers to the set
func (p *Permissions) Grant(identifiers ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		pluginName, perm, ok := strings.Cut(id, ":")
		if !ok {
			continue
		}
		switch {
		case perm == "default":
			p.allow[pluginName+":*"] = struct{}{}
		case strings.HasPrefix(perm, "allow-"):
			p.allow[pluginName+":"+strings.TrimPrefix(perm, "allow-")] = struct{}{}
		case strings.HasPrefix(perm, "deny-"):
			p.deny[pluginName+":"+strings.TrimPrefix(perm, "deny-")] = struct{}{}
		}
	}
}

// Check implements PermissionChecker
func (p *Permissions) Check(ctx context.Context, call Call) (Decision, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	method := strings.ReplaceAll(call.Method, "_", "-")
	if _, denied := p.deny[call.Plugin+":"+method]; denied {
		return Decision{Reason: "denied by " + call.Plugin + ":deny-" + method}, nil
	}
	if _, ok := p.allow[call.Plugin+":*"]; ok {
		return Decision{Allowed: true}, nil
	}
	if _, ok := p.allow[call.Plugin+":"+method]; ok {
		return Decision{Allowed: true}, nil
	}
	return Decision{Reason: call.Plugin + "." + call.Method + " not allowed by any capability"}, nil
}

// AllowAll returns a checker that permits every call
func AllowAll() PermissionChecker {
	return allowAll{}
}

type allowAll struct{}

func (allowAll) Check(context.Context, Call) (Decision, error) {
	return Decision{Allowed: true}, nil
}
