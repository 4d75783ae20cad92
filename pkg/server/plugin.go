package server

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// ServicePlugin interprets plugin-typed policy results on the daemon side.
// When the engine yields a type a plugin claims, the dispatcher parks the
// check and consults the plugin's agent; the plugin turns the agent's answer
// into a terminal result.
type ServicePlugin interface {
	// SupportedTypes lists the policy types this plugin handles
	SupportedTypes() []types.PolicyType

	// AgentType names the agent consulted for these types
	AgentType() string

	// AgentData renders the question forwarded to the agent
	AgentData(key types.PolicyKey, result types.PolicyResult) string

	// Interpret maps the agent's reply to a terminal result
	Interpret(key types.PolicyKey, data string) types.PolicyResult

	// Description names the plugin's types for the admin description list
	Description() string
}

// pluginRegistry maps policy types to their service plugins
type pluginRegistry struct {
	plugins map[types.PolicyType]ServicePlugin
}

func newPluginRegistry() *pluginRegistry {
	return &pluginRegistry{plugins: make(map[types.PolicyType]ServicePlugin)}
}

// register binds a plugin to every type it supports; later wins
func (r *pluginRegistry) register(p ServicePlugin) {
	for _, t := range p.SupportedTypes() {
		r.plugins[t] = p
	}
}

// forType returns the plugin handling a policy type
func (r *pluginRegistry) forType(t types.PolicyType) (ServicePlugin, bool) {
	p, ok := r.plugins[t]
	return p, ok
}

// descriptions lists every supported policy type: the predefined four plus
// one entry per plugin-claimed type, sorted by type value
func (r *pluginRegistry) descriptions() []protocol.PolicyDescription {
	out := []protocol.PolicyDescription{
		{Type: types.TypeDeny, Name: "DENY"},
		{Type: types.TypeNone, Name: "NONE"},
		{Type: types.TypeBucket, Name: "BUCKET"},
		{Type: types.TypeAllow, Name: "ALLOW"},
	}
	for t, p := range r.plugins {
		out = append(out, protocol.PolicyDescription{Type: t, Name: p.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
