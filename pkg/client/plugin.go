package client

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// Plugin interprets policy results of the types it declares. The cache
// consults the plugin registered for a result's type before storing, before
// reusing, and when mapping the raw result to a final decision.
type Plugin interface {
	// SupportedTypes lists the policy types this plugin handles
	SupportedTypes() []types.PolicyType

	// IsCacheable reports whether the result may be stored at all
	IsCacheable(session string, result types.PolicyResult) bool

	// IsUsable reports whether a stored result is still valid for session.
	// prevSession is the session the entry was stored under. When
	// updateSession is true the cache adopts the new session for the entry.
	IsUsable(session, prevSession string, result types.PolicyResult) (usable, updateSession bool)

	// ToResult maps a raw policy result to the final decision code
	ToResult(session string, result types.PolicyResult) errors.ReturnCode

	// Invalidate tells the plugin its cached context is gone
	Invalidate()
}

// NaiveInterpreter handles the predefined ALLOW and DENY types: always
// cacheable, always usable, ALLOW maps to success and everything else to
// access denied.
type NaiveInterpreter struct{}

// SupportedTypes lists ALLOW, DENY and NONE
func (NaiveInterpreter) SupportedTypes() []types.PolicyType {
	return []types.PolicyType{types.TypeAllow, types.TypeDeny, types.TypeNone}
}

// IsCacheable always says yes
func (NaiveInterpreter) IsCacheable(string, types.PolicyResult) bool {
	return true
}

// IsUsable always says yes
func (NaiveInterpreter) IsUsable(string, string, types.PolicyResult) (bool, bool) {
	return true, false
}

// ToResult maps ALLOW to success and anything else to access denied
func (NaiveInterpreter) ToResult(_ string, result types.PolicyResult) errors.ReturnCode {
	if result.Type == types.TypeAllow {
		return errors.CodeSuccess
	}
	return errors.CodeAccessDenied
}

// Invalidate is a no-op
func (NaiveInterpreter) Invalidate() {}
