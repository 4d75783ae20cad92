package server

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// checkContext tracks one check parked on an agent round-trip. The checkId is
// the sequence number of the AgentActionRequest; the client's own sequence
// number is kept so the eventual response lands on the right request.
type checkContext struct {
	checkID   uint16
	conn      *Connection
	clientSeq uint16
	key       types.PolicyKey
	plugin    ServicePlugin
	cancelled bool
}

// contextRegistry issues check ids and tracks parked checks
type contextRegistry struct {
	contexts map[uint16]*checkContext
	nextID   uint16
}

func newContextRegistry() *contextRegistry {
	return &contextRegistry{contexts: make(map[uint16]*checkContext)}
}

// create parks a check and returns its context with a fresh checkId
func (r *contextRegistry) create(conn *Connection, clientSeq uint16, key types.PolicyKey, plugin ServicePlugin) *checkContext {
	for {
		r.nextID++
		if _, taken := r.contexts[r.nextID]; !taken {
			break
		}
	}
	ctx := &checkContext{
		checkID:   r.nextID,
		conn:      conn,
		clientSeq: clientSeq,
		key:       key,
		plugin:    plugin,
	}
	r.contexts[ctx.checkID] = ctx
	return ctx
}

// take removes and returns the context for a checkId
func (r *contextRegistry) take(checkID uint16) (*checkContext, bool) {
	ctx, ok := r.contexts[checkID]
	if ok {
		delete(r.contexts, checkID)
	}
	return ctx, ok
}

// findByRequest locates the pending context for one client request
func (r *contextRegistry) findByRequest(conn *Connection, clientSeq uint16) (*checkContext, bool) {
	for _, ctx := range r.contexts {
		if ctx.conn == conn && ctx.clientSeq == clientSeq {
			return ctx, true
		}
	}
	return nil, false
}

// forConnection lists every pending context belonging to a connection
func (r *contextRegistry) forConnection(conn *Connection) []*checkContext {
	var out []*checkContext
	for _, ctx := range r.contexts {
		if ctx.conn == conn {
			out = append(out, ctx)
		}
	}
	return out
}

// forAgent lists every pending context waiting on an agent type
func (r *contextRegistry) forAgent(agentType string) []*checkContext {
	var out []*checkContext
	for _, ctx := range r.contexts {
		if ctx.plugin.AgentType() == agentType {
			out = append(out, ctx)
		}
	}
	return out
}

// drop removes a context without answering it
func (r *contextRegistry) drop(checkID uint16) {
	delete(r.contexts, checkID)
}
