package assembly

import "github.com/zjrosen/weft/internal/log"

// scopeTable tracks open sub-agent scopes for one session. A scope opens when
// a Task invocation arrives and stays open for the life of the session; there
// is no close event on the wire.
type scopeTable struct {
	open map[string]*ToolUseBlock

	// orphaned counts invocations whose parent scope was never seen.
	// They land at the top level so nothing is silently lost.
	orphaned int
}

func newScopeTable() *scopeTable {
	return &scopeTable{open: make(map[string]*ToolUseBlock)}
}

// openScope registers a scope-opening invocation so later tool calls can
// attach under it. Re-opening an id replaces the prior registration.
func (t *scopeTable) openScope(b *ToolUseBlock) {
	t.open[b.ID] = b
}

// attach places a child invocation under its parent scope. If the parent id
// is unknown the child is left for top-level placement, the orphan counter
// bumps, and the caller gets false.
func (t *scopeTable) attach(parentID string, child *ToolUseBlock) bool {
	parent, ok := t.open[parentID]
	if !ok {
		t.orphaned++
		log.Warn(log.CatAssembly, "Tool call references unknown parent scope",
			"parentScopeId", parentID, "toolId", child.ID, "tool", child.Name)
		return false
	}
	parent.Children = append(parent.Children, child)
	return true
}

// forget drops a scope registration. Used when a duplicate tool id replaces
// a block that had opened a scope.
func (t *scopeTable) forget(id string) {
	delete(t.open, id)
}
