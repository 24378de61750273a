package vm

import "github.com/wippyai/wasm-engine/wasm"

// Context is the runtime state of one instance. Index spaces are
// combined: imported entities first in declaration order, then locally
// defined ones.
type Context struct {
	Module    *wasm.Module
	Functions []*Function
	Memories  []*Memory
	Tables    []*Table
	Globals   []*Global

	// TypeIDs maps the module's type indices to engine-wide signature
	// identities; indirect calls compare against these.
	TypeIDs []uint32
}

// Memory returns memory zero, or nil when the module declares none.
func (c *Context) Memory() *Memory {
	if len(c.Memories) == 0 {
		return nil
	}
	return c.Memories[0]
}

// Table returns table zero, or nil when the module declares none.
func (c *Context) Table() *Table {
	if len(c.Tables) == 0 {
		return nil
	}
	return c.Tables[0]
}
