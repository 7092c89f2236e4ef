// SPDX-License-Identifier: Apache-2.0

package state

import "stflow/ir"

// Frame is (graph reference, scope prefix, return-label) (§3 "Frame").
// Scope prefix qualifies variable names: accessing `x` while ScopePrefix is
// "P.f" resolves to flattened name "P.f.x". Frame has no back-pointer to
// its caller; the call stack is a plain slice, per the "cyclic object
// graphs" design note (§9) which replaces pointer-linked frames with
// arena/slice-relative data.
type Frame struct {
	Graph       string
	ScopePrefix string
	ReturnLabel ir.Label
}

// Qualify resolves an unqualified local name to its flattened dotted path
// within this frame's scope.
func (f Frame) Qualify(name string) string {
	if f.ScopePrefix == "" {
		return name
	}
	return f.ScopePrefix + "." + name
}

// Equal reports whether two frames are structurally identical, used by the
// Merger to check its "call stacks of A and B must be equal" precondition
// (§4.5, and the "Different frame stacks" supplemented scenario).
func (f Frame) Equal(other Frame) bool {
	return f.Graph == other.Graph && f.ScopePrefix == other.ScopePrefix && f.ReturnLabel == other.ReturnLabel
}

// CallStackEqual reports whether two call stacks are structurally equal,
// frame by frame.
func CallStackEqual(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneCallStack returns an independent copy of a call stack slice.
func CloneCallStack(stack []Frame) []Frame {
	out := make([]Frame, len(stack))
	copy(out, stack)
	return out
}
