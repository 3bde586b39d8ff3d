// Package blockspec describes the input/output handle set of every block
// type the Compiler and Scheduler need static knowledge of: the built-in
// control-flow blocks, plus whatever external handlers register themselves
// through a HandlerRegistry (pkg/executor).
package blockspec

// Spec names a block type's declared handles. The Compiler uses this to
// validate that every edge's (source_handle, target_handle) pair is legal
// for the block types it connects; the Scheduler uses it to know which
// control-flow blocks get special treatment.
type Spec struct {
	Type          string
	InputHandles  []string
	OutputHandles []string
	// ControlFlow marks the eight block types the Scheduler interprets
	// itself rather than delegating to a registered BlockHandler.
	ControlFlow bool
}

// HasInput reports whether handle is a declared input of this block type. A
// Spec with no declared input handles accepts any handle name (used for
// external handler types this package has no static knowledge of).
func (s Spec) HasInput(handle string) bool {
	if len(s.InputHandles) == 0 {
		return true
	}
	for _, h := range s.InputHandles {
		if h == handle {
			return true
		}
	}
	return false
}

// HasOutput reports whether handle is a declared output of this block type.
func (s Spec) HasOutput(handle string) bool {
	if len(s.OutputHandles) == 0 {
		return true
	}
	for _, h := range s.OutputHandles {
		if h == handle {
			return true
		}
	}
	return false
}

// Control-flow block type names (spec §4.4.5).
const (
	TypeStart        = "control.start"
	TypeEnd          = "control.end"
	TypeDelay        = "control.delay"
	TypeCondition    = "control.condition"
	TypeLoop         = "control.loop"
	TypeParallel     = "control.parallel"
	TypeVariableSet  = "control.variable_set"
	TypeVariableGet  = "control.variable_get"
)

// Condition/loop source handle names (spec §4.4.2, §4.5).
const (
	HandleTrue       = "true"
	HandleFalse      = "false"
	HandleIteration  = "iteration"
	HandleComplete   = "complete"
	HandleIn         = "in"
	HandleOut        = "out"
)

// controlFlowSpecs is the static table of built-in block handles.
var controlFlowSpecs = map[string]Spec{
	TypeStart: {
		Type: TypeStart, OutputHandles: []string{HandleOut}, ControlFlow: true,
	},
	TypeEnd: {
		Type: TypeEnd, InputHandles: []string{HandleIn}, ControlFlow: true,
	},
	TypeDelay: {
		Type: TypeDelay, InputHandles: []string{HandleIn}, OutputHandles: []string{HandleOut}, ControlFlow: true,
	},
	TypeCondition: {
		Type: TypeCondition, InputHandles: []string{HandleIn}, OutputHandles: []string{HandleTrue, HandleFalse}, ControlFlow: true,
	},
	TypeLoop: {
		Type: TypeLoop, InputHandles: []string{HandleIn}, OutputHandles: []string{HandleIteration, HandleComplete}, ControlFlow: true,
	},
	TypeParallel: {
		// branch_1..branch_k are dynamic (config-declared); an empty
		// OutputHandles list makes HasOutput permissive for this type.
		Type: TypeParallel, InputHandles: []string{HandleIn}, ControlFlow: true,
	},
	TypeVariableSet: {
		Type: TypeVariableSet, InputHandles: []string{HandleIn}, OutputHandles: []string{HandleOut}, ControlFlow: true,
	},
	TypeVariableGet: {
		Type: TypeVariableGet, InputHandles: []string{HandleIn}, OutputHandles: []string{HandleOut}, ControlFlow: true,
	},
}

// IsControlFlow reports whether typ is one of the eight built-in
// control-flow block types the Scheduler interprets directly.
func IsControlFlow(typ string) bool {
	s, ok := controlFlowSpecs[typ]
	return ok && s.ControlFlow
}

// Lookup returns the static Spec for a control-flow block type. External
// handler types are looked up through a HandlerRegistry instead (see
// pkg/executor.Registry.Lookup), whose BlockHandler.InputHandles /
// OutputHandles populate an equivalent Spec at compile time.
func Lookup(typ string) (Spec, bool) {
	s, ok := controlFlowSpecs[typ]
	return s, ok
}

// FromHandler builds a Spec from a registered handler's declared handles,
// for block types not covered by the static control-flow table.
func FromHandler(typ string, inputHandles, outputHandles []string) Spec {
	return Spec{Type: typ, InputHandles: inputHandles, OutputHandles: outputHandles}
}
