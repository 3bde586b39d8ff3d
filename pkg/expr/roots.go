package expr

import "strconv"

// resolveRoot resolves a "root.segment.segment" reference against ctx,
// implementing the closed root table from §4.1. "$prev.<seg>" reads the
// output of the completed node named seg; when no completed node has that
// id, seg is read as a field of the offset-0 $prev result instead. It
// returns nil for an unrecognized root (no matching bare identifier either)
// and for any missing segment, since missing data is null, not an error;
// only template *syntax* errors are reported, at compile time.
func resolveRoot(ctx Context, segments []string) interface{} {
	if len(segments) == 0 {
		return nil
	}
	head := segments[0]
	rest := segments[1:]

	switch head {
	case "$prev":
		if len(rest) == 0 {
			v, _ := ctx.PreviousResultByOffset(0)
			return v
		}
		first := rest[0]
		if n, err := strconv.Atoi(first); err == nil {
			v, ok := ctx.PreviousResultByOffset(n)
			if !ok {
				return nil
			}
			return resolvePath(v, rest[1:])
		}
		v, ok := ctx.PreviousResult(first)
		if !ok {
			v, ok = ctx.PreviousResultByOffset(0)
			if !ok {
				return nil
			}
			return resolvePath(v, rest)
		}
		return resolvePath(v, rest[1:])

	case "$vars":
		return resolvePath(mapToInterface(ctx.WorkflowScope()), rest)

	case "$env":
		return resolvePath(mapToInterface(ctx.Env()), rest)

	case "$creds":
		return resolvePath(mapToInterface(ctx.Credentials()), rest)

	case "$loop":
		frame := ctx.LoopFrame()
		if frame == nil {
			return nil
		}
		return resolvePath(mapToInterface(frame), rest)

	case "$input":
		scope := ctx.WorkflowScope()
		input, ok := scope["input"]
		if !ok {
			return nil
		}
		return resolvePath(input, rest)

	default:
		// Bare identifier: workflow_scope[id] then global_scope(env)[id].
		if v, ok := ctx.WorkflowScope()[head]; ok {
			return resolvePath(v, rest)
		}
		if v, ok := ctx.Env()[head]; ok {
			return resolvePath(v, rest)
		}
		return nil
	}
}

func mapToInterface(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// isRootToken reports whether head names one of the closed roots or is a
// syntactically valid bare identifier root.
func isRootToken(head string) bool {
	switch head {
	case "$prev", "$vars", "$env", "$creds", "$loop", "$input":
		return true
	}
	if head == "" {
		return false
	}
	c := head[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
