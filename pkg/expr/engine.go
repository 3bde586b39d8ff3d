package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	exprlang "github.com/expr-lang/expr"

	"github.com/netrun/flowengine/pkg/models"
)

// wholeTemplatePattern matches a template string that is a single
// expression spanning the whole string (§4.1): such a template evaluates to
// its native value rather than being stringified.
var wholeTemplatePattern = regexp.MustCompile(`^\s*\{\{\s*(.+?)\s*\}\}\s*$`)

// anyTemplatePattern matches every {{ ... }} occurrence for the
// interpolation case.
var anyTemplatePattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// pathTokenPattern matches one root.segment[idx].segment | filter(arg) chain.
var pathTokenPattern = regexp.MustCompile(
	`(?:\$[A-Za-z_][A-Za-z0-9_]*|[A-Za-z_][A-Za-z0-9_]*)(?:\[[0-9]+\]|\.[A-Za-z_][A-Za-z0-9_]*)*(?:\s*\|\s*[A-Za-z_][A-Za-z0-9_]*(?:\([^()]*\))?)*`,
)

var reservedLiterals = map[string]bool{"true": true, "false": true, "null": true, "nil": true}

// Engine evaluates templates against a Context. It is stateless and safe
// for concurrent use (§4.1): the only mutable state is the compiled-program
// cache, which is internally synchronized.
type Engine struct {
	cache *programCache
}

// NewEngine creates an evaluator with a compiled-expression cache of the
// given capacity (<=0 uses a sensible default).
func NewEngine(cacheCapacity int) *Engine {
	return &Engine{cache: newProgramCache(cacheCapacity)}
}

// Evaluate implements the Expression Evaluator interface from §4.1.
func (e *Engine) Evaluate(template string, ctx Context) (interface{}, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	if m := wholeTemplatePattern.FindStringSubmatch(template); m != nil {
		return e.evalInner(m[1], ctx)
	}

	var evalErr error
	result := anyTemplatePattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := strings.TrimSpace(match[2 : len(match)-2])
		value, err := e.evalInner(inner, ctx)
		if err != nil {
			evalErr = err
			return ""
		}
		return valueToString(value)
	})
	if evalErr != nil {
		return "", evalErr
	}
	return result, nil
}

// ValidateSyntax reports a template-syntax error without a Context, for the
// Compiler's pre-validation pass (§4.2 step 2). Only parse/compile failures
// are errors; missing data at evaluation time is never an error.
func (e *Engine) ValidateSyntax(template string) error {
	if !strings.Contains(template, "{{") {
		return nil
	}
	matches := anyTemplatePattern.FindAllStringSubmatch(template, -1)
	for _, m := range matches {
		inner := strings.TrimSpace(m[1])
		if _, err := e.compileInner(inner); err != nil {
			return fmt.Errorf("%w: %q: %v", models.ErrTemplateSyntax, inner, err)
		}
	}
	return nil
}

// evalInner evaluates the content between a single pair of {{ }}.
func (e *Engine) evalInner(inner string, ctx Context) (interface{}, error) {
	rewritten, vars, err := e.compileInner(inner)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", models.ErrTemplateSyntax, inner, err)
	}

	resolved := make(map[string]interface{}, len(vars))
	for name, tok := range vars {
		resolved[name] = resolveToken(tok, ctx)
	}

	trimmed := strings.TrimSpace(rewritten)
	if v, ok := resolved[trimmed]; ok {
		// The whole expression was a single path+filter chain: return the
		// native value directly, bypassing expr-lang's type coercion.
		return v, nil
	}

	if len(vars) == 0 && !looksLikeOperatorExpr(trimmed) {
		// No path references and nothing resembling an operator: treat as
		// an opaque literal string fragment.
		return inner, nil
	}

	program, err := e.cache.compile(rewritten, resolved)
	if err != nil {
		// Not a syntax error we rejected up front; treat as a runtime
		// mismatch and yield the input unchanged per §4.1's failure mode.
		return inner, nil
	}
	out, err := exprlang.Run(program, resolved)
	if err != nil {
		return nil, nil
	}
	return out, nil
}

// compileInner rewrites every path+filter token in inner into a synthetic
// variable name, returning the rewritten text and a map from synthetic name
// to the original token text (for later resolution). It is also used as the
// syntax check: an inner string with no path tokens and no recognizable
// operator punctuation is rejected only if expr-lang itself cannot parse it.
func (e *Engine) compileInner(inner string) (string, map[string]string, error) {
	vars := make(map[string]string)
	idx := 0
	rewritten := pathTokenPattern.ReplaceAllStringFunc(inner, func(tok string) string {
		head := tok
		if dot := strings.IndexAny(tok, ".[|"); dot >= 0 {
			head = tok[:dot]
		}
		if reservedLiterals[strings.ToLower(strings.TrimSpace(head))] {
			return tok
		}
		name := fmt.Sprintf("v%d", idx)
		idx++
		vars[name] = strings.TrimSpace(tok)
		return name
	})

	trimmed := strings.TrimSpace(rewritten)
	if _, ok := vars[trimmed]; ok {
		return rewritten, vars, nil
	}
	if len(vars) == 0 && !looksLikeOperatorExpr(trimmed) {
		return rewritten, vars, nil
	}

	env := make(map[string]interface{}, len(vars))
	for name := range vars {
		env[name] = nil
	}
	if _, err := exprlang.Compile(rewritten, exprlang.Env(env)); err != nil {
		return "", nil, err
	}
	return rewritten, vars, nil
}

func looksLikeOperatorExpr(s string) bool {
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<", "&&", "||", "!"} {
		if strings.Contains(s, op) {
			return true
		}
	}
	return false
}

// resolveToken resolves one "root.segment | filter(arg)" token to its
// final value: path resolution followed by the filter pipeline.
func resolveToken(tok string, ctx Context) interface{} {
	parts := strings.Split(tok, "|")
	pathPart := strings.TrimSpace(parts[0])
	segments := splitSegments(pathPart)
	if len(segments) == 0 || !isRootToken(segments[0]) {
		return nil
	}
	value := resolveRoot(ctx, segments)

	for _, stage := range parts[1:] {
		name, args := parseFilterCall(strings.TrimSpace(stage))
		value = applyFilter(value, name, args)
	}
	return value
}

func parseFilterCall(stage string) (string, []string) {
	open := strings.Index(stage, "(")
	if open < 0 || !strings.HasSuffix(stage, ")") {
		return stage, nil
	}
	name := stage[:open]
	argStr := stage[open+1 : len(stage)-1]
	if strings.TrimSpace(argStr) == "" {
		return name, nil
	}
	rawArgs := strings.Split(argStr, ",")
	args := make([]string, len(rawArgs))
	for i, a := range rawArgs {
		a = strings.TrimSpace(a)
		a = strings.Trim(a, `"'`)
		args[i] = a
	}
	return name, args
}

func valueToString(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// HasTemplates reports whether s contains a {{ }} placeholder.
func HasTemplates(s string) bool {
	return anyTemplatePattern.MatchString(s)
}
