// Package template implements the restricted placeholder grammar used
// for action parameters: {{ path.to.value }} with at most one pipe
// filter. Resolution is pure path access plus a fixed filter set, so
// the same event context always yields the same output.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// Resolver substitutes {{ ... }} placeholders against a Context.
// Resolution is pure: same template and context always produce the
// same output.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve replaces every placeholder in the template string. A missing
// path resolves to an empty string unless a default filter supplies a
// fallback; only malformed templates (unclosed braces, unknown filters)
// produce an error.
func (r *Resolver) Resolve(tmpl string, c *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var result strings.Builder
	result.Grow(len(tmpl))

	i := 0
	for i < len(tmpl) {
		idx := strings.Index(tmpl[i:], "{{")
		if idx == -1 {
			result.WriteString(tmpl[i:])
			break
		}

		result.WriteString(tmpl[i : i+idx])
		start := i + idx + 2

		end := strings.Index(tmpl[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeTemplate, "unclosed {{ expression")
		}
		end += start

		expr := strings.TrimSpace(tmpl[start:end])
		if expr == "" {
			return "", schema.NewError(schema.ErrCodeTemplate, "empty placeholder: {{ }}")
		}

		val, err := r.ResolveExpr(expr, c)
		if err != nil {
			return "", err
		}
		result.WriteString(stringify(val))

		i = end + 2
	}

	return result.String(), nil
}

// ResolveExpr evaluates a single placeholder expression, i.e. a dotted
// path with an optional pipe filter, and returns the raw value. Missing
// paths yield nil (or the default filter's fallback).
func (r *Resolver) ResolveExpr(expr string, c *Context) (any, error) {
	path := expr
	var filterExpr string
	if pipe := strings.Index(expr, "|"); pipe != -1 {
		path = strings.TrimSpace(expr[:pipe])
		filterExpr = strings.TrimSpace(expr[pipe+1:])
		if strings.Contains(filterExpr, "|") {
			return nil, schema.NewErrorf(schema.ErrCodeTemplate,
				"at most one filter is allowed in %q", expr)
		}
	}

	val := lookupPath(c.Data(), path)

	if filterExpr == "" {
		return val, nil
	}
	return applyFilter(val, filterExpr, expr)
}

// ResolveParams deep-copies an action params map, resolving every
// string leaf (including strings nested in maps and slices).
func (r *Resolver) ResolveParams(params map[string]any, c *Context) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	resolved, err := r.resolveValue(params, c)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

func (r *Resolver) resolveValue(v any, c *Context) (any, error) {
	switch val := v.(type) {
	case string:
		return r.Resolve(val, c)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			rv, err := r.resolveValue(inner, c)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			rv, err := r.resolveValue(inner, c)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// lookupPath walks a dotted path through nested maps. A trailing "()"
// on a segment is tolerated so "datetime.now()" and "datetime.now"
// resolve identically. Missing segments yield nil.
func lookupPath(root map[string]any, path string) any {
	var current any = root
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSuffix(seg, "()")
		if seg == "" {
			return nil
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

// applyFilter applies the single allowed pipe filter to a value.
func applyFilter(val any, filterExpr, fullExpr string) (any, error) {
	name, arg := parseFilter(filterExpr)

	switch name {
	case "default":
		if val == nil || val == "" {
			return arg, nil
		}
		return val, nil
	case "number":
		return coerceNumber(val), nil
	case "upper":
		return strings.ToUpper(stringify(val)), nil
	case "lower":
		return strings.ToLower(stringify(val)), nil
	case "trim":
		return strings.TrimSpace(stringify(val)), nil
	case "format":
		if arg == "" {
			return nil, schema.NewErrorf(schema.ErrCodeTemplate,
				"format filter requires a layout argument in %q", fullExpr)
		}
		if t, err := time.Parse(time.RFC3339, stringify(val)); err == nil {
			return t.Format(arg), nil
		}
		return val, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeTemplate,
			"unknown filter %q in %q; available: default, number, upper, lower, trim, format",
			name, fullExpr)
	}
}

// parseFilter splits "default(x)" into name "default" and arg "x",
// unquoting the argument if quoted.
func parseFilter(filterExpr string) (name, arg string) {
	open := strings.Index(filterExpr, "(")
	if open == -1 {
		return filterExpr, ""
	}
	name = strings.TrimSpace(filterExpr[:open])
	rest := filterExpr[open+1:]
	if close := strings.LastIndex(rest, ")"); close != -1 {
		arg = strings.TrimSpace(rest[:close])
	}
	arg = strings.Trim(arg, `"'`)
	return name, arg
}

// coerceNumber converts a value to float64 where possible.
func coerceNumber(val any) any {
	switch n := val.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
		return float64(0)
	case bool:
		if n {
			return float64(1)
		}
		return float64(0)
	default:
		return float64(0)
	}
}

// stringify renders a resolved value for embedding into a string.
func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
