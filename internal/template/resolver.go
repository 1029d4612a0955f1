// Package template substitutes {$.path} placeholders inside nested parameter
// structures with values taken from a job context.
//
// Placeholders may make up a whole string ("{$.user.email}") or be embedded in
// surrounding text ("Hello {$.user.name}!"). A placeholder that cannot be
// resolved is replaced by NoValue and reported; resolution itself never fails.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	// NoValue replaces placeholders whose path is missing or empty.
	NoValue = "{No Value}"

	// RuntimeNamespace is the top-level context key holding injected values.
	RuntimeNamespace = "runtime"
)

var (
	placeholderRe = regexp.MustCompile(`\{(\$[^{}]*)\}`)
	exactRe       = regexp.MustCompile(`^\{(\$[^{}]*)\}$`)
)

// Options controls a resolution.
type Options struct {
	// OmitNoValueForExactTemplates substitutes "" instead of NoValue when a
	// string consisting of a single placeholder fails, and drops the owning
	// map entry or slice element.
	OmitNoValueForExactTemplates bool

	// InjectRuntimeNamespace merges runtime.time.now and runtime.random.uuid
	// into the context. Values already present in the context win.
	InjectRuntimeNamespace bool

	// Now and NewID feed the injected values. Nil means the wall clock and
	// random UUIDv4s.
	Now   func() time.Time
	NewID func() string
}

// DefaultOptions returns options with runtime injection enabled.
func DefaultOptions() *Options {
	return &Options{InjectRuntimeNamespace: true}
}

// Resolve returns a copy of input with every placeholder substituted, along
// with one message per placeholder that was missing or empty. jobCtx is not
// modified. A nil opts means DefaultOptions.
func Resolve(input any, jobCtx map[string]any, opts *Options) (any, []string) {
	if opts == nil {
		opts = DefaultOptions()
	}

	r := &resolver{
		ctx:  jobCtx,
		omit: opts.OmitNoValueForExactTemplates,
	}
	if opts.InjectRuntimeNamespace {
		r.ctx = withRuntime(jobCtx, opts)
	}

	out, _ := r.walk(input)
	return out, r.errs
}

type resolver struct {
	ctx  map[string]any
	omit bool
	errs []string
}

// walk resolves v. The second result reports that v was a template that
// resolved to "" under omit and should be dropped by its container.
func (r *resolver) walk(v any) (any, bool) {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		// Sorted keys keep the error order stable.
		for _, k := range slices.Sorted(maps.Keys(node)) {
			child := node[k]
			res, drop := r.walk(child)
			if drop {
				continue
			}
			out[k] = res
		}
		return out, false

	case []any:
		out := make([]any, 0, len(node))
		for _, child := range node {
			res, drop := r.walk(child)
			if drop {
				continue
			}
			out = append(out, res)
		}
		return out, false

	case string:
		return r.resolveString(node)

	default:
		return v, false
	}
}

func (r *resolver) resolveString(s string) (string, bool) {
	if m := exactRe.FindStringSubmatch(s); m != nil {
		val, ok := r.value(m[1])
		if ok {
			return val, false
		}
		if r.omit {
			return "", true
		}
		return NoValue, false
	}

	if !placeholderRe.MatchString(s) {
		return s, false
	}

	out := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		val, ok := r.value(match[1 : len(match)-1])
		if !ok {
			return NoValue
		}
		return val
	})
	return out, false
}

// value looks up path and renders it as text, recording a message when the
// path is missing or resolves to an empty string.
func (r *resolver) value(path string) (string, bool) {
	segs, ok := parsePath(path)
	var found any
	if ok {
		found, ok = lookup(r.ctx, segs)
	}
	if !ok {
		r.errs = append(r.errs, fmt.Sprintf("failed to extract field '%s': field not found", path))
		return "", false
	}

	text := render(found)
	if text == "" {
		r.errs = append(r.errs, fmt.Sprintf("failed to extract field '%s': field is empty", path))
		return "", false
	}
	return text, true
}

// render returns strings as-is and everything else as compact JSON.
func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// withRuntime returns a shallow copy of jobCtx with the runtime namespace
// merged in.
func withRuntime(jobCtx map[string]any, opts *Options) map[string]any {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	injected := map[string]any{
		"time":   map[string]any{"now": now().UTC().Truncate(time.Second).Format(time.RFC3339)},
		"random": map[string]any{"uuid": newID()},
	}

	out := make(map[string]any, len(jobCtx)+1)
	for k, v := range jobCtx {
		out[k] = v
	}
	out[RuntimeNamespace] = merge(injected, jobCtx[RuntimeNamespace])
	return out
}

// merge overlays existing onto injected. Anything that is not a map replaces
// injected outright.
func merge(injected map[string]any, existing any) any {
	if existing == nil {
		return injected
	}
	m, ok := existing.(map[string]any)
	if !ok {
		return existing
	}

	out := make(map[string]any, len(injected)+len(m))
	for k, v := range injected {
		out[k] = v
	}
	for k, v := range m {
		if sub, ok := out[k].(map[string]any); ok {
			out[k] = merge(sub, v)
			continue
		}
		out[k] = v
	}
	return out
}
