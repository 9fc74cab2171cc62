// Package alias resolves import path aliases declared in tsconfig.json and
// jsconfig.json files anywhere under a project root.
package alias

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// Target is one candidate location for an alias, relative to the project
// root. Scope is the directory of the config file that declared it ("" for
// the root). Explicit targets come from caller options rather than a config
// file and win over every scoped target.
type Target struct {
	Path     string
	Scope    string
	Explicit bool
}

type pattern struct {
	key     string
	re      *regexp.Regexp
	targets []Target
}

// Aliases maps alias patterns such as "@app/*" to ordered candidate targets.
// The first target of a matching pattern wins.
type Aliases struct {
	byKey map[string]*pattern
	order []*pattern // longest key first
}

// New returns an empty alias map.
func New() *Aliases {
	return &Aliases{byKey: map[string]*pattern{}}
}

// Len returns the number of alias patterns.
func (a *Aliases) Len() int {
	if a == nil {
		return 0
	}
	return len(a.byKey)
}

// Add registers targets for key. When key already exists the new targets
// are placed ahead of the existing ones.
func (a *Aliases) Add(key string, targets ...Target) {
	if p, ok := a.byKey[key]; ok {
		p.targets = append(append([]Target{}, targets...), p.targets...)
		return
	}
	p := &pattern{key: key, re: compile(key), targets: append([]Target{}, targets...)}
	a.byKey[key] = p
	a.order = append(a.order, p)
	sort.SliceStable(a.order, func(i, j int) bool {
		if len(a.order[i].key) != len(a.order[j].key) {
			return len(a.order[i].key) > len(a.order[j].key)
		}
		return a.order[i].key < a.order[j].key
	})
}

// Targets returns the candidates registered for key in lookup order.
func (a *Aliases) Targets(key string) []Target {
	if a == nil {
		return nil
	}
	if p, ok := a.byKey[key]; ok {
		return append([]Target{}, p.targets...)
	}
	return nil
}

// Keys returns the alias patterns in match order.
func (a *Aliases) Keys() []string {
	if a == nil {
		return nil
	}
	keys := make([]string, len(a.order))
	for i, p := range a.order {
		keys[i] = p.key
	}
	return keys
}

// Match rewrites spec using the first target of the first matching pattern.
func (a *Aliases) Match(spec string) (string, bool) {
	p, capture, ok := a.find(spec)
	if !ok || len(p.targets) == 0 {
		return "", false
	}
	return substitute(p.targets[0].Path, capture), true
}

// MatchFrom is Match for an import written in importer, a project-relative
// path. An explicit target always wins. Otherwise targets declared by a
// config whose directory contains importer are preferred, deepest directory
// first, so a nested config governs its own subtree.
func (a *Aliases) MatchFrom(importer, spec string) (string, bool) {
	p, capture, ok := a.find(spec)
	if !ok || len(p.targets) == 0 {
		return "", false
	}
	best := -1
	for i, t := range p.targets {
		if t.Explicit {
			best = i
			break
		}
		if !inScope(importer, t.Scope) {
			continue
		}
		if best < 0 || depth(t.Scope) > depth(p.targets[best].Scope) {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	return substitute(p.targets[best].Path, capture), true
}

func (a *Aliases) find(spec string) (*pattern, string, bool) {
	if a == nil {
		return nil, "", false
	}
	for _, p := range a.order {
		m := p.re.FindStringSubmatch(spec)
		if m == nil {
			continue
		}
		capture := ""
		if len(m) > 1 {
			capture = m[1]
		}
		return p, capture, true
	}
	return nil, "", false
}

// compile escapes every regex special in key and turns the first literal *
// into a capture group.
func compile(key string) *regexp.Regexp {
	quoted := strings.Replace(regexp.QuoteMeta(key), `\*`, "(.*)", 1)
	return regexp.MustCompile("^" + quoted + "$")
}

func substitute(target, capture string) string {
	out := strings.Replace(target, "*", capture, 1)
	return strings.TrimPrefix(out, "./")
}

func inScope(rel, scope string) bool {
	if scope == "" || scope == "." {
		return true
	}
	return rel == scope || strings.HasPrefix(rel, scope+"/")
}

func depth(scope string) int {
	if scope == "" || scope == "." {
		return 0
	}
	return strings.Count(scope, "/") + 1
}

// Specifier resolves an import specifier written in importer. Alias matches
// and relative specifiers yield a project-relative module path and local
// true. Bare package specifiers are returned unchanged with local false.
func Specifier(aliases *Aliases, importer, spec string) (resolved string, local bool) {
	if m, ok := aliases.MatchFrom(importer, spec); ok {
		return Normalize(".", m), true
	}
	switch {
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), spec == ".", spec == "..":
		return Normalize(path.Dir(importer), spec), true
	case strings.HasPrefix(spec, "/"):
		return Normalize(".", strings.TrimPrefix(spec, "/")), true
	}
	return spec, false
}

// Normalize joins spec onto dir and resolves "." and ".." segments
// lexically. ".." segments that climb above the root are kept.
func Normalize(dir, spec string) string {
	var parts []string
	for _, seg := range strings.Split(dir+"/"+spec, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) > 0 && parts[len(parts)-1] != ".." {
				parts = parts[:len(parts)-1]
			} else {
				parts = append(parts, "..")
			}
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}
