// Package models resolves the many spellings callers use for the single
// deployed model into its public and upstream names.
package models

import (
	"regexp"
	"strings"
)

// servingTagSuffix matches trailing precision / serving-engine decorations
// such as "/fp-16-fast-vllm-1", ":fp16" and ":fp-16".
var servingTagSuffix = regexp.MustCompile(`(?i)(/fp-16-fast-vllm-\d+|:fp16|:fp-16)$`)

var compactReplacer = strings.NewReplacer("/", "", ":", "", "_", "", "-", "", ".", "")

// Compact lowercases name and removes the characters "/:_-.".
func Compact(name string) string {
	return compactReplacer.Replace(strings.ToLower(name))
}

// StripServingTag removes a single trailing serving-tag suffix from name.
func StripServingTag(name string) string {
	return servingTagSuffix.ReplaceAllString(name, "")
}

// Identity is the process-wide canonical model configuration. It is built
// once at startup and never mutated, so it is safe for concurrent use.
type Identity struct {
	upstreamBase string
	public       string
	aliases      []string
	aliasSet     map[string]struct{}
}

// NewIdentity builds the alias set from the operator-declared aliases, both
// canonical names and their compact forms. Declared aliases keep their order
// and come first; duplicates and blanks are dropped.
func NewIdentity(upstreamBase, public string, extra []string) *Identity {
	id := &Identity{
		upstreamBase: upstreamBase,
		public:       public,
		aliasSet:     make(map[string]struct{}),
	}

	candidates := make([]string, 0, len(extra)+4)
	for _, a := range extra {
		candidates = append(candidates, strings.TrimSpace(a))
	}
	candidates = append(candidates, upstreamBase, public, Compact(upstreamBase), Compact(public))

	for _, a := range candidates {
		if a == "" {
			continue
		}
		if _, ok := id.aliasSet[a]; ok {
			continue
		}
		id.aliasSet[a] = struct{}{}
		id.aliases = append(id.aliases, a)
	}
	return id
}

// Public returns the name exposed to callers.
func (id *Identity) Public() string { return id.public }

// UpstreamBase returns the name the upstream provider expects.
func (id *Identity) UpstreamBase() string { return id.upstreamBase }

// Aliases returns a copy of the alias set in construction order.
func (id *Identity) Aliases() []string {
	out := make([]string, len(id.aliases))
	copy(out, id.aliases)
	return out
}

// IsAlias reports whether name is an exact member of the alias set.
func (id *Identity) IsAlias(name string) bool {
	_, ok := id.aliasSet[name]
	return ok
}

// Match names the rule that resolved a model name.
type Match string

const (
	MatchDefault  Match = "default"
	MatchPublic   Match = "public"
	MatchUpstream Match = "upstream"
	MatchAlias    Match = "alias"
	MatchCompact  Match = "compact"
	MatchSuffix   Match = "suffix"
	// MatchFallback means no rule recognized the name.
	MatchFallback Match = "fallback"
)

// Resolve applies the recognition rules in order and reports which one
// matched. The returned name is always the public model.
func (id *Identity) Resolve(name string) (string, Match) {
	switch {
	case name == "":
		return id.public, MatchDefault
	case name == id.public:
		return id.public, MatchPublic
	case name == id.upstreamBase:
		return id.public, MatchUpstream
	case id.IsAlias(name):
		return id.public, MatchAlias
	}

	c := Compact(name)
	if c == Compact(id.upstreamBase) || c == Compact(id.public) {
		return id.public, MatchCompact
	}
	if StripServingTag(name) == id.upstreamBase {
		return id.public, MatchSuffix
	}
	return id.public, MatchFallback
}

// NormalizeIncoming maps a caller-supplied model name to the public model.
// Unrecognized names are coerced to the public model as well: the relay
// fronts exactly one model and never rejects a spelling.
func (id *Identity) NormalizeIncoming(name string) string {
	public, _ := id.Resolve(name)
	return public
}

// MapToUpstream maps a public name or alias to the upstream model. Like
// NormalizeIncoming it is total and falls back to the upstream base.
func (id *Identity) MapToUpstream(name string) string {
	upstream, _ := id.ResolveUpstream(name)
	return upstream
}

// ResolveUpstream is MapToUpstream with the matching rule reported.
func (id *Identity) ResolveUpstream(name string) (string, Match) {
	switch {
	case name == "":
		return id.upstreamBase, MatchDefault
	case name == id.public:
		return id.upstreamBase, MatchPublic
	}
	if Compact(StripServingTag(name)) == Compact(id.upstreamBase) {
		return id.upstreamBase, MatchSuffix
	}
	return id.upstreamBase, MatchFallback
}
