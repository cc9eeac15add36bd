// Package selection evaluates the host selection language:
//
//	query := group ('|' group)*
//	group := token ('&' token)*
//	token := '!%' tag | '!' name | '%' tag | name
//
// An object matches a query when it satisfies every token of at least one
// group.
package selection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// Kind is the form of a token.
type Kind int

const (
	NotTag Kind = iota
	NotName
	Tag
	Name
)

func (k Kind) String() string {
	switch k {
	case NotTag:
		return "!%"
	case NotName:
		return "!"
	case Tag:
		return "%"
	default:
		return ""
	}
}

// Token is one term of a group.
type Token struct {
	Kind  Kind
	Value string
}

func (t Token) String() string {
	return t.Kind.String() + t.Value
}

// Group is a conjunction of tokens.
type Group []Token

// Query is a parsed selection query.
type Query struct {
	Text   string // normalized source
	Groups []Group
}

// TagFunc reports whether obj carries tag.
type TagFunc func(obj, tag string) bool

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	operatorWS = regexp.MustCompile(` ?([|&]) ?`)
)

// Normalize collapses whitespace, fuses "! " into "!" and drops spaces
// around operators.
func Normalize(query string) string {
	q := spaceRun.ReplaceAllString(query, " ")
	q = strings.ReplaceAll(q, "! ", "!")
	q = operatorWS.ReplaceAllString(q, "$1")
	return strings.TrimSpace(q)
}

// Parse normalizes and parses query.
func Parse(query string) (Query, error) {
	text := Normalize(query)
	if text == "" {
		return Query{}, invalid(query, "query is empty")
	}

	q := Query{Text: text}
	for _, part := range strings.Split(text, "|") {
		if part == "" {
			return Query{}, invalid(query, "empty alternative around '|'")
		}
		var group Group
		for _, raw := range strings.Split(part, "&") {
			tok, err := parseToken(raw)
			if err != nil {
				return Query{}, invalid(query, err.Error())
			}
			group = append(group, tok)
		}
		q.Groups = append(q.Groups, group)
	}
	return q, nil
}

func parseToken(raw string) (Token, error) {
	var tok Token
	switch {
	case raw == "":
		return tok, fmt.Errorf("empty term around '&'")
	case strings.HasPrefix(raw, "!%"):
		tok = Token{Kind: NotTag, Value: raw[2:]}
	case strings.HasPrefix(raw, "!"):
		tok = Token{Kind: NotName, Value: raw[1:]}
	case strings.HasPrefix(raw, "%"):
		tok = Token{Kind: Tag, Value: raw[1:]}
	default:
		tok = Token{Kind: Name, Value: raw}
	}

	if tok.Value == "" {
		return tok, fmt.Errorf("%q needs a name or tag", raw)
	}
	if strings.ContainsAny(tok.Value, " \t!%") {
		return tok, fmt.Errorf("malformed term %q", raw)
	}
	return tok, nil
}

func invalid(query, reason string) *errors.Error {
	return errors.New(errors.ErrQuery,
		fmt.Sprintf("Invalid selection %q: %s", query, reason),
		"Use terms like web1, !web2, %prod or !%staging joined by & and |")
}

// Satisfied reports whether obj satisfies the single token.
func (t Token) Satisfied(obj string, tagged TagFunc) bool {
	switch t.Kind {
	case NotTag:
		return !tagged(obj, t.Value)
	case NotName:
		return obj != t.Value
	case Tag:
		return tagged(obj, t.Value)
	default:
		return obj == t.Value
	}
}

// Match reports whether obj satisfies at least one group. Within a group
// the first violated token stops evaluation.
func (q Query) Match(obj string, tagged TagFunc) bool {
	for _, g := range q.Groups {
		if g.match(obj, tagged) {
			return true
		}
	}
	return false
}

func (g Group) match(obj string, tagged TagFunc) bool {
	for _, tok := range g {
		if !tok.Satisfied(obj, tagged) {
			return false
		}
	}
	return true
}

// Filter returns the matching objects in input order. Each object appears
// at most once, however many groups it satisfies.
func (q Query) Filter(objects []string, tagged TagFunc) []string {
	out := []string{}
	seen := make(map[string]bool, len(objects))
	for _, obj := range objects {
		if seen[obj] || !q.Match(obj, tagged) {
			continue
		}
		seen[obj] = true
		out = append(out, obj)
	}
	return out
}

// TagSet adapts a host -> tags index to a TagFunc.
func TagSet(index map[string]map[string]bool) TagFunc {
	return func(obj, tag string) bool {
		return index[obj][tag]
	}
}
