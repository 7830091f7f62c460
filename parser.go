// ═══════════════════════════════════════════════════════════════════════════════
// QUERY PARSER: prefix-operator syntax → optimized query operator tree
// ═══════════════════════════════════════════════════════════════════════════════
// Queries are written Indri-style: `#OP(arg1 arg2 …)`, prefix and fully
// parenthesized, e.g. `#AND(#NEAR/2(white house) #SYN(president potus))`.
// A bare argument is a token, optionally suffixed with `.field`
// (`potus.title`); the default field is `body`.
//
// Parsing is a single left-to-right pass: pop the operator name up to its
// `(`, then repeatedly pop one argument at a time — either a balanced
// subquery (if it starts with `#`) or a whitespace-delimited token — until
// the operator's argument string is exhausted. Each popped argument is
// appended to the operator node immediately via appendArg, which enforces
// the family rules (TERM takes none, SCORE takes exactly one IOP, IOP
// siblings must share a field, a SOP given an IOP child gets an implicit
// SCORE wrapper).
//
// A depth-first optimization pass then prunes degenerate structure:
// arguments that optimized to nothing are dropped, operators left with zero
// arguments are deleted, and any non-SCORE operator left with exactly one
// argument is replaced by that argument.
// ═══════════════════════════════════════════════════════════════════════════════
package qryeval

import (
	"strconv"
	"strings"
)

var knownFields = map[string]struct{}{
	"body":     {},
	"title":    {},
	"url":      {},
	"keywords": {},
	"inlink":   {},
}

// ParseQuery parses a fully parenthesized prefix query string into a QOT,
// then applies the optimization pass.
func ParseQuery(queryString string) (QueryNode, error) {
	q, err := parseString(strings.TrimSpace(queryString))
	if err != nil {
		return nil, err
	}
	return optimize(q), nil
}

func parseString(s string) (QueryNode, error) {
	if strings.Count(s, "(") == 0 || strings.Count(s, "(") != strings.Count(s, ")") {
		return nil, syntaxErrorf("missing, unbalanced, or misplaced parentheses in %q", s)
	}
	closeIdx, err := indexOfBalancingParen(s)
	if err != nil {
		return nil, err
	}
	if closeIdx != len(s)-1 {
		return nil, syntaxErrorf("outermost operator must span the whole input: %q", s)
	}

	openIdx := strings.Index(s, "(")
	opName := strings.TrimSpace(s[:openIdx])
	queryTree, err := createOperator(opName)
	if err != nil {
		return nil, err
	}

	rest := strings.TrimSpace(s[openIdx+1 : closeIdx])

	for len(rest) > 0 {
		var weight float64
		weighted := isWeighted(queryTree)
		if weighted {
			weight, rest, err = popWeight(rest)
			if err != nil {
				return nil, err
			}
		}

		var args []QueryNode
		if rest[0] == '#' {
			var sub string
			sub, rest, err = popSubquery(rest)
			if err != nil {
				return nil, err
			}
			subtree, err := parseString(sub)
			if err != nil {
				return nil, err
			}
			args = []QueryNode{subtree}
		} else {
			var token string
			token, rest = popToken(rest)
			terms, err := createTerms(token)
			if err != nil {
				return nil, err
			}
			for _, t := range terms {
				args = append(args, t)
			}
		}

		rest = strings.TrimSpace(rest)

		for _, a := range args {
			if weighted {
				if err := appendWeightedArg(queryTree, weight, a); err != nil {
					return nil, err
				}
			} else {
				if err := appendArg(queryTree, a); err != nil {
					return nil, err
				}
			}
		}
	}

	return queryTree, nil
}

// createOperator builds the node for an operator name, case-insensitively.
// #NEAR and #WINDOW carry a "/k" distance suffix.
func createOperator(name string) (QueryNode, error) {
	lower := strings.ToLower(name)
	switch {
	case lower == "#or":
		return newOrNode(strings.ToUpper(name)), nil
	case lower == "#and":
		return newAndNode(strings.ToUpper(name)), nil
	case lower == "#syn":
		return newSynNode(strings.ToUpper(name)), nil
	case lower == "#sum":
		return newSumNode(strings.ToUpper(name)), nil
	case lower == "#wsum":
		return newWsumNode(strings.ToUpper(name)), nil
	case lower == "#wand":
		return newWandNode(strings.ToUpper(name)), nil
	case strings.HasPrefix(lower, "#near"):
		k, err := parseDistance(lower, "#near")
		if err != nil {
			return nil, err
		}
		return newNearNode(strings.ToUpper(name), k), nil
	case strings.HasPrefix(lower, "#window"):
		k, err := parseDistance(lower, "#window")
		if err != nil {
			return nil, err
		}
		return newWindowNode(strings.ToUpper(name), k), nil
	default:
		return nil, syntaxErrorf("unknown query operator %s", name)
	}
}

func parseDistance(lower, prefix string) (int, error) {
	suffix := strings.TrimPrefix(lower, prefix)
	suffix = strings.TrimPrefix(suffix, "/")
	k, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, syntaxErrorf("invalid distance in operator %s%s", prefix, suffix)
	}
	return k, nil
}

// createTerms splits a token into a term and optional ".field" suffix,
// validates the field, then runs the term through the Analyzer — which may
// yield zero, one, or several TERM nodes (e.g. a hyphenated token).
func createTerms(token string) ([]*termNode, error) {
	term, field := token, "body"
	if i := strings.Index(token, "."); i >= 0 {
		term, field = token[:i], strings.ToLower(token[i+1:])
	}
	if _, ok := knownFields[field]; !ok {
		return nil, syntaxErrorf("unknown field %s", token)
	}

	tokens := Analyze(field, term)
	terms := make([]*termNode, len(tokens))
	for i, t := range tokens {
		terms[i] = newTermNode(field, t)
	}
	return terms, nil
}

func isWeighted(q QueryNode) bool {
	switch q.(type) {
	case *wandNode, *wsumNode:
		return true
	default:
		return false
	}
}

// ───────────────────────────── tree construction (append_arg) ─────────────────────────────

// appendArg enforces the family rules for an unweighted argument.
func appendArg(parent QueryNode, child QueryNode) error {
	switch p := parent.(type) {
	case *termNode:
		return syntaxErrorf("%s takes no arguments", p.name)
	case *scoreNode:
		iop, ok := child.(iopNode)
		if !ok {
			return syntaxErrorf("SCORE requires an inverted-list argument")
		}
		if p.child != nil {
			return syntaxErrorf("SCORE takes exactly one argument")
		}
		p.child = iop
		return nil
	case *synNode:
		return appendIOPChild(&p.field, &p.children, child, p.name)
	case *nearNode:
		return appendIOPChild(&p.field, &p.children, child, p.name)
	case *windowNode:
		return appendIOPChild(&p.field, &p.children, child, p.name)
	case *andNode:
		return appendSOPChild(&p.children, child)
	case *orNode:
		return appendSOPChild(&p.children, child)
	case *sumNode:
		return appendSOPChild(&p.children, child)
	case *wandNode:
		return syntaxErrorf("%s requires a weighted argument", p.name)
	case *wsumNode:
		return syntaxErrorf("%s requires a weighted argument", p.name)
	default:
		return syntaxErrorf("unrecognized operator")
	}
}

// appendWeightedArg enforces the family rules for a weighted argument
// (WAND/WSUM only).
func appendWeightedArg(parent QueryNode, weight float64, child QueryNode) error {
	switch p := parent.(type) {
	case *wandNode:
		if err := appendSOPChild(&p.children, child); err != nil {
			return err
		}
		p.weights = append(p.weights, weight)
		return nil
	case *wsumNode:
		if err := appendSOPChild(&p.children, child); err != nil {
			return err
		}
		p.weights = append(p.weights, weight)
		return nil
	default:
		return syntaxErrorf("%s does not take weighted arguments", parent.DisplayName())
	}
}

// appendIOPChild is shared by SYN/NEAR/WINDOW: the child must itself be an
// IOP, and every IOP sibling must agree on field.
func appendIOPChild(field *string, children *[]iopNode, child QueryNode, opName string) error {
	iop, ok := child.(iopNode)
	if !ok {
		return syntaxErrorf("%s requires inverted-list arguments", opName)
	}
	if len(*children) == 0 {
		*field = iop.Field()
	} else if iop.Field() != *field {
		return syntaxErrorf("%s: mixed fields %s and %s", opName, *field, iop.Field())
	}
	*children = append(*children, iop)
	return nil
}

// appendSOPChild is shared by AND/OR/SUM/WAND/WSUM: a SOP silently wraps an
// IOP child in an implicit SCORE node; a SOP child is appended as-is.
func appendSOPChild(children *[]QueryNode, child QueryNode) error {
	if iop, ok := child.(iopNode); ok {
		sn := newScoreNode("SCORE")
		sn.child = iop
		*children = append(*children, sn)
		return nil
	}
	*children = append(*children, child)
	return nil
}

// ───────────────────────────── optimization (depth-first) ─────────────────────────────

// optimize removes degenerate structure left behind by parsing: arguments
// that reduce to nothing (e.g. an all-stopword #NEAR argument), operators
// whose argument count falls to zero, and any non-SCORE operator left with
// exactly one argument (collapsed to that argument).
func optimize(q QueryNode) QueryNode {
	switch p := q.(type) {
	case *termNode:
		return p

	case *synNode:
		p.children = optimizeIOPChildren(p.children)
		if len(p.children) == 0 {
			return nil
		}
		if len(p.children) == 1 {
			return p.children[0]
		}
		return p

	case *nearNode:
		p.children = optimizeIOPChildren(p.children)
		if len(p.children) == 0 {
			return nil
		}
		if len(p.children) == 1 {
			return p.children[0]
		}
		return p

	case *windowNode:
		p.children = optimizeIOPChildren(p.children)
		if len(p.children) == 0 {
			return nil
		}
		if len(p.children) == 1 {
			return p.children[0]
		}
		return p

	case *scoreNode:
		if p.child == nil {
			return nil
		}
		optimized := optimize(p.child)
		if optimized == nil {
			return nil
		}
		iop, ok := optimized.(iopNode)
		if !ok {
			protocolViolation("SCORE's optimized child is not an IOP")
		}
		p.child = iop
		return p

	case *andNode:
		p.children = optimizeSOPChildren(p.children)
		return collapseUnlessScore(p.children, p)

	case *orNode:
		p.children = optimizeSOPChildren(p.children)
		return collapseUnlessScore(p.children, p)

	case *sumNode:
		p.children = optimizeSOPChildren(p.children)
		return collapseUnlessScore(p.children, p)

	case *wandNode:
		p.children, p.weights = optimizeWeightedChildren(p.children, p.weights)
		return collapseWeightedUnlessScore(p.children, p.weights, p)

	case *wsumNode:
		p.children, p.weights = optimizeWeightedChildren(p.children, p.weights)
		return collapseWeightedUnlessScore(p.children, p.weights, p)

	default:
		return q
	}
}

func optimizeIOPChildren(children []iopNode) []iopNode {
	out := children[:0]
	for _, c := range children {
		optimized := optimize(c)
		if optimized == nil {
			continue
		}
		iop, ok := optimized.(iopNode)
		if !ok {
			protocolViolation("IOP child optimized into a non-IOP node")
		}
		out = append(out, iop)
	}
	return out
}

func optimizeSOPChildren(children []QueryNode) []QueryNode {
	out := children[:0]
	for _, c := range children {
		if optimized := optimize(c); optimized != nil {
			out = append(out, optimized)
		}
	}
	return out
}

func optimizeWeightedChildren(children []QueryNode, weights []float64) ([]QueryNode, []float64) {
	outChildren := children[:0]
	outWeights := weights[:0]
	for i, c := range children {
		if optimized := optimize(c); optimized != nil {
			outChildren = append(outChildren, optimized)
			outWeights = append(outWeights, weights[i])
		}
	}
	return outChildren, outWeights
}

// collapseUnlessScore implements "operators with zero args are deleted;
// non-SCORE operators with exactly one arg are replaced by that arg".
func collapseUnlessScore(children []QueryNode, self QueryNode) QueryNode {
	if len(children) == 0 {
		return nil
	}
	if len(children) == 1 {
		return children[0]
	}
	return self
}

func collapseWeightedUnlessScore(children []QueryNode, weights []float64, self QueryNode) QueryNode {
	if len(children) == 0 {
		return nil
	}
	if len(children) == 1 {
		return children[0]
	}
	return self
}

// ───────────────────────────── lexical scanning ─────────────────────────────

// indexOfBalancingParen returns the index of the ')' that balances the
// left-most '(' in s, or a syntax error if the parens are unbalanced.
func indexOfBalancingParen(s string) (int, error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return 0, syntaxErrorf("unbalanced or missing parentheses")
			}
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, syntaxErrorf("unbalanced or missing parentheses")
}

// popSubquery removes a "#OP(...)" subquery from the head of s, returning
// the subquery string and the remainder.
func popSubquery(s string) (string, string, error) {
	closeIdx, err := indexOfBalancingParen(s)
	if err != nil {
		return "", "", err
	}
	return s[:closeIdx+1], strings.TrimSpace(s[closeIdx+1:]), nil
}

// popToken removes one whitespace-delimited token from the head of s.
func popToken(s string) (string, string) {
	fields := strings.SplitN(s, " ", 2)
	if len(fields) < 2 {
		return strings.TrimSpace(fields[0]), ""
	}
	return strings.TrimSpace(fields[0]), fields[1]
}

// popWeight removes a leading floating-point weight from the head of s
// (used by WAND/WSUM, which alternate weight/argument pairs).
func popWeight(s string) (float64, string, error) {
	fields := strings.SplitN(s, " ", 2)
	if len(fields) < 2 {
		return 0, "", syntaxErrorf("missing weight or query argument in %q", s)
	}
	w, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, "", syntaxErrorf("invalid weight %q", fields[0])
	}
	return w, strings.TrimSpace(fields[1]), nil
}
