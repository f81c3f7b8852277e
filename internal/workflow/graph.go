package workflow

import (
	"errors"
	"fmt"
	"slices"
)

// Stage names one node of the workflow graph.
type Stage string

const (
	StageClassifyRelevance Stage = "classify_relevance"
	StageRewriteQuery      Stage = "rewrite_query"
	StageRetrieve          Stage = "retrieve"
	StageComposeAnswer     Stage = "compose_answer"
	StageValidateAnswer    Stage = "validate_answer"
	StageGeneralAnswer     Stage = "general_answer"
	StageAcceptAnswer      Stage = "accept_answer"
	StageFallbackAnswer    Stage = "fallback_answer"
)

// Relevance is the outcome of relevance classification.
type Relevance int

const (
	RelevanceUnknown Relevance = iota
	InDomain
	NotRelated
)

// AllRelevances lists every routable relevance label.
func AllRelevances() []Relevance { return []Relevance{InDomain, NotRelated} }

func (r Relevance) String() string {
	switch r {
	case InDomain:
		return "in_domain"
	case NotRelated:
		return "not_related"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of answer validation.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	Valid
	Invalid
)

// AllVerdicts lists every routable verdict.
func AllVerdicts() []Verdict { return []Verdict{Valid, Invalid} }

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// router picks the successor of a branching stage.
type router interface {
	from() Stage
	next(st *TurnState) (Stage, error)
	targets() []Stage
	complete() error
}

// Branch routes from one stage on a typed label read from the turn state.
type Branch[L comparable] struct {
	From   Stage
	Label  func(*TurnState) L
	Routes map[L]Stage
	// Labels is every value Label may return.
	Labels []L
}

func (b Branch[L]) from() Stage { return b.From }

func (b Branch[L]) next(st *TurnState) (Stage, error) {
	label := b.Label(st)
	to, ok := b.Routes[label]
	if !ok {
		return "", fmt.Errorf("no route from %s for label %v", b.From, label)
	}
	return to, nil
}

func (b Branch[L]) targets() []Stage {
	out := make([]Stage, 0, len(b.Routes))
	for _, to := range b.Routes {
		out = append(out, to)
	}
	return out
}

func (b Branch[L]) complete() error {
	if b.Label == nil {
		return fmt.Errorf("branch from %s has no label function", b.From)
	}
	for _, l := range b.Labels {
		if _, ok := b.Routes[l]; !ok {
			return fmt.Errorf("branch from %s does not route label %v", b.From, l)
		}
	}
	return nil
}

// Graph is the static shape of the workflow.
type Graph struct {
	Entry    Stage
	Edges    map[Stage]Stage
	Branches []router
	Terminal []Stage
}

// DefaultGraph is the answer pipeline:
//
//	classify_relevance -in_domain-> rewrite_query -> retrieve -> compose_answer -> validate_answer
//	  validate_answer -valid-> accept_answer | -invalid-> fallback_answer
//	classify_relevance -not_related-> general_answer
func DefaultGraph() Graph {
	return Graph{
		Entry: StageClassifyRelevance,
		Edges: map[Stage]Stage{
			StageRewriteQuery:  StageRetrieve,
			StageRetrieve:      StageComposeAnswer,
			StageComposeAnswer: StageValidateAnswer,
		},
		Branches: []router{
			Branch[Relevance]{
				From:  StageClassifyRelevance,
				Label: func(st *TurnState) Relevance { return st.Relevance },
				Routes: map[Relevance]Stage{
					InDomain:   StageRewriteQuery,
					NotRelated: StageGeneralAnswer,
				},
				Labels: AllRelevances(),
			},
			Branch[Verdict]{
				From:  StageValidateAnswer,
				Label: func(st *TurnState) Verdict { return st.Verdict },
				Routes: map[Verdict]Stage{
					Valid:   StageAcceptAnswer,
					Invalid: StageFallbackAnswer,
				},
				Labels: AllVerdicts(),
			},
		},
		Terminal: []Stage{StageGeneralAnswer, StageAcceptAnswer, StageFallbackAnswer},
	}
}

// compiledGraph is a validated Graph with O(1) successor lookup.
type compiledGraph struct {
	entry    Stage
	edges    map[Stage]Stage
	branches map[Stage]router
	terminal map[Stage]bool
	size     int
}

// compile checks that every stage has a handler, every non-terminal stage
// has exactly one way out, every branch routes all of its labels and no
// edge points at an unknown stage.
func compile[H any](g Graph, handlers map[Stage]H) (*compiledGraph, error) {
	cg := &compiledGraph{
		entry:    g.Entry,
		edges:    g.Edges,
		branches: make(map[Stage]router, len(g.Branches)),
		terminal: make(map[Stage]bool, len(g.Terminal)),
		size:     len(handlers),
	}

	var errs []error
	known := func(s Stage) bool { _, ok := handlers[s]; return ok }

	if !known(g.Entry) {
		errs = append(errs, fmt.Errorf("entry stage %q has no handler", g.Entry))
	}
	for _, s := range g.Terminal {
		if !known(s) {
			errs = append(errs, fmt.Errorf("terminal stage %q has no handler", s))
		}
		cg.terminal[s] = true
	}
	for from, to := range g.Edges {
		if !known(from) || !known(to) {
			errs = append(errs, fmt.Errorf("edge %s -> %s references an unknown stage", from, to))
		}
	}
	for _, b := range g.Branches {
		if _, dup := cg.branches[b.from()]; dup {
			errs = append(errs, fmt.Errorf("stage %s has more than one branch", b.from()))
		}
		cg.branches[b.from()] = b
		if err := b.complete(); err != nil {
			errs = append(errs, err)
		}
		for _, to := range b.targets() {
			if !known(to) {
				errs = append(errs, fmt.Errorf("branch %s -> %s references an unknown stage", b.from(), to))
			}
		}
	}

	stages := make([]Stage, 0, len(handlers))
	for s := range handlers {
		stages = append(stages, s)
	}
	slices.Sort(stages)
	for _, s := range stages {
		_, hasEdge := g.Edges[s]
		_, hasBranch := cg.branches[s]
		switch {
		case cg.terminal[s] && (hasEdge || hasBranch):
			errs = append(errs, fmt.Errorf("terminal stage %s has outgoing edges", s))
		case !cg.terminal[s] && hasEdge == hasBranch:
			errs = append(errs, fmt.Errorf("stage %s needs exactly one outgoing edge or branch", s))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}
	return cg, nil
}

// next returns the successor of s, or "" when s is terminal.
func (g *compiledGraph) next(s Stage, st *TurnState) (Stage, error) {
	if g.terminal[s] {
		return "", nil
	}
	if b, ok := g.branches[s]; ok {
		return b.next(st)
	}
	return g.edges[s], nil
}
