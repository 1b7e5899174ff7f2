package workflow

import (
	"github.com/spec-kit/workflow-service/internal/domain"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

// Graph is the declarative stage graph of one work item kind.
type Graph struct {
	Initial  domain.Stage
	Terminal domain.Stage
	// Closing stages end the active lifecycle. The terminal stage is always closing;
	// other closing stages may still carry an explicit reopen edge.
	Closing []domain.Stage
	Edges   map[domain.Stage][]domain.Stage
}

// TransitionTable answers which stage changes are legal for each kind.
type TransitionTable struct {
	graphs map[domain.Kind]Graph
}

// NewTransitionTable builds a table from the given graphs.
func NewTransitionTable(graphs map[domain.Kind]Graph) *TransitionTable {
	return &TransitionTable{graphs: graphs}
}

// DefaultTransitionTable returns the case and ticket workflows.
func DefaultTransitionTable() *TransitionTable {
	return NewTransitionTable(map[domain.Kind]Graph{
		domain.KindCase:   caseGraph,
		domain.KindTicket: ticketGraph,
	})
}

var caseGraph = Graph{
	Initial:  domain.StageEnquiry,
	Terminal: domain.StageClosure,
	Closing:  []domain.Stage{domain.StageClosure, domain.StageRejected},
	Edges: map[domain.Stage][]domain.Stage{
		domain.StageEnquiry:        {domain.StageEstimation, domain.StageRejected, domain.StageOnHold},
		domain.StageEstimation:     {domain.StageQuotation, domain.StageEnquiry, domain.StageRejected, domain.StageOnHold},
		domain.StageQuotation:      {domain.StageOrderConfirmed, domain.StageEstimation, domain.StageRejected, domain.StageOnHold},
		domain.StageOrderConfirmed: {domain.StageManufacturing, domain.StageOnHold},
		domain.StageManufacturing:  {domain.StageQualityCheck, domain.StageOnHold},
		domain.StageQualityCheck:   {domain.StageDispatch, domain.StageManufacturing, domain.StageOnHold},
		domain.StageDispatch:       {domain.StageClosure, domain.StageOnHold},
		domain.StageOnHold: {
			domain.StageEnquiry, domain.StageEstimation, domain.StageQuotation, domain.StageOrderConfirmed,
			domain.StageManufacturing, domain.StageQualityCheck, domain.StageDispatch, domain.StageRejected,
		},
		domain.StageRejected: {domain.StageEnquiry},
		domain.StageClosure:  {},
	},
}

var ticketGraph = Graph{
	Initial:  domain.StageOpen,
	Terminal: domain.StageClosed,
	Closing:  []domain.Stage{domain.StageClosed, domain.StageCancelled},
	Edges: map[domain.Stage][]domain.Stage{
		domain.StageOpen:             {domain.StageTriage, domain.StageInProgress, domain.StageCancelled, domain.StageOnHold},
		domain.StageTriage:           {domain.StageInProgress, domain.StageCancelled, domain.StageOnHold},
		domain.StageInProgress:       {domain.StageAwaitingCustomer, domain.StageResolved, domain.StageCancelled, domain.StageOnHold},
		domain.StageAwaitingCustomer: {domain.StageInProgress, domain.StageResolved, domain.StageOnHold},
		domain.StageResolved:         {domain.StageClosed, domain.StageInProgress, domain.StageOnHold},
		domain.StageOnHold: {
			domain.StageOpen, domain.StageTriage, domain.StageInProgress, domain.StageAwaitingCustomer,
			domain.StageResolved, domain.StageCancelled,
		},
		domain.StageCancelled: {domain.StageOpen},
		domain.StageClosed:    {},
	},
}

// Allowed reports whether the edge from -> to exists for kind.
func (t *TransitionTable) Allowed(kind domain.Kind, from, to domain.Stage) bool {
	graph, ok := t.graphs[kind]
	if !ok {
		return false
	}
	for _, candidate := range graph.Edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Validate returns an INVALID_TRANSITION error when the edge does not exist.
func (t *TransitionTable) Validate(kind domain.Kind, from, to domain.Stage) error {
	if !t.Allowed(kind, from, to) {
		return apperrors.NewInvalidTransition(string(kind), string(from), string(to))
	}
	return nil
}

// InitialStage returns the entry stage of kind.
func (t *TransitionTable) InitialStage(kind domain.Kind) (domain.Stage, bool) {
	graph, ok := t.graphs[kind]
	if !ok {
		return "", false
	}
	return graph.Initial, true
}

// TerminalStage returns the stage with no outgoing edges.
func (t *TransitionTable) TerminalStage(kind domain.Kind) (domain.Stage, bool) {
	graph, ok := t.graphs[kind]
	if !ok {
		return "", false
	}
	return graph.Terminal, true
}

// IsClosing reports whether entering stage ends the item's active lifecycle.
func (t *TransitionTable) IsClosing(kind domain.Kind, stage domain.Stage) bool {
	for _, closing := range t.graphs[kind].Closing {
		if closing == stage {
			return true
		}
	}
	return false
}

// Stages lists every stage of kind.
func (t *TransitionTable) Stages(kind domain.Kind) []domain.Stage {
	graph := t.graphs[kind]
	stages := make([]domain.Stage, 0, len(graph.Edges))
	for stage := range graph.Edges {
		stages = append(stages, stage)
	}
	return stages
}

// Targets returns the stages reachable in one step from from.
func (t *TransitionTable) Targets(kind domain.Kind, from domain.Stage) []domain.Stage {
	edges := t.graphs[kind].Edges[from]
	out := make([]domain.Stage, len(edges))
	copy(out, edges)
	return out
}

// HasStage reports whether stage belongs to kind's graph.
func (t *TransitionTable) HasStage(kind domain.Kind, stage domain.Stage) bool {
	_, ok := t.graphs[kind].Edges[stage]
	return ok
}
