package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	apperrors "github.com/spec-kit/workflow-service/pkg/util/errorutil"
)

var kinds = []domain.Kind{domain.KindCase, domain.KindTicket}

func TestTransitionTable_Shape(t *testing.T) {
	table := DefaultTransitionTable()

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			initial, ok := table.InitialStage(kind)
			require.True(t, ok)
			terminal, ok := table.TerminalStage(kind)
			require.True(t, ok)
			assert.True(t, table.HasStage(kind, initial))
			assert.True(t, table.IsClosing(kind, terminal))
			assert.Empty(t, table.Targets(kind, terminal), "terminal stage must have no outgoing edges")

			for _, stage := range table.Stages(kind) {
				if stage == terminal {
					continue
				}
				assert.NotEmpty(t, table.Targets(kind, stage), "stage %s has no outgoing edge", stage)
				for _, target := range table.Targets(kind, stage) {
					assert.True(t, table.HasStage(kind, target), "edge %s -> %s leaves the graph", stage, target)
				}
			}
		})
	}
}

func TestTransitionTable_OnHoldReachableFromEveryOpenStage(t *testing.T) {
	table := DefaultTransitionTable()

	for _, kind := range kinds {
		require.True(t, table.HasStage(kind, domain.StageOnHold))
		for _, stage := range table.Stages(kind) {
			if stage == domain.StageOnHold || table.IsClosing(kind, stage) {
				continue
			}
			assert.True(t, table.Allowed(kind, stage, domain.StageOnHold), "%s: %s cannot be put on hold", kind, stage)
			assert.True(t, table.Allowed(kind, domain.StageOnHold, stage), "%s: on_hold cannot resume to %s", kind, stage)
		}
	}
}

func TestTransitionTable_ClosingStagesOnlyReopenToEntry(t *testing.T) {
	table := DefaultTransitionTable()

	for _, kind := range kinds {
		initial, _ := table.InitialStage(kind)
		terminal, _ := table.TerminalStage(kind)
		for _, stage := range table.Stages(kind) {
			if !table.IsClosing(kind, stage) || stage == terminal {
				continue
			}
			assert.Equal(t, []domain.Stage{initial}, table.Targets(kind, stage), "%s: %s should only reopen", kind, stage)
			assert.False(t, table.Allowed(kind, stage, domain.StageOnHold), "%s: completed %s cannot be put on hold", kind, stage)
		}
	}
}

func TestTransitionTable_EveryStageReachableFromInitial(t *testing.T) {
	table := DefaultTransitionTable()

	for _, kind := range kinds {
		initial, _ := table.InitialStage(kind)
		seen := map[domain.Stage]bool{initial: true}
		frontier := []domain.Stage{initial}
		for len(frontier) > 0 {
			next := frontier[0]
			frontier = frontier[1:]
			for _, target := range table.Targets(kind, next) {
				if !seen[target] {
					seen[target] = true
					frontier = append(frontier, target)
				}
			}
		}
		for _, stage := range table.Stages(kind) {
			assert.True(t, seen[stage], "%s: %s unreachable", kind, stage)
		}
	}
}

func TestTransitionTable_ValidateEnumeratesAllPairs(t *testing.T) {
	table := DefaultTransitionTable()

	for _, kind := range kinds {
		stages := table.Stages(kind)
		for _, from := range stages {
			allowed := map[domain.Stage]bool{}
			for _, target := range table.Targets(kind, from) {
				allowed[target] = true
			}
			for _, to := range stages {
				err := table.Validate(kind, from, to)
				if allowed[to] {
					assert.NoError(t, err, "%s: %s -> %s", kind, from, to)
					continue
				}
				assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition), "%s: %s -> %s", kind, from, to)
			}
		}
	}
}

func TestTransitionTable_KnownEdges(t *testing.T) {
	table := DefaultTransitionTable()

	tests := []struct {
		kind domain.Kind
		from domain.Stage
		to   domain.Stage
		want bool
	}{
		{domain.KindCase, domain.StageEnquiry, domain.StageEstimation, true},
		{domain.KindCase, domain.StageEnquiry, domain.StageManufacturing, false},
		{domain.KindCase, domain.StageRejected, domain.StageEnquiry, true},
		{domain.KindCase, domain.StageClosure, domain.StageEnquiry, false},
		{domain.KindTicket, domain.StageResolved, domain.StageClosed, true},
		{domain.KindTicket, domain.StageOpen, domain.StageClosed, false},
		{domain.KindTicket, domain.StageCancelled, domain.StageOpen, true},
		{domain.KindTicket, domain.StageEnquiry, domain.StageEstimation, false},
		{domain.Kind("unknown"), domain.StageOpen, domain.StageTriage, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Allowed(tt.kind, tt.from, tt.to), "%s: %s -> %s", tt.kind, tt.from, tt.to)
	}
}

func TestTransitionTable_TargetsReturnsCopy(t *testing.T) {
	table := DefaultTransitionTable()
	targets := table.Targets(domain.KindCase, domain.StageEnquiry)
	require.NotEmpty(t, targets)
	targets[0] = domain.StageClosure

	assert.False(t, table.Allowed(domain.KindCase, domain.StageEnquiry, domain.StageClosure))
}
