package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radfares/nurseRN-sub000/internal/config"
	"github.com/radfares/nurseRN-sub000/internal/contextstore"
	"github.com/radfares/nurseRN-sub000/internal/gates"
	"github.com/radfares/nurseRN-sub000/internal/orchestrator"
	"github.com/radfares/nurseRN-sub000/internal/registry"
)

// scriptedAgent replays a fixed sequence of responses, one per invocation.
// The last response repeats if invoked more times than scripted.
type scriptedAgent struct {
	name      string
	responses []scriptedResponse
	calls     int
	lastQuery string
	onRun     func()
}

type scriptedResponse struct {
	content  string
	metadata map[string]string
	err      error
}

func (a *scriptedAgent) Name() string                    { return a.name }
func (a *scriptedAgent) Capability() registry.Capability { return registry.CapabilityDirectRun }
func (a *scriptedAgent) Run(ctx context.Context, query string, opts map[string]string) (*registry.RunOutput, error) {
	idx := a.calls
	if idx >= len(a.responses) {
		idx = len(a.responses) - 1
	}
	a.calls++
	a.lastQuery = query
	if a.onRun != nil {
		a.onRun()
	}
	resp := a.responses[idx]
	if resp.err != nil {
		return nil, resp.err
	}
	return &registry.RunOutput{Content: resp.content, Metadata: resp.metadata}, nil
}

func respond(content string) scriptedResponse {
	return scriptedResponse{content: content}
}

const goodPICOT = "P: adult inpatients with type 2 diabetes. I: structured discharge education. " +
	"C: standard discharge instructions. O: 30-day readmission rates. T: over 6 months."

// substantial pads content past the minimum-substance floor.
func substantial(lead string) string {
	return lead + " " + strings.Repeat("The evidence base is summarized here in detail. ", 3)
}

func defaultAgents() config.PhaseAgents {
	return config.PhaseAgents{
		Planning:   "planner",
		Search:     "searcher",
		Validation: "validator",
		Synthesis:  "synthesizer",
		Analysis:   "analyst",
	}
}

// happyPathAgents returns one well-behaved scripted agent per phase.
func happyPathAgents() []*scriptedAgent {
	return []*scriptedAgent{
		{name: "planner", responses: []scriptedResponse{respond(goodPICOT)}},
		{name: "searcher", responses: []scriptedResponse{respond(substantial("Found 12 primary studies."))}},
		{name: "validator", responses: []scriptedResponse{{
			content:  substantial("All citations verified against their sources."),
			metadata: map[string]string{MetaCitedIDs: "pmid-1,pmid-2", MetaVerifiedIDs: "pmid-1,pmid-2,pmid-3"},
		}}},
		{name: "synthesizer", responses: []scriptedResponse{respond(substantial("Synthesis of the verified evidence."))}},
		{name: "analyst", responses: []scriptedResponse{respond(substantial("Recommendations for practice."))}},
	}
}

func setupPipeline(t *testing.T, maxRetries int, agents []*scriptedAgent) (*Pipeline, *contextstore.Store) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := contextstore.NewStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.NewRegistry()
	for _, agent := range agents {
		require.NoError(t, reg.Register(agent))
	}

	orch, err := orchestrator.New(reg, store, orchestrator.Options{
		PoolSize: 4,
		AuditDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { orch.Close() })

	p, err := New(reg, orch, store, gates.NewEngine(), defaultAgents(), maxRetries)
	require.NoError(t, err)
	return p, store
}

func TestExecute(t *testing.T) {
	t.Run("all phases pass and state persists", func(t *testing.T) {
		p, store := setupPipeline(t, 1, happyPathAgents())
		ctx := context.Background()

		state := p.Execute(ctx, "diabetes discharge education")

		require.Equal(t, PhaseComplete, state.Current)
		assert.Empty(t, state.Error)
		assert.Len(t, state.History, 5)
		for _, record := range state.History {
			assert.True(t, record.Passed, "phase %s", record.Phase)
			assert.Len(t, record.Attempts, 1, "phase %s", record.Phase)
		}
		assert.Equal(t, goodPICOT, state.Outputs[string(PhasePlanning)])
		assert.Contains(t, state.Outputs[string(PhaseAnalysis)], "Recommendations")

		entry, err := store.Get(ctx, state.WorkflowID, StateScope, StateKey)
		require.NoError(t, err)
		var persisted State
		require.NoError(t, entry.Decode(&persisted))
		assert.Equal(t, PhaseComplete, persisted.Current)
		assert.Len(t, persisted.History, 5)
	})

	t.Run("outputs flow into downstream queries", func(t *testing.T) {
		agents := happyPathAgents()
		p, _ := setupPipeline(t, 0, agents)

		state := p.Execute(context.Background(), "fall prevention")

		require.Equal(t, PhaseComplete, state.Current)
		assert.Contains(t, agents[0].lastQuery, "fall prevention")
		assert.Contains(t, agents[1].lastQuery, goodPICOT)
		assert.Contains(t, agents[3].lastQuery, "All citations verified")
	})

	t.Run("gate failure retries once with refined query", func(t *testing.T) {
		agents := happyPathAgents()
		agents[0].responses = []scriptedResponse{
			respond("P: adult inpatients. I: education."), // missing C, O, T
			respond(goodPICOT),
		}
		p, store := setupPipeline(t, 1, agents)
		ctx := context.Background()

		state := p.Execute(ctx, "diabetes discharge education")

		require.Equal(t, PhaseComplete, state.Current)
		assert.Equal(t, 2, agents[0].calls)

		planning := state.History[0]
		require.Len(t, planning.Attempts, 2)
		assert.False(t, planning.Attempts[0].GatePassed)
		assert.Contains(t, planning.Attempts[0].GateMessage, "missing")
		assert.True(t, planning.Attempts[1].GatePassed)
		assert.Contains(t, planning.Attempts[1].Query, "Refine your previous answer")
		assert.Contains(t, planning.Attempts[1].Query, planning.Attempts[0].GateMessage)

		// Downstream phases ran exactly once each.
		for _, agent := range agents[1:] {
			assert.Equal(t, 1, agent.calls, agent.name)
		}

		// Both attempts survive in the persisted history.
		entry, err := store.Get(ctx, state.WorkflowID, StateScope, StateKey)
		require.NoError(t, err)
		var persisted State
		require.NoError(t, entry.Decode(&persisted))
		require.Len(t, persisted.History[0].Attempts, 2)
	})

	t.Run("exhausted retries fail the pipeline with partial outputs", func(t *testing.T) {
		agents := happyPathAgents()
		agents[1].responses = []scriptedResponse{respond("too thin")}
		p, store := setupPipeline(t, 1, agents)
		ctx := context.Background()

		state := p.Execute(ctx, "diabetes discharge education")

		require.Equal(t, PhaseFailed, state.Current)
		assert.Contains(t, state.Error, "search phase failed after 2 attempt(s)")
		assert.Equal(t, 2, agents[1].calls)

		// Planning output survives the failure.
		assert.Equal(t, goodPICOT, state.Outputs[string(PhasePlanning)])
		assert.NotContains(t, state.Outputs, string(PhaseSearch))

		// Validator and later phases never ran.
		assert.Equal(t, 0, agents[2].calls)

		entry, err := store.Get(ctx, state.WorkflowID, StateScope, StateKey)
		require.NoError(t, err)
		var persisted State
		require.NoError(t, entry.Decode(&persisted))
		assert.Equal(t, PhaseFailed, persisted.Current)
	})

	t.Run("collaborator failure consumes the attempt", func(t *testing.T) {
		agents := happyPathAgents()
		agents[0].responses = []scriptedResponse{
			{err: errors.New("model unavailable")},
			respond(goodPICOT),
		}
		p, _ := setupPipeline(t, 1, agents)

		state := p.Execute(context.Background(), "pressure injury prevention")

		require.Equal(t, PhaseComplete, state.Current)
		planning := state.History[0]
		require.Len(t, planning.Attempts, 2)
		assert.Contains(t, planning.Attempts[0].Error, "model unavailable")
		assert.False(t, planning.Attempts[0].GatePassed)
		assert.True(t, planning.Attempts[1].GatePassed)
	})

	t.Run("grounding violation fails validation phase", func(t *testing.T) {
		agents := happyPathAgents()
		agents[2].responses = []scriptedResponse{{
			content:  substantial("Citation review carried out across all retrieved sources."),
			metadata: map[string]string{MetaCitedIDs: "pmid-1,pmid-9", MetaVerifiedIDs: "pmid-1"},
		}}
		p, _ := setupPipeline(t, 0, agents)

		state := p.Execute(context.Background(), "diabetes discharge education")

		require.Equal(t, PhaseFailed, state.Current)
		assert.Contains(t, state.Error, "validation phase failed")
		assert.Contains(t, state.Error, "pmid-9")
	})

	t.Run("missing required agents fail before any invocation", func(t *testing.T) {
		agents := happyPathAgents()[:3] // planner, searcher, validator only
		p, _ := setupPipeline(t, 1, agents)

		state := p.Execute(context.Background(), "diabetes discharge education")

		require.Equal(t, PhaseFailed, state.Current)
		assert.Contains(t, state.Error, "Missing required agents")
		assert.Contains(t, state.Error, "synthesizer")
		assert.Contains(t, state.Error, "analyst")
		for _, agent := range agents {
			assert.Equal(t, 0, agent.calls, agent.name)
		}
	})

	t.Run("cancellation stops between phases", func(t *testing.T) {
		agents := happyPathAgents()
		p, _ := setupPipeline(t, 1, agents)
		agents[0].onRun = p.RequestCancel

		state := p.Execute(context.Background(), "diabetes discharge education")

		require.Equal(t, PhaseFailed, state.Current)
		assert.Contains(t, state.Error, "cancellation requested before search phase")

		// Planning finished; nothing downstream started.
		assert.Equal(t, 1, agents[0].calls)
		assert.Equal(t, 0, agents[1].calls)
		assert.Equal(t, goodPICOT, state.Outputs[string(PhasePlanning)])
	})
}

func TestNewValidation(t *testing.T) {
	p, _ := setupPipeline(t, 1, happyPathAgents())

	_, err := New(nil, nil, nil, nil, defaultAgents(), 1)
	assert.Error(t, err)

	_, err = New(p.reg, p.orch, p.store, p.engine, defaultAgents(), -1)
	assert.ErrorContains(t, err, "maxRetries")
}
