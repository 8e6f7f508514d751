package gates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUnknownGate(t *testing.T) {
	e := NewEngine()
	_, err := e.Run("no_such_gate", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown gate")
}

func TestRegister(t *testing.T) {
	e := NewEngine()

	t.Run("custom gate is runnable", func(t *testing.T) {
		require.NoError(t, e.Register("always_pass", func(content map[string]interface{}) Result {
			return Result{Passed: true, Message: "ok"}
		}))

		result, err := e.Run("always_pass", nil)
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})

	t.Run("rejects collision with built-in", func(t *testing.T) {
		err := e.Register(GatePICOTComplete, func(map[string]interface{}) Result { return Result{} })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects nil func", func(t *testing.T) {
		assert.Error(t, e.Register("nil_gate", nil))
	})

	t.Run("rejects empty name", func(t *testing.T) {
		assert.Error(t, e.Register("", func(map[string]interface{}) Result { return Result{} }))
	})
}

func TestPICOTComplete(t *testing.T) {
	e := NewEngine()

	t.Run("passes a complete question", func(t *testing.T) {
		result, err := e.Run(GatePICOTComplete, map[string]interface{}{
			"question": "P: adult inpatients with type 2 diabetes; I: structured education; " +
				"C: standard discharge teaching; O: 30-day readmission rate; T: over 6 months",
		})
		require.NoError(t, err)
		assert.True(t, result.Passed, result.Message)
	})

	t.Run("passes keyword-style phrasing", func(t *testing.T) {
		result, err := e.Run(GatePICOTComplete, map[string]interface{}{
			"question": "In the adult inpatient population, does a nurse-led intervention " +
				"compared with usual care improve the readmission outcome within 12 weeks?",
		})
		require.NoError(t, err)
		assert.True(t, result.Passed, result.Message)
	})

	t.Run("reports missing components", func(t *testing.T) {
		result, err := e.Run(GatePICOTComplete, map[string]interface{}{
			"question": "P: adult inpatients; I: structured education",
		})
		require.NoError(t, err)
		assert.False(t, result.Passed)
		missing := result.Details["missing"].([]string)
		assert.Contains(t, missing, "outcome")
		assert.Contains(t, missing, "comparison")
	})

	t.Run("fails on empty question", func(t *testing.T) {
		result, err := e.Run(GatePICOTComplete, map[string]interface{}{"question": "  "})
		require.NoError(t, err)
		assert.False(t, result.Passed)
	})

	t.Run("fails on absent question", func(t *testing.T) {
		result, err := e.Run(GatePICOTComplete, map[string]interface{}{})
		require.NoError(t, err)
		assert.False(t, result.Passed)
	})
}

func TestCitationGrounding(t *testing.T) {
	e := NewEngine()

	t.Run("passes when cited is subset of verified", func(t *testing.T) {
		result, err := e.Run(GateCitationGrounding, map[string]interface{}{
			"cited_ids":    []string{"pmid-1", "pmid-2"},
			"verified_ids": []string{"pmid-1", "pmid-2", "pmid-3"},
		})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})

	t.Run("fails on unverified citation", func(t *testing.T) {
		result, err := e.Run(GateCitationGrounding, map[string]interface{}{
			"cited_ids":    []string{"pmid-1", "pmid-9"},
			"verified_ids": []string{"pmid-1"},
		})
		require.NoError(t, err)
		assert.False(t, result.Passed)
		assert.Equal(t, []string{"pmid-9"}, result.Details["unverified_ids"])
		assert.Contains(t, result.Message, "pmid-9")
	})

	t.Run("passes with no citations at all", func(t *testing.T) {
		result, err := e.Run(GateCitationGrounding, map[string]interface{}{})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})

	t.Run("accepts decoded JSON slices", func(t *testing.T) {
		result, err := e.Run(GateCitationGrounding, map[string]interface{}{
			"cited_ids":    []interface{}{"pmid-1"},
			"verified_ids": []interface{}{"pmid-1"},
		})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})
}

func TestMinSubstance(t *testing.T) {
	e := NewEngine()

	t.Run("fails short output", func(t *testing.T) {
		result, err := e.Run(GateMinSubstance, map[string]interface{}{"text": "too short"})
		require.NoError(t, err)
		assert.False(t, result.Passed)
	})

	t.Run("passes long output", func(t *testing.T) {
		result, err := e.Run(GateMinSubstance, map[string]interface{}{
			"text": strings.Repeat("evidence ", 40),
		})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})

	t.Run("honors custom floor", func(t *testing.T) {
		result, err := e.Run(GateMinSubstance, map[string]interface{}{
			"text":       "brief but sufficient",
			"min_length": 10,
		})
		require.NoError(t, err)
		assert.True(t, result.Passed)
	})
}

func TestGatesHaveNoSideEffects(t *testing.T) {
	e := NewEngine()
	content := map[string]interface{}{
		"cited_ids":    []string{"pmid-1"},
		"verified_ids": []string{"pmid-1"},
	}

	first, err := e.Run(GateCitationGrounding, content)
	require.NoError(t, err)
	second, err := e.Run(GateCitationGrounding, content)
	require.NoError(t, err)

	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, first.Message, second.Message)
}
