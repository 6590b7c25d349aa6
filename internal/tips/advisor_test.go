package tips

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tipIDs(tips []Tip) []string {
	out := make([]string, 0, len(tips))
	for _, tip := range tips {
		out = append(out, tip.ID)
	}
	return out
}

func TestAdvisorSelectsMatchingRules(t *testing.T) {
	advisor, err := NewAdvisor(nil)
	require.NoError(t, err)

	tips := advisor.Advise(Input{
		Plant:    map[string]any{"location": "indoor", "healthScore": 0.4},
		Weather:  map[string]any{"humidity": 30.0, "condition": "sunny"},
		Activity: map[string]any{"daysSinceWatering": 5.0, "daysSinceFertilizing": 10.0},
	})

	require.Equal(t, []string{"tip_water_more", "tip_morning_light", "tip_inspect"}, tipIDs(tips))
}

func TestAdvisorHumidRelaxesWatering(t *testing.T) {
	advisor, err := NewAdvisor(nil)
	require.NoError(t, err)

	tips := advisor.Advise(Input{
		Plant:    map[string]any{"location": "outdoor", "healthScore": 0.9},
		Weather:  map[string]any{"humidity": 80.0, "condition": "rainy"},
		Activity: map[string]any{"daysSinceWatering": 1.0, "daysSinceFertilizing": 5.0},
	})

	require.Equal(t, []string{"tip_water_less"}, tipIDs(tips))
}

func TestAdvisorSkipsRulesMissingState(t *testing.T) {
	advisor, err := NewAdvisor(nil)
	require.NoError(t, err)

	// Empty snapshots make every condition error on a missing key; all rules
	// must be skipped without surfacing a failure.
	tips := advisor.Advise(Input{})
	require.Empty(t, tips)
}

func TestAdvisorCustomRule(t *testing.T) {
	advisor, err := NewAdvisor(nil, Rule{
		Tip:       Tip{ID: "tip_custom", Title: "Custom"},
		Condition: `prefs.careLevel == "beginner"`,
	})
	require.NoError(t, err)

	tips := advisor.Advise(Input{Prefs: map[string]any{"careLevel": "beginner"}})
	require.Equal(t, []string{"tip_custom"}, tipIDs(tips))

	tips = advisor.Advise(Input{Prefs: map[string]any{"careLevel": "expert"}})
	require.Empty(t, tips)
}

func TestAdvisorRejectsBadRules(t *testing.T) {
	_, err := NewAdvisor(nil, Rule{Tip: Tip{ID: "bad"}, Condition: ""})
	require.Error(t, err)

	_, err = NewAdvisor(nil, Rule{Tip: Tip{ID: "bad"}, Condition: "plant."})
	require.Error(t, err)

	_, err = NewAdvisor(nil, Rule{Tip: Tip{ID: "nonbool"}, Condition: `"a string"`})
	require.Error(t, err)
}
