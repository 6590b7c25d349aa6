// Package tips selects care recommendations by evaluating CEL conditions
// against snapshots of plant, weather, activity, and preference state. Rules
// are compiled once at construction; a rule whose condition fails to evaluate
// is skipped rather than failing the whole advice pass.
package tips

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Tip is one recommendation surfaced to the user.
type Tip struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// Rule pairs a tip with the CEL condition that activates it. Conditions see
// four map variables: plant, weather, activity, and prefs.
type Rule struct {
	Tip       Tip
	Condition string
}

// Input carries the state snapshots a rule condition can reference.
type Input struct {
	Plant    map[string]any
	Weather  map[string]any
	Activity map[string]any
	Prefs    map[string]any
}

// DefaultRules returns the built-in recommendation set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Tip: Tip{
				ID:          "tip_water_more",
				Title:       "Water more often",
				Description: "The air is dry and the last watering was a while ago. Tighten the watering cadence.",
				Priority:    1,
			},
			Condition: `weather.humidity < 45.0 && activity.daysSinceWatering >= 3.0`,
		},
		{
			Tip: Tip{
				ID:          "tip_water_less",
				Title:       "Ease off the watering",
				Description: "High humidity slows the soil drying out. Stretch the interval between waterings.",
				Priority:    2,
			},
			Condition: `weather.humidity > 75.0`,
		},
		{
			Tip: Tip{
				ID:          "tip_morning_light",
				Title:       "Add gentle morning light",
				Description: "Indoor plants do well near a window with filtered morning sun on bright days.",
				Priority:    3,
			},
			Condition: `weather.condition == "sunny" && plant.location == "indoor"`,
		},
		{
			Tip: Tip{
				ID:          "tip_fertilize",
				Title:       "Time to fertilize",
				Description: "It has been over a month since the last feeding.",
				Priority:    2,
			},
			Condition: `activity.daysSinceFertilizing > 30.0`,
		},
		{
			Tip: Tip{
				ID:          "tip_inspect",
				Title:       "Inspect for stress",
				Description: "The health score is trending low. Check leaves for pests, discoloration, or rot.",
				Priority:    1,
			},
			Condition: `plant.healthScore < 0.5`,
		},
	}
}

type compiledRule struct {
	tip     Tip
	source  string
	program cel.Program
}

// Advisor evaluates the rule set against state snapshots.
type Advisor struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewAdvisor compiles the supplied rules, falling back to DefaultRules when
// none are given. A rule that fails to compile aborts construction: the rule
// set ships with the binary, so a bad condition is a programming error.
func NewAdvisor(logger *slog.Logger, rules ...Rule) (*Advisor, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	env, err := cel.NewEnv(
		cel.Variable("plant", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("weather", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("activity", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("prefs", cel.MapType(cel.StringType, cel.DynType)),
		cel.HomogeneousAggregateLiterals(),
	)
	if err != nil {
		return nil, fmt.Errorf("tips: build environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		source := strings.TrimSpace(rule.Condition)
		if source == "" {
			return nil, fmt.Errorf("tips: rule %s has no condition", rule.Tip.ID)
		}
		ast, issues := env.Compile(source)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("tips: compile rule %s: %w", rule.Tip.ID, issues.Err())
		}
		if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
			return nil, fmt.Errorf("tips: rule %s must return bool, got %s", rule.Tip.ID, cel.FormatCELType(t))
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("tips: program rule %s: %w", rule.Tip.ID, err)
		}
		compiled = append(compiled, compiledRule{tip: rule.Tip, source: source, program: program})
	}
	return &Advisor{rules: compiled, logger: logger}, nil
}

// Advise returns the tips whose conditions hold for the given input, in rule
// order. Evaluation errors skip the rule.
func (a *Advisor) Advise(input Input) []Tip {
	vars := map[string]any{
		"plant":    orEmpty(input.Plant),
		"weather":  orEmpty(input.Weather),
		"activity": orEmpty(input.Activity),
		"prefs":    orEmpty(input.Prefs),
	}

	var out []Tip
	for _, rule := range a.rules {
		val, _, err := rule.program.Eval(vars)
		if err != nil {
			if a.logger != nil {
				a.logger.Debug("tip rule evaluation skipped",
					slog.String("rule", rule.tip.ID),
					slog.String("condition", rule.source),
					slog.Any("error", err))
			}
			continue
		}
		if truthy(val) {
			out = append(out, rule.tip)
		}
	}
	return out
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func truthy(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}
