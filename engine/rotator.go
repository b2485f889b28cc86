package engine

import (
	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/model"
)

const rotatorCursorPrefix string = "__rotator_"

// selectRotation picks one labeled output of a rotator step: weighted
// random for "random" mode (weights normalized over their sum, non-positive
// weights counted as 1), round robin for "sequential" mode with the cursor
// kept in the session variable bag.
func (e *Engine) selectRotation(session *model.Session, step *flow.Step) string {
	options := step.Rotator.Options
	if step.Rotator.Mode == "sequential" {
		cursorKey := rotatorCursorPrefix + step.Id
		cursor := intVariable(session.Variables, cursorKey)
		selected := options[cursor%len(options)]
		if session.Variables == nil {
			session.Variables = make(map[string]any)
		}
		session.Variables[cursorKey] = cursor + 1
		return selected.Handle
	}
	total := 0
	for _, opt := range options {
		total += normalizeWeight(opt.Weight)
	}
	pick := e.randFn(total)
	for _, opt := range options {
		pick -= normalizeWeight(opt.Weight)
		if pick < 0 {
			return opt.Handle
		}
	}
	return options[len(options)-1].Handle
}

func normalizeWeight(weight int) int {
	if weight <= 0 {
		return 1
	}
	return weight
}

// intVariable reads an int from the variable bag tolerating the float64
// the JSON codec produces after a persistence round trip.
func intVariable(variables map[string]any, key string) int {
	switch v := variables[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
