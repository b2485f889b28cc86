package engine

import (
	"context"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/oliveagle/jsonpath"
	"go.uber.org/zap"
)

// evaluatePredicates applies the predicate list conjunctively. An
// unevaluable predicate (missing tag data, bad expression) counts as not
// matching, so the run stays deterministic.
func (e *Engine) evaluatePredicates(ctx context.Context, session *model.Session, predicates []flow.Predicate) bool {
	for _, predicate := range predicates {
		if !e.evaluatePredicate(ctx, session, predicate) {
			return false
		}
	}
	return true
}

func (e *Engine) evaluatePredicate(ctx context.Context, session *model.Session, predicate flow.Predicate) bool {
	switch predicate.Kind {
	case flow.PREDICATE_TAG:
		if e.contacts == nil {
			return false
		}
		has, err := e.contacts.HasTag(ctx, session.Address, predicate.Tag)
		if err != nil {
			logger.Debug("tag predicate not evaluable", zap.String("tag", predicate.Tag), zap.Error(err))
			return false
		}
		return has
	case flow.PREDICATE_WEEKDAY:
		today := strings.ToLower(e.now().Weekday().String())
		for _, day := range predicate.Weekdays {
			if strings.EqualFold(day, today) {
				return true
			}
		}
		return false
	case flow.PREDICATE_TIME_OF_DAY:
		return e.withinTimeOfDay(predicate.From, predicate.To)
	case flow.PREDICATE_VARIABLE:
		return matchVariable(session.Variables, predicate)
	case flow.PREDICATE_EXPRESSION:
		return evaluateExpression(predicate.Expression, session.Variables)
	default:
		return false
	}
}

func (e *Engine) withinTimeOfDay(from string, to string) bool {
	start, err := time.Parse("15:04", from)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", to)
	if err != nil {
		return false
	}
	now := e.now()
	minutes := now.Hour()*60 + now.Minute()
	startMinutes := start.Hour()*60 + start.Minute()
	endMinutes := end.Hour()*60 + end.Minute()
	if startMinutes <= endMinutes {
		return minutes >= startMinutes && minutes <= endMinutes
	}
	// window wraps midnight
	return minutes >= startMinutes || minutes <= endMinutes
}

func matchVariable(variables map[string]any, predicate flow.Predicate) bool {
	var value any
	if strings.HasPrefix(predicate.Var, "$") {
		resolved, err := jsonpath.JsonPathLookup(variables, predicate.Var)
		if err != nil {
			return false
		}
		value = resolved
	} else {
		resolved, ok := variables[predicate.Var]
		if !ok {
			return false
		}
		value = resolved
	}
	return strings.EqualFold(strings.TrimSpace(formatValue(value, "")), strings.TrimSpace(predicate.Value))
}

// evaluateExpression runs a javascript boolean expression with $ bound to
// the variable bag, the same contract the switch expressions of the flow
// editor use.
func evaluateExpression(expression string, variables map[string]any) bool {
	vm := goja.New()
	if err := vm.Set("$", variables); err != nil {
		return false
	}
	value, err := vm.RunString(expression)
	if err != nil {
		logger.Debug("expression predicate not evaluable", zap.String("expression", expression), zap.Error(err))
		return false
	}
	return value.ToBoolean()
}
