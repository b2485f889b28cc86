package engine

import (
	"strconv"
	"strings"

	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/model"
)

// Resolve maps a raw reply against the outgoing connections of the
// session's current step and returns the next step id. The second return
// is false when nothing matches: the caller must leave the session where it
// is so the next reply gets another chance.
//
// Order of resolution:
//  1. on a choice step, a reply parsing as an integer k in [1, N] selects
//     the connection whose source handle is option k's id;
//  2. the normalized reply is tested as a substring against each
//     connection's source handle and label, in declaration order;
//  3. a non-choice step with exactly one outgoing connection is followed
//     unconditionally.
func Resolve(g *flow.Graph, session *model.Session, reply string) (string, bool) {
	step := g.Step(session.CurrentStepId)
	if step == nil {
		return "", false
	}
	conns := g.Connections(step.Id)
	if len(conns) == 0 {
		return "", false
	}
	choice := step.Type == model.STEP_TYPE_QUESTION_MULTIPLE && step.Question != nil
	normalized := strings.ToLower(strings.TrimSpace(reply))
	if choice {
		if index, err := strconv.Atoi(normalized); err == nil {
			if index >= 1 && index <= len(step.Question.Options) {
				optionId := step.Question.Options[index-1].Id
				if next, ok := g.ByHandle(step.Id, optionId); ok {
					return next, true
				}
			}
		}
	}
	if len(normalized) > 0 {
		for _, conn := range conns {
			if matchesConnection(conn, normalized) {
				return conn.Target, true
			}
		}
	}
	if !choice && len(conns) == 1 {
		return conns[0].Target, true
	}
	return "", false
}

func matchesConnection(conn model.Connection, normalized string) bool {
	if len(conn.SourceHandle) > 0 && strings.Contains(strings.ToLower(conn.SourceHandle), normalized) {
		return true
	}
	if len(conn.Label) > 0 && strings.Contains(strings.ToLower(conn.Label), normalized) {
		return true
	}
	return false
}
