package delegate

import "github.com/flowkit/flowkit/model"

// Conversation history lives in the session variable bag so that it is
// persisted, reset, and compare-and-swapped together with the cursor. The
// JSON codec of the session store turns the turns into []any of
// map[string]any; both shapes are read back.
const historyVariable string = "__ai_history"

func historyWindow(session *model.Session, window int) []Turn {
	raw, ok := session.Variables[historyVariable]
	if !ok {
		return nil
	}
	var turns []Turn
	switch items := raw.(type) {
	case []Turn:
		turns = items
	case []any:
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			turn := Turn{}
			if role, ok := m["role"].(string); ok {
				turn.Role = role
			}
			if content, ok := m["content"].(string); ok {
				turn.Content = content
			}
			turns = append(turns, turn)
		}
	}
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	return turns
}

func appendHistory(session *model.Session, turn Turn) {
	if session.Variables == nil {
		session.Variables = make(map[string]any)
	}
	turns := historyWindow(session, 0)
	turns = append(turns, turn)
	session.Variables[historyVariable] = turns
}
