package trigger

import (
	"strings"

	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// SessionLookup is the slice of the session store the matcher needs for
// once-per-contact checks.
type SessionLookup interface {
	Find(address string) ([]*model.Session, error)
}

type Match struct {
	Graph   *flow.Graph
	StartId string
}

type Matcher struct {
	// enforceDeviceScope rejects events whose device does not own the
	// trigger's declared device. Disabling it is an explicit, logged
	// fallback, never a silent drop of the check.
	enforceDeviceScope bool
}

func NewMatcher(enforceDeviceScope bool) *Matcher {
	return &Matcher{enforceDeviceScope: enforceDeviceScope}
}

// Match returns every active flow the event should start. One event may
// legitimately start several flows; the caller fires each independently.
func (m *Matcher) Match(event model.InboundEvent, graphs []*flow.Graph, lookup SessionLookup) []Match {
	var matches []Match
	for _, g := range graphs {
		if !g.Active {
			continue
		}
		trigger := g.Trigger()
		if trigger == nil {
			continue
		}
		if trigger.Kind != event.Kind {
			continue
		}
		if !m.deviceInScope(g, trigger, event) {
			continue
		}
		if trigger.OncePerContact && m.hasPriorSession(g, event.Address, lookup) {
			continue
		}
		if !kindMatches(trigger, event) {
			continue
		}
		matches = append(matches, Match{Graph: g, StartId: g.StartId})
	}
	return matches
}

// IsTriggerText reports whether the text would start some active flow; a
// mid-flow reply that is itself a trigger keyword restarts instead of being
// routed to the running session.
func (m *Matcher) IsTriggerText(text string, graphs []*flow.Graph) bool {
	for _, g := range graphs {
		if !g.Active {
			continue
		}
		trigger := g.Trigger()
		if trigger == nil || trigger.Kind != model.EVENT_MESSAGE_RECEIVED {
			continue
		}
		// match-all flows trigger on anything; they do not make every
		// reply a restart
		if trigger.MatchMode == model.MATCH_MODE_ALL {
			continue
		}
		if matchKeywords(trigger.MatchMode, trigger.Keywords, text) {
			return true
		}
	}
	return false
}

func kindMatches(trigger *model.TriggerConfig, event model.InboundEvent) bool {
	switch event.Kind {
	case model.EVENT_MESSAGE_RECEIVED:
		if trigger.MatchMode == model.MATCH_MODE_ALL {
			return true
		}
		return matchKeywords(trigger.MatchMode, trigger.Keywords, event.Text)
	case model.EVENT_TAG_ADDED:
		return len(trigger.Tag) == 0 || strings.EqualFold(trigger.Tag, event.Tag)
	case model.EVENT_THIRD_PARTY:
		return true
	default:
		return false
	}
}

// matchKeywords applies the trigger match mode. A mode other than "all"
// with zero configured keywords never matches.
func matchKeywords(mode model.MatchMode, keywords []string, text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if len(normalized) == 0 {
		return false
	}
	for _, keyword := range keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if len(kw) == 0 {
			continue
		}
		switch mode {
		case model.MATCH_MODE_EXACT:
			if normalized == kw {
				return true
			}
		default:
			if strings.Contains(normalized, kw) {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) deviceInScope(g *flow.Graph, trigger *model.TriggerConfig, event model.InboundEvent) bool {
	if len(trigger.DeviceId) == 0 {
		return true
	}
	if event.DeviceId == trigger.DeviceId {
		return true
	}
	if !m.enforceDeviceScope {
		logger.Warn("device scope check skipped by configuration",
			zap.String("flow", g.Id), zap.String("triggerDevice", trigger.DeviceId), zap.String("eventDevice", event.DeviceId))
		return true
	}
	return false
}

func (m *Matcher) hasPriorSession(g *flow.Graph, address string, lookup SessionLookup) bool {
	sessions, err := lookup.Find(address)
	if err != nil {
		logger.Error("once-per-contact lookup failed, skipping flow", zap.String("flow", g.Id), zap.Error(err))
		return true
	}
	for _, session := range sessions {
		if session.FlowId == g.Id {
			return true
		}
	}
	return false
}
