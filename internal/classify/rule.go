// Package classify implements the priority-ordered destination classifier:
// the first rule (highest priority) whose pattern matches a destination and
// whose conditions all hold decides how traffic to it should egress.
package classify

import "fmt"

// Action is the routing verdict a rule carries.
type Action string

const (
	ActionDirect Action = "direct"
	ActionProxy  Action = "proxy"
	ActionTunnel Action = "tunnel"
	ActionBlock  Action = "block"
)

// ParseAction validates an action string from configuration.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionDirect, ActionProxy, ActionTunnel, ActionBlock:
		return Action(s), nil
	}
	return "", fmt.Errorf("classify: unknown action %q", s)
}

// Condition is an optional predicate a rule may declare. All declared
// conditions must hold for the rule to fire.
type Condition string

const (
	CondAiService   Condition = "ai_service"
	CondRussianTLD  Condition = "russian_tld"
	CondHighLatency Condition = "high_latency"
	CondGeoBlocked  Condition = "geo_blocked"
)

// ParseCondition validates a condition string from configuration.
func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case CondAiService, CondRussianTLD, CondHighLatency, CondGeoBlocked:
		return Condition(s), nil
	}
	return "", fmt.Errorf("classify: unknown condition %q", s)
}

// Rule is one classification rule. Higher Priority wins; conditions narrow
// when the rule applies beyond its pattern.
type Rule struct {
	Pattern    string
	Action     Action
	Priority   int
	Reason     string
	Conditions []Condition
}

// compiledRule pairs a Rule with its compiled matcher and a registration
// sequence used to keep equal-priority ordering stable.
type compiledRule struct {
	Rule
	matcher Matcher
	seq     uint64
}

// Result is the classification verdict for one destination.
type Result struct {
	Action Action
	// MatchedRule is the rule that fired, or nil when the default applied.
	MatchedRule *Rule
	Reason      string
	// AiService reports whether the destination is a known AI service
	// domain, independent of which rule fired. The selector uses it for
	// proxy suitability.
	AiService bool
}
