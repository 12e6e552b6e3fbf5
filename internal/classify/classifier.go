package classify

import (
	"sort"
	"sync"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/geo"
	"github.com/wayfinder-proxy/wayfinder/internal/netutil"
)

// DefaultReason is the reason reported when no rule fires.
const DefaultReason = "default"

// aiServiceDomains is the static allow-list of model-provider domains the
// AiService condition matches (keyed by eTLD+1).
var aiServiceDomains = map[string]bool{
	"openai.com":     true,
	"chatgpt.com":    true,
	"anthropic.com":  true,
	"claude.ai":      true,
	"googleapis.com": true,
	"gemini.google":  true,
	"mistral.ai":     true,
	"cohere.com":     true,
	"perplexity.ai":  true,
	"x.ai":           true,
}

// LatencyLookup resolves the observed latency EWMA for a destination domain.
// It is fed by the connection tracker's observation table.
type LatencyLookup func(domain string) (time.Duration, bool)

// Config wires the classifier's condition dependencies.
type Config struct {
	Geo *geo.Tables
	// Latency resolves observed per-domain latency for the HighLatency
	// condition. Nil means the condition never holds.
	Latency LatencyLookup
	// HighLatencyThreshold is read per evaluation so runtime config changes
	// apply immediately. Nil falls back to 1s.
	HighLatencyThreshold func() time.Duration
}

// Classifier evaluates destinations against a mutable, priority-ordered
// rule set. Classification never fails: a rule that cannot fire is skipped
// and an exhausted rule list yields the direct default.
type Classifier struct {
	mu      sync.RWMutex
	rules   []compiledRule
	nextSeq uint64

	geo            *geo.Tables
	latency        LatencyLookup
	highLatencyThr func() time.Duration
}

const defaultHighLatencyThreshold = time.Second

// New creates a Classifier with no rules.
func New(cfg Config) *Classifier {
	c := &Classifier{
		geo:            cfg.Geo,
		latency:        cfg.Latency,
		highLatencyThr: cfg.HighLatencyThreshold,
	}
	if c.geo == nil {
		c.geo = geo.NewTables()
	}
	if c.highLatencyThr == nil {
		c.highLatencyThr = func() time.Duration { return defaultHighLatencyThreshold }
	}
	return c
}

// AddRule adds a rule, keeping the set sorted by descending priority.
// Equal priorities keep insertion order. The rule slice is copy-on-write:
// mutations publish a fresh slice so Classify can iterate a snapshot
// without holding the lock.
func (c *Classifier) AddRule(r Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	next := make([]compiledRule, 0, len(c.rules)+1)
	next = append(next, c.rules...)
	next = append(next, compiledRule{
		Rule:    r,
		matcher: Compile(r.Pattern),
		seq:     c.nextSeq,
	})
	sortRules(next)
	c.rules = next
}

// RemoveRule removes the rule whose pattern source string equals pattern
// exactly. Returns false when no such rule exists.
func (c *Classifier) RemoveRule(pattern string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cr := range c.rules {
		if cr.matcher.Source() == pattern {
			next := make([]compiledRule, 0, len(c.rules)-1)
			next = append(next, c.rules[:i]...)
			next = append(next, c.rules[i+1:]...)
			c.rules = next
			return true
		}
	}
	return false
}

// Rules returns a snapshot of the rule set in evaluation order.
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Rule, len(c.rules))
	for i, cr := range c.rules {
		out[i] = cr.Rule
	}
	return out
}

func sortRules(rules []compiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].seq < rules[j].seq
	})
}

// Classify evaluates destination against the rule set. The first rule whose
// pattern matches the destination host and whose declared conditions all
// hold wins; otherwise the verdict is ActionDirect with DefaultReason.
func (c *Classifier) Classify(destination string) Result {
	host := netutil.ExtractHost(destination)
	domain := netutil.ExtractDomain(destination)
	aiService := aiServiceDomains[domain]

	// Published rule slices are never mutated, so the snapshot is safe to
	// iterate after the lock is released.
	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()

	for i := range rules {
		cr := &rules[i]
		if !cr.matcher.Match(host) {
			continue
		}
		if !c.conditionsHold(cr.Conditions, destination, domain, aiService) {
			continue
		}
		matched := cr.Rule
		return Result{
			Action:      cr.Action,
			MatchedRule: &matched,
			Reason:      cr.Reason,
			AiService:   aiService,
		}
	}
	return Result{Action: ActionDirect, Reason: DefaultReason, AiService: aiService}
}

func (c *Classifier) conditionsHold(conds []Condition, destination, domain string, aiService bool) bool {
	for _, cond := range conds {
		switch cond {
		case CondAiService:
			if !aiService {
				return false
			}
		case CondRussianTLD:
			if !c.geo.IsRussianTLD(destination) {
				return false
			}
		case CondGeoBlocked:
			if !c.geo.IsBlocked(destination) {
				return false
			}
		case CondHighLatency:
			if c.latency == nil {
				return false
			}
			observed, ok := c.latency(domain)
			if !ok || observed <= c.highLatencyThr() {
				return false
			}
		default:
			// Unknown condition: the rule can never fire.
			return false
		}
	}
	return true
}
