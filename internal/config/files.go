package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wayfinder-proxy/wayfinder/internal/classify"
	"github.com/wayfinder-proxy/wayfinder/internal/route"
)

// RuleDef is the YAML shape of one classification rule.
type RuleDef struct {
	Pattern    string   `yaml:"pattern"`
	Action     string   `yaml:"action"`
	Priority   int      `yaml:"priority"`
	Reason     string   `yaml:"reason"`
	Conditions []string `yaml:"conditions,omitempty"`
}

// RulesFile is the YAML document holding the rule set.
type RulesFile struct {
	Rules []RuleDef `yaml:"rules"`
}

// RouteDef is the YAML shape of one route definition.
type RouteDef struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Endpoints []string `yaml:"endpoints,omitempty"`
	Weight    int      `yaml:"weight"`

	ProbeTarget   string   `yaml:"probe_target"`
	ProbeInterval Duration `yaml:"probe_interval,omitempty"`
	ProbeTimeout  Duration `yaml:"probe_timeout,omitempty"`
}

// RoutesFile is the YAML document holding the route set.
type RoutesFile struct {
	Routes []RouteDef `yaml:"routes"`
}

// LoadRules parses a rules YAML file into classifier rules. A missing file
// is not an error: it yields an empty rule set (everything defaults to
// direct).
func LoadRules(path string) ([]classify.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read rules %s: %w", path, err)
	}
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse rules %s: %w", path, err)
	}

	rules := make([]classify.Rule, 0, len(file.Rules))
	for i, def := range file.Rules {
		action, err := classify.ParseAction(def.Action)
		if err != nil {
			return nil, fmt.Errorf("config: rules %s entry %d: %w", path, i, err)
		}
		conds := make([]classify.Condition, 0, len(def.Conditions))
		for _, c := range def.Conditions {
			cond, err := classify.ParseCondition(c)
			if err != nil {
				return nil, fmt.Errorf("config: rules %s entry %d: %w", path, i, err)
			}
			conds = append(conds, cond)
		}
		rules = append(rules, classify.Rule{
			Pattern:    def.Pattern,
			Action:     action,
			Priority:   def.Priority,
			Reason:     def.Reason,
			Conditions: conds,
		})
	}
	return rules, nil
}

// LoadRoutes parses a routes YAML file into route definitions.
func LoadRoutes(path string) ([]route.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read routes %s: %w", path, err)
	}
	var file RoutesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse routes %s: %w", path, err)
	}

	defs := make([]route.Definition, 0, len(file.Routes))
	for _, def := range file.Routes {
		defs = append(defs, route.Definition{
			ID:            def.ID,
			Name:          def.Name,
			Kind:          route.Kind(def.Kind),
			Endpoints:     def.Endpoints,
			Weight:        def.Weight,
			ProbeTarget:   def.ProbeTarget,
			ProbeInterval: def.ProbeInterval.Std(),
			ProbeTimeout:  def.ProbeTimeout.Std(),
		})
	}
	return defs, nil
}
