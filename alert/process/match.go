package process

import (
	"fmt"
	"regexp"

	"github.com/prometheus/common/model"

	"poundcake/config"
	"poundcake/internal/models"
)

// Rule 编译后的修复规则
type Rule struct {
	Name       string
	Action     string
	Parameters map[string]string
	Continue   bool

	alertName *regexp.Regexp
	matchers  []Matcher
	statuses  map[string]struct{}
}

// Ruleset 按配置顺序匹配，命中未设置 continue 的规则后停止
type Ruleset struct {
	rules []Rule
}

func CompileRules(rules []config.Rule) (*Ruleset, error) {
	rs := &Ruleset{rules: make([]Rule, 0, len(rules))}

	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r.Name == "" || r.Action == "" {
			return nil, fmt.Errorf("rules[%d]: name 和 action 不能为空", i)
		}
		if _, ok := seen[r.Name]; ok {
			return nil, fmt.Errorf("rules[%d]: 规则名重复 %s", i, r.Name)
		}
		seen[r.Name] = struct{}{}

		compiled := Rule{
			Name:       r.Name,
			Action:     r.Action,
			Parameters: r.Parameters,
			Continue:   r.Continue,
		}

		if r.AlertName != "" {
			re, err := anchored(r.AlertName)
			if err != nil {
				return nil, fmt.Errorf("rules[%d] %s: 无效的 alertname %q: %w", i, r.Name, r.AlertName, err)
			}
			compiled.alertName = re
		}

		for _, s := range r.Matchers {
			m, err := ParseMatcher(s)
			if err != nil {
				return nil, fmt.Errorf("rules[%d] %s: %w", i, r.Name, err)
			}
			compiled.matchers = append(compiled.matchers, m)
		}

		if len(r.Statuses) > 0 {
			compiled.statuses = make(map[string]struct{}, len(r.Statuses))
			for _, s := range r.Statuses {
				compiled.statuses[s] = struct{}{}
			}
		}

		rs.rules = append(rs.rules, compiled)
	}

	return rs, nil
}

func (rs *Ruleset) Len() int {
	return len(rs.rules)
}

// Match 返回命中的规则，为空表示无需修复
func (rs *Ruleset) Match(alert models.Alert) []Rule {
	labels := alertLabels(alert)

	var matched []Rule
	for _, r := range rs.rules {
		if !r.matches(alert, labels) {
			continue
		}
		matched = append(matched, r)
		if !r.Continue {
			break
		}
	}

	return matched
}

func (r Rule) matches(alert models.Alert, labels model.LabelSet) bool {
	if r.statuses != nil {
		if _, ok := r.statuses[string(alert.Status)]; !ok {
			return false
		}
	}

	if r.alertName != nil && !r.alertName.MatchString(string(labels[model.AlertNameLabel])) {
		return false
	}

	for _, m := range r.matchers {
		if !EvalCondition(labels, m) {
			return false
		}
	}

	return true
}

func alertLabels(alert models.Alert) model.LabelSet {
	labels := make(model.LabelSet, len(alert.Labels)+1)
	for k, v := range alert.Labels {
		labels[model.LabelName(k)] = model.LabelValue(v)
	}
	if _, ok := labels[model.AlertNameLabel]; !ok && alert.AlertName != "" {
		labels[model.AlertNameLabel] = model.LabelValue(alert.AlertName)
	}
	return labels
}
