package process

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/common/model"
	"github.com/zeromicro/go-zero/core/logc"
)

// Matcher 标签匹配条件，例如 severity="critical"、instance=~"node-.*"
type Matcher struct {
	Label    model.LabelName
	Operator string
	Value    string
	re       *regexp.Regexp
}

func (m Matcher) String() string {
	return fmt.Sprintf("%s%s%q", m.Label, m.Operator, m.Value)
}

type ConditionEvaluator func(value string, m Matcher) bool

var EvalOperators = map[string]ConditionEvaluator{
	"=": func(value string, m Matcher) bool {
		return value == m.Value
	},
	"!=": func(value string, m Matcher) bool {
		return value != m.Value
	},
	"=~": func(value string, m Matcher) bool {
		return m.re.MatchString(value)
	},
	"!~": func(value string, m Matcher) bool {
		return !m.re.MatchString(value)
	},
}

var matcherPattern = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*(=~|!~|!=|=)\s*(.*?)\s*$`)

// ParseMatcher 解析 label<op>"value" 形式的匹配条件，值两侧引号可省略
func ParseMatcher(s string) (Matcher, error) {
	parts := matcherPattern.FindStringSubmatch(s)
	if parts == nil {
		return Matcher{}, fmt.Errorf("无效的匹配条件: %q", s)
	}

	m := Matcher{
		Label:    model.LabelName(parts[1]),
		Operator: parts[2],
		Value:    unquote(parts[3]),
	}
	if !m.Label.IsValid() {
		return Matcher{}, fmt.Errorf("无效的标签名: %q", parts[1])
	}

	if m.Operator == "=~" || m.Operator == "!~" {
		re, err := anchored(m.Value)
		if err != nil {
			return Matcher{}, fmt.Errorf("无效的正则 %q: %w", m.Value, err)
		}
		m.re = re
	}

	return m, nil
}

// EvalCondition 评估单个标签条件，缺失的标签按空字符串处理
func EvalCondition(labels model.LabelSet, m Matcher) bool {
	evaluator, ok := EvalOperators[m.Operator]
	if !ok {
		logc.Error(context.Background(), fmt.Sprintf("无效的匹配条件, Operator: %s, Value: %v", m.Operator, m.Value))
		return false
	}

	return evaluator(string(labels[m.Label]), m)
}

func anchored(expr string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + expr + ")$")
}

func unquote(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v[1 : len(v)-1]
	}
	return v
}
