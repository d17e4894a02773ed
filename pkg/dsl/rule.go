package dsl

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/hybridrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，声明上下文变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType), // 0=Sunday ... 6=Saturday
		cel.Variable("weekend", cel.BoolType),
		cel.Variable("device", cel.StringType),
	)
}

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Rule 是一条上下文规则：When 为真时作用于 ItemType 类别。
//
// 表达式使用 CEL 语法，可用变量：
//   - hour：0-23
//   - weekday：0-6（0 为周日）
//   - weekend：bool
//   - device：mobile / desktop / tablet / ""
//
// 示例：
//   - `hour >= 12 && hour < 15` → 午餐时段
//   - `weekend` → 周末
//   - `device == "mobile" && !weekend`
type Rule struct {
	Name     string        `yaml:"name" json:"name"`
	When     string        `yaml:"when" json:"when"`
	ItemType core.ItemType `yaml:"item_type" json:"item_type"`
	Weight   float64       `yaml:"weight" json:"weight"` // 召回中是 boost，重排中是乘数
	Reason   string        `yaml:"reason" json:"reason"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// RuleSet 是编译后的规则集，编译一次、并发求值。
type RuleSet struct {
	rules []compiledRule
}

// Compile 编译规则，任一表达式非法即返回错误（启动期失败优于请求期失败）。
func Compile(rules []Rule) (*RuleSet, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	out := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if _, err := core.ParseItemType(string(r.ItemType)); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile error: %v", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must return bool, got %v", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: program error: %v", r.Name, err)
		}
		out.rules = append(out.rules, compiledRule{Rule: r, prg: prg})
	}
	return out, nil
}

// MustCompile 用于内置默认规则。
func MustCompile(rules []Rule) *RuleSet {
	rs, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return rs
}

// Len 规则条数。
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Match 返回在 rc 下成立的规则，保持定义顺序。求值失败的规则视为不成立。
func (rs *RuleSet) Match(rc core.RequestContext) []Rule {
	if rs == nil || len(rs.rules) == 0 {
		return nil
	}
	input := buildInput(rc)
	var out []Rule
	for _, r := range rs.rules {
		val, _, err := r.prg.Eval(input)
		if err != nil {
			continue
		}
		if ok, _ := val.Value().(bool); ok {
			out = append(out, r.Rule)
		}
	}
	return out
}

// MatchType 只返回作用于某类别的成立规则。
func (rs *RuleSet) MatchType(rc core.RequestContext, t core.ItemType) []Rule {
	var out []Rule
	for _, r := range rs.Match(rc) {
		if r.ItemType == t {
			out = append(out, r)
		}
	}
	return out
}

func buildInput(rc core.RequestContext) map[string]any {
	return map[string]any{
		"hour":    int64(rc.Hour),
		"weekday": int64(rc.Weekday),
		"weekend": rc.IsWeekend(),
		"device":  rc.Device,
	}
}

// LoadRules 从 YAML 文件加载规则列表：
//
//	rules:
//	  - name: lunch
//	    when: "hour >= 12 && hour < 15"
//	    item_type: recipe
//	    weight: 1.5
//	    reason: "Es hora de comer"
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return doc.Rules, nil
}
