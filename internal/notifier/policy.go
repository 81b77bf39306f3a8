package notifier

import (
	"fmt"
	"log"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"handraise/pkg/types"
)

// Policy is a compiled suppression rule. When the rule evaluates to true for
// an intent, the intent is not delivered.
//
// The rule sees these variables:
//
//	kind          "hand_raised" or "new_question"
//	class_code    the observed class
//	student_id    the student the intent is about
//	student_name  resolved display name
//	text          question text, empty for hands
//	hour          hour of day (0-23, UTC) the intent was created
//
// Example: kind == "new_question" && len(text) < 3
type Policy struct {
	rule    string
	program *exprvm.Program
}

// NewPolicy compiles rule. An empty rule yields a nil policy that never
// suppresses.
func NewPolicy(rule string) (*Policy, error) {
	if rule == "" {
		return nil, nil
	}
	program, err := exprlang.Compile(rule,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid notification rule %q: %w", rule, err)
	}
	return &Policy{rule: rule, program: program}, nil
}

// Rule returns the source of the policy.
func (p *Policy) Rule() string {
	if p == nil {
		return ""
	}
	return p.rule
}

// Suppresses reports whether intent should be withheld. Evaluation errors
// are logged and the intent is delivered.
func (p *Policy) Suppresses(intent types.Intent) bool {
	if p == nil {
		return false
	}
	result, err := exprlang.Run(p.program, intentEnv(intent))
	if err != nil {
		log.Printf("Notification rule failed: rule=%q tag=%s: %v", p.rule, intent.Tag, err)
		return false
	}
	suppress, _ := result.(bool)
	return suppress
}

func intentEnv(intent types.Intent) map[string]any {
	return map[string]any{
		"kind":         string(intent.Kind),
		"class_code":   intent.ClassCode,
		"student_id":   intent.StudentID,
		"student_name": intent.StudentName,
		"text":         intent.Text,
		"hour":         intent.CreatedAt.UTC().Hour(),
	}
}
