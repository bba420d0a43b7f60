// Package policy evaluates the relay admission policy.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Input is the document a relay is judged on.
type Input struct {
	OwnerID            string
	Provider           string
	Model              string
	ModelType          string
	MessageCount       int
	MaxHistoryMessages int
}

func (in Input) document() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":             in.OwnerID,
		"provider":             in.Provider,
		"model":                in.Model,
		"model_type":           in.ModelType,
		"message_count":        in.MessageCount,
		"max_history_messages": in.MaxHistoryMessages,
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Decision string
	Reason   string
}

// Allowed reports whether the relay may proceed.
func (d Decision) Allowed() bool { return d.Decision != DecisionDeny }

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
// The module must define data.relay_policy.decision and data.relay_policy.reason.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("decision = data.relay_policy.decision; reason = data.relay_policy.reason"),
		rego.Module("relay_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Load builds an engine from path, or from DefaultPolicy when path is empty.
func Load(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate runs the admission policy for one relay.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.document()))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined result means the module has no default; treat it as allow.
	if len(results) == 0 {
		return Decision{Decision: DecisionAllow, Reason: "default"}, nil
	}

	decision, ok := results[0].Bindings["decision"].(string)
	if !ok {
		return Decision{}, fmt.Errorf("policy decision is %T, want string", results[0].Bindings["decision"])
	}
	reason, _ := results[0].Bindings["reason"].(string)

	return Decision{Decision: decision, Reason: reason}, nil
}

// DefaultPolicy admits every relay whose history fits the configured limit.
const DefaultPolicy = `
package relay_policy

default decision = "allow"

default reason = ""

too_long {
	input.max_history_messages > 0
	input.message_count > input.max_history_messages
}

decision = "deny" {
	too_long
}

reason = "conversation history exceeds the configured limit" {
	too_long
}
`
