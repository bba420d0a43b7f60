package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      Input
		allowed bool
	}{
		{"within limit", Input{Provider: "openai", Model: "gpt-4o", ModelType: "A", MessageCount: 3, MaxHistoryMessages: 200}, true},
		{"at limit", Input{MessageCount: 200, MaxHistoryMessages: 200}, true},
		{"over limit", Input{MessageCount: 201, MaxHistoryMessages: 200}, false},
		{"no limit", Input{MessageCount: 5000, MaxHistoryMessages: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := engine.Evaluate(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed())
			if !tt.allowed {
				assert.Equal(t, DecisionDeny, d.Decision)
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestCustomPolicyFile(t *testing.T) {
	const custom = `
package relay_policy

default decision = "allow"

default reason = ""

decision = "deny" {
	input.provider == "openrouter"
}

reason = "provider disabled" {
	input.provider == "openrouter"
}
`
	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o600))

	engine, err := Load(context.Background(), path)
	require.NoError(t, err)

	d, err := engine.Evaluate(context.Background(), Input{Provider: "openrouter"})
	require.NoError(t, err)
	assert.False(t, d.Allowed())
	assert.Equal(t, "provider disabled", d.Reason)

	d, err = engine.Evaluate(context.Background(), Input{Provider: "openai"})
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package relay_policy\n\ndecision = {")
	assert.Error(t, err)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
