package knowledge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"exec with command", Step{Action: ActionExec, Command: "npm install"}, false},
		{"exec without command", Step{Action: ActionExec}, true},
		{"patch with diff", Step{Action: ActionPatch, Diff: "-a\n+b"}, false},
		{"patch without diff", Step{Action: ActionPatch}, true},
		{"delete with target", Step{Action: ActionDelete, Target: "node_modules"}, false},
		{"delete without target", Step{Action: ActionDelete}, true},
		{"create with content", Step{Action: ActionCreate, Target: ".npmrc", Content: "legacy-peer-deps=true"}, false},
		{"create empty", Step{Action: ActionCreate}, true},
		{"description", Step{Action: ActionDescription, Description: "restart the dev server"}, false},
		{"unknown action", Step{Action: "reboot"}, true},
		{"empty action", Step{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStepUnmarshalRejectsUnknownAction(t *testing.T) {
	var s Step
	err := json.Unmarshal([]byte(`{"action":"summon","command":"demon"}`), &s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	err = json.Unmarshal([]byte(`{"action":"exec","command":"pip install -U pip"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, ActionExec, s.Action)
}

func TestValidateSteps(t *testing.T) {
	assert.ErrorIs(t, ValidateSteps(nil), ErrValidation)

	err := ValidateSteps([]Step{
		{Action: ActionExec, Command: "go mod tidy"},
		{Action: ActionPatch},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
}

func TestSolutionRecomputeRate(t *testing.T) {
	s := &Solution{SuccessCount: 8, FailureCount: 2}
	s.RecomputeRate()
	assert.Equal(t, 10, s.TotalAttempts)
	assert.InDelta(t, 0.8, s.SuccessRate, 1e-9)

	s.FailureCount++
	s.RecomputeRate()
	assert.Equal(t, 11, s.TotalAttempts)
	assert.InDelta(t, 8.0/11.0, s.SuccessRate, 1e-9)

	empty := &Solution{}
	empty.RecomputeRate()
	assert.Zero(t, empty.TotalAttempts)
	assert.Zero(t, empty.SuccessRate)
}
