package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message wins",
			err:  &Error{Op: "registry.Get", Message: "backend 'x' not found", Err: ErrNotFound},
			want: "backend 'x' not found",
		},
		{
			name: "op and id",
			err:  &Error{Op: "registry.Get", ID: "x", Err: ErrNotFound},
			want: "registry.Get [x]: not found",
		},
		{
			name: "op only",
			err:  &Error{Op: "client.Execute", Err: ErrTransport},
			want: "client.Execute: transport failure",
		},
		{
			name: "kind only",
			err:  &Error{Kind: KindRemote},
			want: "remote error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ValidationError("op", "bad %s", "text"), KindValidation},
		{fmt.Errorf("wrap: %w", ErrNotFound), KindNotFound},
		{EntitlementError(4), KindEntitlement},
		{fmt.Errorf("dial: %w", ErrTransport), KindTransport},
		{ErrCircuitOpen, KindTransport},
		{&Error{Err: ErrRemote}, KindRemote},
		{ErrBackendFault, KindBackend},
		{ErrInvalidConfiguration, KindConfig},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestEntitlementError(t *testing.T) {
	err := EntitlementError(4)
	assert.True(t, errors.Is(err, ErrEntitlement))
	assert.Contains(t, err.Error(), "level 4")
	assert.Equal(t, "level-4", err.ID)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrTransport)))
	assert.False(t, IsRetryable(ErrRemote))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(nil))
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityPerformance, ParsePriority(" Performance "))
	assert.Equal(t, PrioritySafety, ParsePriority("safety"))
	assert.Equal(t, PriorityReactive, ParsePriority("REACTIVE"))
	assert.Equal(t, PriorityBalanced, ParsePriority("whatever"))
	assert.Equal(t, PriorityBalanced, ExecutionContext{}.EffectivePriority())
}

func TestRequestOptions(t *testing.T) {
	req := Request{
		Options: map[string]interface{}{"priority": "safety"},
		Context: ExecutionContext{Options: map[string]interface{}{"champion": " rust ", "priority": "reactive"}},
	}
	assert.Equal(t, "safety", req.StringOption("priority"))
	assert.Equal(t, "rust", req.StringOption("champion"))
	assert.Equal(t, "", req.StringOption("missing"))
}

func TestFailedResult(t *testing.T) {
	res := FailedResult(LevelMultiSector, EntitlementError(4), 0, nil)
	assert.False(t, res.Success)
	assert.Equal(t, []string{}, res.AnnotationsUsed)
	assert.Equal(t, KindEntitlement, res.ErrorKind)
	assert.ErrorIs(t, res.Err, ErrEntitlement)
	assert.False(t, Level(5).Valid())
	assert.Equal(t, "cascade", LevelCascade.String())
}
