package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	require.NoError(t, p.Validate())
	assert.False(t, p.Enabled)
	assert.Equal(t, ModeManual, p.Mode)
	assert.Equal(t, Rupees(50000), p.MaxAutoAmount)
	assert.Equal(t, time.Hour, p.SessionTimeout)
	assert.False(t, p.Automatic())
}

func TestPolicy_Automatic(t *testing.T) {
	p := DefaultPolicy()
	p.Mode = ModeAutomatic
	assert.False(t, p.Automatic(), "disabled automatic policy")

	p.Enabled = true
	assert.True(t, p.Automatic())

	p.Mode = ModeManual
	assert.False(t, p.Automatic(), "enabled manual policy")
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Policy) {}},
		{name: "zero limit", mutate: func(p *Policy) { p.MaxAutoAmount = 0 }},
		{name: "minimum timeout", mutate: func(p *Policy) { p.SessionTimeout = MinSessionTimeout }},
		{name: "maximum timeout", mutate: func(p *Policy) { p.SessionTimeout = MaxSessionTimeout }},
		{name: "negative limit", mutate: func(p *Policy) { p.MaxAutoAmount = -1 }, wantErr: true},
		{name: "timeout too short", mutate: func(p *Policy) { p.SessionTimeout = 59 * time.Second }, wantErr: true},
		{name: "timeout too long", mutate: func(p *Policy) { p.SessionTimeout = 25 * time.Hour }, wantErr: true},
		{name: "unknown mode", mutate: func(p *Policy) { p.Mode = "sometimes" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			if tt.wantErr {
				assert.Error(t, p.Validate())
			} else {
				assert.NoError(t, p.Validate())
			}
		})
	}
}

func TestPolicyUpdate_Apply(t *testing.T) {
	enabled := true
	limit := Rupees(10)

	got := PolicyUpdate{Enabled: &enabled, MaxAutoAmount: &limit}.Apply(DefaultPolicy())

	assert.True(t, got.Enabled)
	assert.Equal(t, limit, got.MaxAutoAmount)
	assert.Equal(t, ModeManual, got.Mode, "nil fields keep their value")
	assert.Equal(t, time.Hour, got.SessionTimeout)
}
