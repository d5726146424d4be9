package model

import (
	"fmt"
	"time"
)

// RecordingMode selects whether candidates are recorded automatically or
// left for the manual wallet flow.
type RecordingMode string

const (
	ModeManual    RecordingMode = "manual"
	ModeAutomatic RecordingMode = "automatic"
)

// ParseRecordingMode validates a mode string.
func ParseRecordingMode(s string) (RecordingMode, error) {
	switch m := RecordingMode(s); m {
	case ModeManual, ModeAutomatic:
		return m, nil
	default:
		return "", fmt.Errorf("unknown recording mode %q", s)
	}
}

const (
	// MinSessionTimeout and MaxSessionTimeout bound Policy.SessionTimeout.
	MinSessionTimeout = time.Minute
	MaxSessionTimeout = 24 * time.Hour

	defaultSessionTimeout = 60 * time.Minute
	defaultMaxAutoRupees  = 50000
)

// Policy is the process-wide recording policy. It is treated as an
// immutable value; updates replace it as a whole.
type Policy struct {
	Enabled        bool
	Mode           RecordingMode
	MaxAutoAmount  Amount
	SessionTimeout time.Duration
	LastModifiedBy string
	LastAuditAt    time.Time
}

// DefaultPolicy returns the policy used when none has been stored yet.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:        false,
		Mode:           ModeManual,
		MaxAutoAmount:  Rupees(defaultMaxAutoRupees),
		SessionTimeout: defaultSessionTimeout,
	}
}

// Automatic reports whether the policy permits unattended recording.
func (p Policy) Automatic() bool {
	return p.Enabled && p.Mode == ModeAutomatic
}

// Validate checks the policy's field ranges.
func (p Policy) Validate() error {
	if _, err := ParseRecordingMode(string(p.Mode)); err != nil {
		return err
	}
	if p.MaxAutoAmount < 0 {
		return fmt.Errorf("max auto amount must not be negative, got %s", p.MaxAutoAmount)
	}
	if p.SessionTimeout < MinSessionTimeout || p.SessionTimeout > MaxSessionTimeout {
		return fmt.Errorf("session timeout must be between %s and %s, got %s",
			MinSessionTimeout, MaxSessionTimeout, p.SessionTimeout)
	}
	return nil
}

// PolicyUpdate is a partial administrative change. Nil fields keep the
// current value.
type PolicyUpdate struct {
	Enabled        *bool
	Mode           *RecordingMode
	MaxAutoAmount  *Amount
	SessionTimeout *time.Duration
}

// Apply returns p with the non-nil fields of u applied.
func (u PolicyUpdate) Apply(p Policy) Policy {
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.Mode != nil {
		p.Mode = *u.Mode
	}
	if u.MaxAutoAmount != nil {
		p.MaxAutoAmount = *u.MaxAutoAmount
	}
	if u.SessionTimeout != nil {
		p.SessionTimeout = *u.SessionTimeout
	}
	return p
}
