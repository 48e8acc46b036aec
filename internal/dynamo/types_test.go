package dynamo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"zeros", State{0.0, 0.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_MaxNorm(t *testing.T) {
	tests := []struct {
		state    State
		expected float64
	}{
		{State{3, -4}, 4.0},
		{State{-3, 2}, 3.0},
		{State{0, 0}, 0.0},
		{State{}, 0.0},
	}

	for _, tt := range tests {
		if got := tt.state.MaxNorm(); got != tt.expected {
			t.Errorf("MaxNorm(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_Arithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{4, 5, 6}

	sum := a.Add(b)
	if sum[0] != 5 || sum[1] != 7 || sum[2] != 9 {
		t.Errorf("Add failed: got %v", sum)
	}

	diff := b.Sub(a)
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}

	scaled := a.Scale(2)
	if scaled[0] != 2 || scaled[1] != 4 || scaled[2] != 6 {
		t.Errorf("Scale failed: got %v", scaled)
	}

	c := a.Clone()
	c[0] = 99
	if a[0] == 99 {
		t.Error("Clone did not create independent copy")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
	if !cfg.BoundsCheck {
		t.Error("DefaultConfig should check bounds")
	}
	if got := cfg.DateAt(31); got.Month() != 2 || got.Day() != 1 {
		t.Errorf("DateAt(31) = %v, want February 1st", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero steps", Config{Steps: 0, Dt: 1}},
		{"negative dt", Config{Steps: 1, Dt: -0.1}},
		{"NaN dt", Config{Steps: 1, Dt: math.NaN()}},
		{"negative step duration", Config{Steps: 1, Dt: 1, StepDuration: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestError(t *testing.T) {
	err := &Error{Kind: ErrWriteConflict, Symbol: "Runoff", Index: "{Reach:R1}", Step: 3, Time: 3}
	msg := err.Error()
	for _, part := range []string{"write conflict", `"Runoff"`, "{Reach:R1}", "step 3"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}

	wrapped := fmt.Errorf("run: %w", err)
	if !errors.Is(wrapped, ErrWriteConflict) {
		t.Error("errors.Is should match the kind through wrapping")
	}
	if KindOf(wrapped) != ErrWriteConflict {
		t.Errorf("KindOf = %v", KindOf(wrapped))
	}

	var de *Error
	if !errors.As(wrapped, &de) || de.Symbol != "Runoff" {
		t.Error("errors.As should recover the context")
	}
}

func TestErrorCycle(t *testing.T) {
	err := Errorf(ErrCyclicDependency, "", "same-step cycle")
	err.Cycle = []string{"A", "B", "A"}
	if !strings.Contains(err.Error(), "A -> B -> A") {
		t.Errorf("cycle missing from %q", err.Error())
	}

	stamped := err.At(4, 4.0)
	if stamped.Step != 4 || err.Step != -1 {
		t.Error("At should stamp a copy")
	}
}
