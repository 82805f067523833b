package models

import "testing"

func TestRatingValidate(t *testing.T) {
	valid := []Rating{0.5, 1, 2.5, 3, 4.5, 5}
	for _, r := range valid {
		if err := r.Validate(); err != nil {
			t.Errorf("rating %v should be valid: %v", r, err)
		}
	}

	invalid := []Rating{0, 0.25, 0.75, 3.3, 5.5, -1}
	for _, r := range invalid {
		if err := r.Validate(); err == nil {
			t.Errorf("rating %v should be rejected", r)
		}
	}
}

func TestRatingWireValue(t *testing.T) {
	tests := []struct {
		rating Rating
		want   int
	}{
		{0.5, 1},
		{2.5, 5},
		{3, 6},
		{5, 10},
	}
	for _, tt := range tests {
		if got := tt.rating.WireValue(); got != tt.want {
			t.Errorf("WireValue(%v) = %d, want %d", tt.rating, got, tt.want)
		}
	}
}
