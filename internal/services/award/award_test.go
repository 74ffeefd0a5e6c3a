package award

import "testing"

func TestAward(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sample byte
		want   int64
	}{
		{sample: 0, want: 0},
		{sample: 1, want: 0},
		{sample: 70, want: 0},
		{sample: 71, want: 7},
		{sample: 85, want: 7},
		{sample: 255, want: 7},
	}

	for _, tt := range tests {
		if got := Award(tt.sample); got != tt.want {
			t.Errorf("Award(%d) = %d, want %d", tt.sample, got, tt.want)
		}
	}
}

func TestAward_OnlyTwoOutcomes(t *testing.T) {
	t.Parallel()

	for s := range 256 {
		got := Award(byte(s))
		if got != 0 && got != Payout {
			t.Fatalf("Award(%d) = %d, want 0 or %d", s, got, Payout)
		}
	}
}
