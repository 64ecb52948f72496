package types

import "testing"

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		num, den int64
		want     int64
	}{
		{num: 10, den: 4, want: 3},  // 2.5 -> 3
		{num: 9, den: 4, want: 2},   // 2.25 -> 2
		{num: 11, den: 4, want: 3},  // 2.75 -> 3
		{num: -10, den: 4, want: -3},
		{num: 0, den: 7, want: 0},
	}
	for _, tt := range tests {
		if got := RoundHalfUp(tt.num, tt.den); got != tt.want {
			t.Errorf("RoundHalfUp(%d, %d) = %d, want %d", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestApplyBps(t *testing.T) {
	// 18% of 100.00 = 18.00
	if got := ApplyBps(10000, Percent(18)); got != 1800 {
		t.Fatalf("expected 1800, got %d", got)
	}
	// 18% of 0.05 = 0.009 -> 0.01
	if got := ApplyBps(5, Percent(18)); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	// 5% of 0.10 = 0.005 -> half rounds up to 0.01
	if got := ApplyBps(10, Percent(5)); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestValidID(t *testing.T) {
	if !ValidID(string(NewID())) {
		t.Fatal("expected generated id to be valid")
	}
	if !ValidID("agent_42") {
		t.Fatal("expected short key to be valid")
	}
	for _, bad := range []string{"", "a b", "../etc", "x;drop"} {
		if ValidID(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}
