package domain

import "testing"

func TestQuoteAmountParsing(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want uint64
	}{
		{"plain", "1500000", 1_500_000},
		{"max uint64", "18446744073709551615", 18446744073709551615},
		{"overflow", "18446744073709551616", 0},
		{"far past uint64", "99999999999999999999999", 0},
		{"empty", "", 0},
		{"signed", "-5", 0},
		{"garbage", "12a4", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &Quote{OutAmount: tc.in, InAmount: tc.in}
			if got := q.OutAmountBaseUnits(); got != tc.want {
				t.Fatalf("OutAmountBaseUnits(%q) = %d, want %d", tc.in, got, tc.want)
			}
			if got := q.InAmountBaseUnits(); got != tc.want {
				t.Fatalf("InAmountBaseUnits(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}
