package source

import (
	"testing"
)

func TestIsFundIdentifier(t *testing.T) {
	cases := []struct {
		symbol string
		want   bool
	}{
		{"INF209K01157", true},
		{"INF174K01336", true},
		{"RELIANCE", false},
		{"TCS", false},
		{"NSE:RELIANCE", false},
		{"INF209K0115", false},  // too short
		{"inf209k01157", false}, // lower case
		{"INF209K0115X", false}, // check digit must be numeric
	}
	for _, tc := range cases {
		if got := IsFundIdentifier(tc.symbol); got != tc.want {
			t.Errorf("IsFundIdentifier(%q) = %v, want %v", tc.symbol, got, tc.want)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		symbol string
		want   string
	}{
		{"RELIANCE", "NSE:RELIANCE"},
		{"NSE:RELIANCE", "NSE:RELIANCE"},
		{"BSE:SENSEX", "BSE:SENSEX"},
		{"INF209K01157", "MF:INF209K01157"},
	}
	for _, tc := range cases {
		if got := Canonicalize(tc.symbol, "NSE"); got != tc.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tc.symbol, got, tc.want)
		}
	}
}
