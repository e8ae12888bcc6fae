package domain

import "testing"

func TestStatusSymbolRoundTrip(t *testing.T) {
	tests := []struct {
		symbol string
		status Status
	}{
		{"-", StatusPending},
		{"~", StatusConfirmed},
		{"@", StatusArrived},
		{"^", StatusCheckout},
		{"*", StatusNoShow},
		{"?", StatusCancelled},
		{"x", StatusDeleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := ParseStatusSymbol(tt.symbol); got != tt.status {
				t.Fatalf("ParseStatusSymbol(%q) = %q, want %q", tt.symbol, got, tt.status)
			}
			if got := tt.status.Symbol(); got != tt.symbol {
				t.Fatalf("%q.Symbol() = %q, want %q", tt.status, got, tt.symbol)
			}
			if !tt.status.Valid() {
				t.Fatalf("%q.Valid() = false", tt.status)
			}
		})
	}
}

func TestParseStatusSymbol_UnknownDefaultsToPending(t *testing.T) {
	for _, sym := range []string{"", "!", "pending", "~~", "X"} {
		if got := ParseStatusSymbol(sym); got != StatusPending {
			t.Fatalf("ParseStatusSymbol(%q) = %q, want %q", sym, got, StatusPending)
		}
	}
}

func TestStatusScreened(t *testing.T) {
	if StatusCancelled.Screened() || StatusDeleted.Screened() {
		t.Fatalf("cancelled and deleted rows must not be screened")
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusArrived, StatusCheckout, StatusNoShow} {
		if !s.Screened() {
			t.Fatalf("%q.Screened() = false, want true", s)
		}
	}
}
