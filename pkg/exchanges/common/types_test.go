package common

import "testing"

func TestOrderStatusCanProgress(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusNew, StatusPartial, true},
		{StatusNew, StatusFilled, true},
		{StatusPartial, StatusFilled, true},
		{StatusPartial, StatusCanceled, true},
		{StatusPartial, StatusPartial, true},
		{StatusPartial, StatusNew, false},
		{StatusFilled, StatusPartial, false},
		{StatusCanceled, StatusNew, false},
		{StatusRejected, StatusFilled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanProgress(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{StatusFilled, StatusCanceled, StatusRejected, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []OrderStatus{StatusNew, StatusPartial, StatusUnknown} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
