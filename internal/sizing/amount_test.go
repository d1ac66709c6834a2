package sizing

import "testing"

func TestNativeAmount(t *testing.T) {
	tests := []struct {
		name     string
		human    string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"whole", "100", 6, 100_000_000, false},
		{"fractional", "1.5", 9, 1_500_000_000, false},
		{"full precision", "0.000001", 6, 1, false},
		{"zero", "0", 6, 0, false},
		{"excess precision", "0.0000001", 6, 0, true},
		{"negative", "-1", 6, 0, true},
		{"garbage", "one", 6, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NativeAmount(tt.human, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.human)
				}
				return
			}
			if err != nil {
				t.Fatalf("NativeAmount(%q): %v", tt.human, err)
			}
			if got != tt.want {
				t.Errorf("NativeAmount(%q) = %d, want %d", tt.human, got, tt.want)
			}
		})
	}
}

func TestHumanAmount_RoundTrip(t *testing.T) {
	native, err := NativeAmount("1.5", 9)
	if err != nil {
		t.Fatalf("NativeAmount: %v", err)
	}
	if got := HumanAmount(native, 9).String(); got != "1.5" {
		t.Errorf("HumanAmount = %s, want 1.5", got)
	}
}

func TestFormatUsd6(t *testing.T) {
	if got := FormatUsd6(150_000_000); got != "150.00" {
		t.Errorf("FormatUsd6 = %s, want 150.00", got)
	}
	if got := FormatUsd6(1_234_567); got != "1.23" {
		t.Errorf("FormatUsd6 = %s, want 1.23", got)
	}
}
