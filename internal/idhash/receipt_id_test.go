package idhash

import (
	"testing"
)

func TestComputeReceiptID(t *testing.T) {
	wallet := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	market := "5q6vWXsT3yFHhBN6nWdjrK2oXA7aqQy8mDmxbCTcd8hY"
	openSig := "4fz2Vqs7N7qkBM3x1pW9vYtGJ2dQpRkCwXjLbShT8aEb"

	got := ComputeReceiptID(wallet, market, openSig)
	if len(got) != 64 {
		t.Errorf("ComputeReceiptID() length = %d, want 64", len(got))
	}

	// Same inputs must produce the same id.
	got2 := ComputeReceiptID(wallet, market, openSig)
	if got != got2 {
		t.Errorf("ComputeReceiptID() not deterministic: %s != %s", got, got2)
	}
}

func TestComputeReceiptID_DifferentInputs(t *testing.T) {
	base := ComputeReceiptID("wallet", "market", "sig")

	cases := []struct {
		name    string
		wallet  string
		market  string
		openSig string
	}{
		{"different wallet", "wallet2", "market", "sig"},
		{"different market", "wallet", "market2", "sig"},
		{"different signature", "wallet", "market", "sig2"},
		// Field boundaries must matter, not just concatenation.
		{"shifted boundary", "walletm", "arket", "sig"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeReceiptID(tc.wallet, tc.market, tc.openSig); got == base {
				t.Errorf("ComputeReceiptID() collision with base id")
			}
		})
	}
}
