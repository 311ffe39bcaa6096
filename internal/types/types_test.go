package types

import (
	"math"
	"testing"
	"time"
)

func TestParseTradeSide(t *testing.T) {
	tests := []struct {
		raw    string
		want   TradeSide
		wantOk bool
	}{
		{"buy", SideBuy, true},
		{"SELL", SideSell, true},
		{"swap_in", SideBuy, true},
		{"swap_out", SideSell, true},
		{"transfer_in", SideReceive, true},
		{"transfer_out", SideSend, true},
		{" receive ", SideReceive, true},
		{"approve", "", false},
		{"stake", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseTradeSide(tt.raw)
			if ok != tt.wantOk {
				t.Fatalf("ParseTradeSide(%q) ok = %v, want %v", tt.raw, ok, tt.wantOk)
			}
			if got != tt.want {
				t.Errorf("ParseTradeSide(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTradeSideClassification(t *testing.T) {
	for _, side := range []TradeSide{SideBuy, SideReceive} {
		if !side.IsAcquisition() || side.IsDisposal() {
			t.Errorf("%s should classify as acquisition only", side)
		}
	}
	for _, side := range []TradeSide{SideSell, SideSend} {
		if !side.IsDisposal() || side.IsAcquisition() {
			t.Errorf("%s should classify as disposal only", side)
		}
	}
}

func TestTradeValid(t *testing.T) {
	base := Trade{
		Date:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Side:         SideBuy,
		Symbol:       "ETH",
		Units:        1.5,
		UnitPriceUsd: 2000,
	}
	if !base.Valid() {
		t.Fatal("base trade should be valid")
	}

	tests := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"empty symbol", func(tr *Trade) { tr.Symbol = "" }},
		{"zero units", func(tr *Trade) { tr.Units = 0 }},
		{"NaN units", func(tr *Trade) { tr.Units = math.NaN() }},
		{"infinite units", func(tr *Trade) { tr.Units = math.Inf(1) }},
		{"NaN price", func(tr *Trade) { tr.UnitPriceUsd = math.NaN() }},
		{"negative price", func(tr *Trade) { tr.UnitPriceUsd = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tt.mutate(&tr)
			if tr.Valid() {
				t.Error("trade should be invalid")
			}
		})
	}
}

func TestValidAddress(t *testing.T) {
	valid := []string{
		"0x1111111111111111111111111111111111111111",
		"0xAbCdEf0123456789abcdef0123456789ABCDEF01",
	}
	for _, addr := range valid {
		if !ValidAddress(addr) {
			t.Errorf("ValidAddress(%q) = false, want true", addr)
		}
	}

	invalid := []string{
		"",
		"0x123",
		"1111111111111111111111111111111111111111",
		"0xZZ11111111111111111111111111111111111111",
	}
	for _, addr := range invalid {
		if ValidAddress(addr) {
			t.Errorf("ValidAddress(%q) = true, want false", addr)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("  0xABCDef1111111111111111111111111111111111 ")
	want := "0xabcdef1111111111111111111111111111111111"
	if got != want {
		t.Errorf("NormalizeAddress() = %q, want %q", got, want)
	}
}

func TestRounding(t *testing.T) {
	if got := RoundUsd(12.3456); got != 12.35 {
		t.Errorf("RoundUsd(12.3456) = %v, want 12.35", got)
	}
	if got := RoundUsd(-7.994); got != -7.99 {
		t.Errorf("RoundUsd(-7.994) = %v, want -7.99", got)
	}
	if got := RoundUnits(0.123456789); got != 0.12345679 {
		t.Errorf("RoundUnits() = %v, want 0.12345679", got)
	}
}
