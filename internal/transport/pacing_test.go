package transport

import "testing"

func TestBitratePacerAllowsWithinBudget(t *testing.T) {
	p := NewBitratePacer(1_000_000)
	if !p.AllowN(1000) {
		t.Fatal("expected small write within burst to be allowed")
	}
}

func TestBitratePacerRejectsOverBurst(t *testing.T) {
	p := NewBitratePacer(1000)
	if p.AllowN(10_000_000) {
		t.Fatal("expected oversized write to exceed burst and be rejected")
	}
}

func TestBitratePacerSetBitrateUpdatesBudget(t *testing.T) {
	p := NewBitratePacer(1000)
	p.SetBitrate(5_000_000)
	if got := p.BitrateBps(); got != 5_000_000 {
		t.Fatalf("BitrateBps() = %d, want 5000000", got)
	}
}

func TestBitratePacerZeroBitrateClampsToOne(t *testing.T) {
	p := NewBitratePacer(0)
	if got := p.BitrateBps(); got != 1 {
		t.Fatalf("BitrateBps() = %d, want 1", got)
	}
}
