package budget

import (
	"sync"
	"testing"
	"time"
)

// TestBudget_ConsumeGas tests consumption up to and past the limit.
func TestBudget_ConsumeGas(t *testing.T) {
	b := WithGasLimit(10)
	if !b.ConsumeGas(4) || !b.ConsumeGas(6) {
		t.Fatal("Expected consumption within the limit to succeed")
	}
	if b.GasRemaining() != 0 || b.GasUsed() != 10 {
		t.Errorf("Expected 10 used and 0 remaining, got %d/%d", b.GasUsed(), b.GasRemaining())
	}
	if b.ConsumeGas(1) {
		t.Error("Expected consumption past the limit to fail")
	}
	if b.GasUsed() != 10 {
		t.Errorf("Failed consumption must not change usage, got %d", b.GasUsed())
	}
	if !b.IsExhausted() || !b.GasExhausted() {
		t.Error("Expected budget to be exhausted")
	}
}

// TestBudget_ExhaustionIsPermanent tests that a failed consume poisons later ones.
func TestBudget_ExhaustionIsPermanent(t *testing.T) {
	b := WithGasLimit(100)
	if b.ConsumeGas(101) {
		t.Fatal("Expected oversized consumption to fail")
	}
	if b.ConsumeGas(1) {
		t.Error("Expected budget to stay exhausted")
	}
	if b.GasUsed() != 0 {
		t.Errorf("Expected no usage, got %d", b.GasUsed())
	}
	if b.GasRemaining() != 0 {
		t.Errorf("Expected 0 remaining once exhausted, got %d", b.GasRemaining())
	}
}

// TestBudget_ConsumeMana tests mana accounting separately from gas.
func TestBudget_ConsumeMana(t *testing.T) {
	b := New(Limits{GasLimit: 10, ManaLimit: 50})
	if !b.ConsumeMana(50) {
		t.Fatal("Expected mana within limit to succeed")
	}
	if b.ConsumeMana(1) {
		t.Error("Expected mana past the limit to fail")
	}
	if b.GasExhausted() {
		t.Error("Mana exhaustion must not exhaust gas")
	}
	if !b.ManaExhausted() || b.ManaRemaining() != 0 {
		t.Error("Expected mana exhausted")
	}
}

// TestBudget_ConcurrentConsume tests that shared budgets never overspend.
func TestBudget_ConcurrentConsume(t *testing.T) {
	b := WithGasLimit(1000)
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 30; j++ {
				if b.ConsumeGas(1) {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if succeeded != 1000 || b.GasUsed() != 1000 {
		t.Errorf("Expected exactly 1000 units consumed, got %d (used %d)", succeeded, b.GasUsed())
	}
}

// TestBudget_Timeout tests the wall-clock deadline with an injected clock.
func TestBudget_Timeout(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	b := New(Limits{GasLimit: 1, Timeout: time.Second}, WithClock(clock))

	if b.TimedOut() {
		t.Fatal("Expected no timeout at start")
	}
	now = now.Add(400 * time.Millisecond)
	if got := b.TimeRemaining(); got != 600*time.Millisecond {
		t.Errorf("Expected 600ms remaining, got %v", got)
	}
	now = now.Add(time.Second)
	if !b.TimedOut() || !b.IsExhausted() {
		t.Error("Expected timeout after deadline")
	}
	if b.TimeRemaining() != 0 {
		t.Errorf("Expected 0 remaining, got %v", b.TimeRemaining())
	}
}

// TestBudget_Defaults tests the convenience constructor.
func TestBudget_Defaults(t *testing.T) {
	b := WithGasLimit(123)
	l := b.Limits()
	if l.GasLimit != 123 || l.ManaLimit != DefaultManaLimit || l.MaxStackDepth != DefaultMaxStackDepth || l.Timeout != DefaultTimeout {
		t.Errorf("Unexpected limits %+v", l)
	}
	if New(Limits{}).MaxStackDepth() != DefaultMaxStackDepth {
		t.Error("Expected zero stack depth to use the default")
	}
	if New(Limits{}).TimedOut() {
		t.Error("Zero timeout must disable the deadline")
	}
}

// TestLimits_ScaledByTrust tests trust scaling of limits.
func TestLimits_ScaledByTrust(t *testing.T) {
	base := Limits{GasLimit: 1000, ManaLimit: 100, MaxStackDepth: 64, Timeout: time.Second}
	tests := []struct {
		r        float64
		wantGas  uint64
		wantMana uint64
	}{
		{0, 500, 50},
		{0.5, 1000, 100},
		{1, 1500, 150},
		{2, 1500, 150},
		{-1, 500, 50},
	}
	for _, tt := range tests {
		got := base.ScaledByTrust(tt.r)
		if got.GasLimit != tt.wantGas || got.ManaLimit != tt.wantMana {
			t.Errorf("ScaledByTrust(%v) = %d/%d, want %d/%d", tt.r, got.GasLimit, got.ManaLimit, tt.wantGas, tt.wantMana)
		}
		if got.MaxStackDepth != 64 || got.Timeout != time.Second {
			t.Errorf("ScaledByTrust must not change stack depth or timeout")
		}
	}
	if (Limits{GasLimit: 1}).ScaledByTrust(0).GasLimit != 1 {
		t.Error("Expected scaled limits to stay at least 1")
	}
}
