package gate

import (
	"context"
	"testing"
	"time"

	apperrors "edgar-reconciliation-service/pkg/errors"
	"edgar-reconciliation-service/pkg/logger"
)

func testLogger() logger.Logger {
	config := logger.DefaultConfig()
	config.Level = "error"
	log, _ := logger.NewLogger(config)
	return log
}

func newTestGate(t *testing.T, config *Config) *Gate {
	t.Helper()
	g, err := New(config, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestAcquireGrantsSingleSlot(t *testing.T) {
	g := newTestGate(t, nil)

	release, err := g.Acquire(context.Background(), TierAnonymous)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := g.Acquire(context.Background(), TierAnonymous); err == nil {
		t.Fatal("second anonymous acquire should bounce while the slot is held")
	} else if perr, ok := apperrors.AsPipelineError(err); !ok || perr.Code != apperrors.CodeSlotBusy {
		t.Errorf("error = %v, want code %s", err, apperrors.CodeSlotBusy)
	}

	release()

	release2, err := g.Acquire(context.Background(), TierAnonymous)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestAcquireStandardTimesOut(t *testing.T) {
	g := newTestGate(t, &Config{StandardWait: 20 * time.Millisecond, PremiumWait: time.Second})

	release, err := g.Acquire(context.Background(), TierPremium)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = g.Acquire(context.Background(), TierStandard)
	if err == nil {
		t.Fatal("standard acquire should time out while the slot is held")
	}
	perr, ok := apperrors.AsPipelineError(err)
	if !ok || perr.Code != apperrors.CodeSlotTimeout {
		t.Errorf("error = %v, want code %s", err, apperrors.CodeSlotTimeout)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("standard caller gave up after %v, before its wait budget", elapsed)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	g := newTestGate(t, &Config{StandardWait: time.Second, PremiumWait: 2 * time.Second})

	release, err := g.Acquire(context.Background(), TierAnonymous)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		release2, err := g.Acquire(context.Background(), TierStandard)
		if err == nil {
			release2()
		}
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	release()

	if err := <-done; err != nil {
		t.Fatalf("queued standard acquire: %v", err)
	}
}

func TestAcquireHonorsCallerCancellation(t *testing.T) {
	g := newTestGate(t, &Config{StandardWait: time.Second, PremiumWait: 2 * time.Second})

	release, err := g.Acquire(context.Background(), TierAnonymous)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = g.Acquire(ctx, TierPremium)
	if err == nil {
		t.Fatal("acquire should fail when the caller cancels")
	}
	perr, ok := apperrors.AsPipelineError(err)
	if !ok || perr.Code != apperrors.CodeRequestCancelled {
		t.Errorf("error = %v, want code %s", err, apperrors.CodeRequestCancelled)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := newTestGate(t, nil)

	release, err := g.Acquire(context.Background(), TierAnonymous)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release()

	release2, err := g.Acquire(context.Background(), TierAnonymous)
	if err != nil {
		t.Fatalf("acquire after double release: %v", err)
	}
	defer release2()

	if _, err := g.Acquire(context.Background(), TierAnonymous); err == nil {
		t.Fatal("double release must not mint a second slot")
	}
}

func TestAcquireRejectsUnknownTier(t *testing.T) {
	g := newTestGate(t, nil)
	if _, err := g.Acquire(context.Background(), Tier("vip")); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestConfigValidate(t *testing.T) {
	bad := &Config{StandardWait: time.Minute, PremiumWait: time.Second}
	if err := bad.Validate(); err == nil {
		t.Error("expected error when premium waits less than standard")
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
