package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2.0,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	res := Do(context.Background(), fastConfig(), func() error { return nil })
	if res.Err != nil || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if res.Err != nil {
		t.Errorf("err = %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("always fails")
	res := Do(context.Background(), fastConfig(), func() error { return sentinel })
	if !errors.Is(res.Err, sentinel) {
		t.Errorf("err = %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
	if !IsPermanent(res.Err) {
		t.Error("err lost its permanent marker")
	}
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	res := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls == 1 {
			return After(errors.New("rate limited"), 50*time.Millisecond)
		}
		return nil
	})
	if res.Err != nil {
		t.Errorf("err = %v", res.Err)
	}
	// MaxDelay caps even explicit retry-after hints.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("waited %s", elapsed)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Do(ctx, fastConfig(), func() error { return errors.New("x") })
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v", res.Err)
	}
}

func TestIsPermanent_Wrapped(t *testing.T) {
	err := Permanent(errors.New("inner"))
	if !IsPermanent(err) {
		t.Error("direct permanent not detected")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("plain error misdetected as permanent")
	}
}
