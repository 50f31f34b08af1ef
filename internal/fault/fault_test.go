package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf_SurvivesWrapping(t *testing.T) {
	base := New(CodeQueueFull, "queue is full")
	wrapped := fmt.Errorf("enqueue: %w", base)
	if CodeOf(wrapped) != CodeQueueFull {
		t.Errorf("code = %s", CodeOf(wrapped))
	}
	if !Is(wrapped, CodeQueueFull) {
		t.Error("Is should match through wrapping")
	}
}

func TestCodeOf_PlainError(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain error should carry no code")
	}
	if CodeOf(nil) != "" {
		t.Error("nil should carry no code")
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInvalidPath, "cannot register", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if got := err.Error(); got != "[E_INVALID_PATH] cannot register: disk full" {
		t.Errorf("message = %q", got)
	}
}

func TestNewf_Formats(t *testing.T) {
	err := Newf(CodeToolNotEnabled, "tool %q off", "codex")
	if err.Message != `tool "codex" off` {
		t.Errorf("message = %q", err.Message)
	}
}
