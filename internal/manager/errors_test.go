package manager

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrCapacityExceeded, KindCapacityExceeded},
		{fmt.Errorf("chat: %w", ErrCapacityExceeded), KindCapacityExceeded},
		{ErrBackendUnavailable, KindBackendUnavailable},
		{ErrDependencyUnavailable("llama-server not found"), KindBackendUnavailable},
		{&GenerationError{Err: errors.New("boom")}, KindGenerationFailed},
		{context.Canceled, ""},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Fatalf("Kind(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

func TestGenerationError_Unwrap(t *testing.T) {
	inner := errors.New("kv cache full")
	err := error(&GenerationError{Err: inner})
	if !errors.Is(err, inner) {
		t.Fatalf("unwrap lost the cause")
	}
	if err.Error() != "generation failed: kv cache full" {
		t.Fatalf("msg=%q", err.Error())
	}
}
