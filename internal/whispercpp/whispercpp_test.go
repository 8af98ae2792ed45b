//go:build !whisper

package whispercpp

import (
	"errors"
	"testing"
)

func TestNewWithoutTag(t *testing.T) {
	eng, err := New("ggml-small.bin")
	if !errors.Is(err, ErrNotBuilt) {
		t.Errorf("err = %v, want ErrNotBuilt", err)
	}
	if eng != nil {
		t.Error("expected nil engine from stub")
	}
}
