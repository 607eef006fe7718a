package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := E(KindConstraintViolation, "store.Save", "size must be >= 0")
	assert.Equal(t, "store.Save: [constraint_violation] size must be >= 0", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("database is locked")
	err := Wrap(KindLocked, "store.Save", cause)

	require.NotNil(t, err)
	assert.Equal(t, KindLocked, err.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, "store.Save", nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"structured error", E(KindIndexCorrupted, "index.Open", "bad meta"), KindIndexCorrupted},
		{"wrapped structured error", fmt.Errorf("outer: %w", E(KindLocked, "store.Save", "busy")), KindLocked},
		{"plain error", stderrors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(E(KindLocked, "store.Save", "busy")))
	assert.True(t, IsRetryable(E(KindTimeout, "engine.RebuildIndex", "deadline")))
	assert.False(t, IsRetryable(E(KindStoreCorrupted, "store.Open", "bad header")))
	assert.False(t, IsRetryable(nil))
}

func TestIsCorruption(t *testing.T) {
	assert.True(t, IsCorruption(E(KindStoreCorrupted, "store.Open", "")))
	assert.True(t, IsCorruption(E(KindIndexCorrupted, "index.Open", "")))
	assert.True(t, IsCorruption(E(KindCacheCorrupted, "cache.Load", "")))
	assert.False(t, IsCorruption(E(KindLocked, "store.Save", "")))
}

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", E(KindTimeout, "engine.Rebuild", "deadline exceeded"))
	assert.True(t, stderrors.Is(err, &Error{Kind: KindTimeout}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindLocked}))
}
