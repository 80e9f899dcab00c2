package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindTokenRevoked, "gone")
	assert.Equal(t, KindTokenRevoked, KindOf(err))

	wrapped := fmt.Errorf("refresh: %w", err)
	assert.Equal(t, KindTokenRevoked, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindTokenRevoked))
	assert.False(t, Is(wrapped, KindTokenInvalid))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindInternal))
}

func TestStorageUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("insert refresh token", cause)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindStorageUnavailable, err.Kind)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "storage_unavailable")
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("x: %w", New(KindLinkingConflict, "linked elsewhere"))
	assert.ErrorIs(t, err, New(KindLinkingConflict, ""))
	assert.NotErrorIs(t, err, New(KindConflict, ""))
}

func TestWithCopiesContext(t *testing.T) {
	base := New(KindLinkingConflict, "linked elsewhere").With("user_id", int64(7))
	ext := base.With("subject", "g-1")

	assert.Len(t, base.Context, 1)
	assert.Len(t, ext.Context, 2)
	assert.Equal(t, int64(7), ext.Context["user_id"])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "oauth_only_account", KindOAuthOnlyAccount.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
