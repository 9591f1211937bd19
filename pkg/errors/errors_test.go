package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCodeThroughFmtWrapping(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("saving report: %w", Wrap("storage_error", "failed to store image", cause))

	require.True(t, IsCode(err, "storage_error"))
	require.False(t, IsCode(err, "not_found"))
	require.Equal(t, "failed to store image", MessageOf(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "disk full")
}

func TestCodeOfPlainError(t *testing.T) {
	require.Equal(t, "", CodeOf(stderrors.New("boom")))
	require.Equal(t, "boom", MessageOf(stderrors.New("boom")))
	require.Equal(t, "", MessageOf(nil))
}
