package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndCode(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(CodeLLM, "chat failed", cause))

	require.True(t, IsCode(err, CodeLLM))
	require.False(t, IsCode(err, CodeAuth))
	require.Equal(t, "chat failed", MessageOf(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "outer: chat failed: boom", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	require.Equal(t, "", CodeOf(errors.New("plain")))
	require.Equal(t, "plain", MessageOf(errors.New("plain")))
	require.Equal(t, "", MessageOf(nil))
}
