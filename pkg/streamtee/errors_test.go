package streamtee

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindExitCodes(t *testing.T) {
	require.Equal(t, 2, KindInputOpen.ExitCode())
	require.Equal(t, 3, KindStreamSetup.ExitCode())
	require.Equal(t, 4, KindStreamIO.ExitCode())
	require.Equal(t, 5, KindAlloc.ExitCode())
	require.Equal(t, 1, KindUnknown.ExitCode())
}

func TestExitCodeUnwrapsWrappedErrors(t *testing.T) {
	err := newError(KindStreamIO, "writing failed: %w", errors.New("disk full"))
	wrapped := fmt.Errorf("session: %w", err)
	require.Equal(t, 4, ExitCode(wrapped))
}

func TestExitCodeOfPlainError(t *testing.T) {
	require.Equal(t, 1, ExitCode(errors.New("some error")))
}

func TestNoVideoStreamIsDetectable(t *testing.T) {
	err := fmt.Errorf("opening: %w", &Error{Kind: KindStreamSetup, Err: ErrNoVideoStream})
	require.ErrorIs(t, err, ErrNoVideoStream)
	require.Equal(t, 3, ExitCode(err))
}
