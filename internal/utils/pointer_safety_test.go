package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-session-keeper/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestPointerHelpers(t *testing.T) {
	var missing *string
	require.Equal(t, "", utils.Value(missing))
	require.Equal(t, "fallback", utils.ValueOr(missing, "fallback"))
	require.Equal(t, "set", utils.ValueOr(utils.Ptr("set"), "fallback"))

	require.Nil(t, utils.PtrOrNil(""))
	require.Equal(t, "rt-1", *utils.PtrOrNil("rt-1"))
	require.Nil(t, utils.PtrOrNil(0))
}
