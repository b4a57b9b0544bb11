package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLength(t *testing.T) {
	require.NotPanics(t, func() { Length("id", "abcd", 4) })
	require.PanicsWithValue(t, "assert.Length(id) expected 5 actual 4", func() { Length("id", "abcd", 5) })
}
