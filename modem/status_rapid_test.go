package modem

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestLookupRegStatusPreservesCodeAndIsIdempotent checks that wrapping any
// integer code never loses it, and that looking it up twice in a row
// produces the identical tagged value - the property updateConnection's
// registration comparisons rely on.
func TestLookupRegStatusPreservesCodeAndIsIdempotent(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		code := rapid.IntRange(-5, 20).Draw(tt, "code")
		first := LookupRegStatus(code)
		second := LookupRegStatus(code)
		require.Equal(tt, code, first.Code())
		require.Equal(tt, first, second)

		if first.Roaming() {
			require.True(tt, first.Registered())
		}
	})
}

// TestLookupSimStatusPreservesCodeAndIsIdempotent mirrors the RegStatus
// property for SIM-status codes.
func TestLookupSimStatusPreservesCodeAndIsIdempotent(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		code := rapid.IntRange(0, 1100).Draw(tt, "code")
		first := LookupSimStatus(code)
		second := LookupSimStatus(code)
		require.Equal(tt, code, first.Code())
		require.Equal(tt, first, second)
	})
}
