package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupSimStatusKnownAndRaw(t *testing.T) {
	s := LookupSimStatus(SimReady)
	assert.True(t, s.Known())
	assert.Equal(t, "READY", s.String())

	r := LookupSimStatus(9999)
	assert.False(t, r.Known())
	assert.Equal(t, "9999", r.String())
}

func TestRegStatusRegisteredAndRoaming(t *testing.T) {
	home := LookupRegStatus(RegHome)
	assert.True(t, home.Registered())
	assert.False(t, home.Roaming())

	roaming := LookupRegStatus(RegRoaming)
	assert.True(t, roaming.Registered())
	assert.True(t, roaming.Roaming())

	denied := LookupRegStatus(RegDenied)
	assert.False(t, denied.Registered())
	assert.False(t, denied.Roaming())

	unknownCode := LookupRegStatus(42)
	assert.False(t, unknownCode.Known())
	assert.False(t, unknownCode.Registered())
}
