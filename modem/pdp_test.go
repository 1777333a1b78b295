package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePDPContextRoundTrip(t *testing.T) {
	ctx := PDPContext{Cid: 1, Type: "IP", APN: "internet", Addr: "1.2.3.4", DComp: 1, HComp: 0, IPv4Ctrl: 1, Emergency: 0}
	fields := splitSerialized(ctx.Serialize())
	got, err := ParsePDPContext(fields)
	require.NoError(t, err)
	assert.Equal(t, ctx, got)
}

func TestParsePDPContextShortLine(t *testing.T) {
	ctx, err := ParsePDPContext([]string{"1", "IP", "internet"})
	require.NoError(t, err)
	assert.Equal(t, PDPContext{Cid: 1, Type: "IP", APN: "internet"}, ctx)
}

func TestParsePDPContextTooShort(t *testing.T) {
	_, err := ParsePDPContext([]string{"1", "IP"})
	assert.Error(t, err)
}

func TestSelectPDPNoCandidatesSynthesizesDefault(t *testing.T) {
	ctx, define := selectPDP(nil, nil, "internet")
	assert.True(t, define)
	assert.Equal(t, PDPContext{Cid: 1, Type: "IP", APN: "internet"}, ctx)
}

func TestSelectPDPPrefersMatchingAPNAndType(t *testing.T) {
	ctxs := []PDPContext{
		{Cid: 1, Type: "IPV6", APN: "other"},
		{Cid: 2, Type: "IP", APN: "internet"},
	}
	ctx, define := selectPDP(ctxs, nil, "internet")
	assert.False(t, define)
	assert.Equal(t, 2, ctx.Cid)
}

func TestSelectPDPExcludesEmergencyContexts(t *testing.T) {
	ctxs := []PDPContext{
		{Cid: 1, Type: "IP", APN: "sos", Emergency: 1},
	}
	ctx, define := selectPDP(ctxs, nil, "internet")
	assert.True(t, define)
	assert.Equal(t, 1, ctx.Cid)
	assert.Equal(t, "internet", ctx.APN)
}

func TestSelectPDPOverridesDifferingAPN(t *testing.T) {
	ctxs := []PDPContext{{Cid: 3, Type: "IP", APN: "old"}}
	ctx, define := selectPDP(ctxs, nil, "new")
	assert.True(t, define)
	assert.Equal(t, "new", ctx.APN)
	assert.Equal(t, 3, ctx.Cid)
}

func TestSelectPDPPrefersInactiveContext(t *testing.T) {
	ctxs := []PDPContext{
		{Cid: 1, Type: "IP", APN: "internet"},
		{Cid: 2, Type: "IP", APN: "internet"},
	}
	active := map[int]bool{1: true}
	ctx, define := selectPDP(ctxs, active, "internet")
	assert.False(t, define)
	assert.Equal(t, 2, ctx.Cid)
}

// splitSerialized is a tiny CSV+quote-stripped split matching what
// info.Fields would do to a +CGDCONT: line carrying ctx.Serialize().
func splitSerialized(s string) []string {
	var fields []string
	var cur []rune
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, string(cur))
			cur = nil
		default:
			cur = append(cur, r)
		}
	}
	fields = append(fields, string(cur))
	return fields
}
