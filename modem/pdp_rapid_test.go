package modem

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// safeField matches the characters the test harness can round-trip through
// splitSerialized's naive quote-toggling splitter: no commas or quotes.
var safeField = rapid.StringMatching(`[a-zA-Z0-9_.\-]{0,16}`)

// TestPDPContextSerializeParseRoundTrip checks that any PDPContext built
// from in-range field values survives a Serialize/ParsePDPContext round
// trip unchanged, for a much wider field space than the fixed-table test.
func TestPDPContextSerializeParseRoundTrip(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		ctx := PDPContext{
			Cid:       rapid.IntRange(0, 15).Draw(tt, "cid"),
			Type:      safeField.Draw(tt, "type"),
			APN:       safeField.Draw(tt, "apn"),
			Addr:      safeField.Draw(tt, "addr"),
			DComp:     rapid.IntRange(0, 2).Draw(tt, "dcomp"),
			HComp:     rapid.IntRange(0, 2).Draw(tt, "hcomp"),
			IPv4Ctrl:  rapid.IntRange(0, 2).Draw(tt, "ipv4ctrl"),
			Emergency: rapid.IntRange(0, 1).Draw(tt, "emergency"),
		}
		fields := splitSerialized(ctx.Serialize())
		got, err := ParsePDPContext(fields)
		require.NoError(tt, err)
		require.Equal(tt, ctx, got)
	})
}

// TestSelectPDPNeverSelectsEmergencyContext checks the emergency exclusion
// invariant across randomly generated listings.
func TestSelectPDPNeverSelectsEmergencyContext(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(tt, "n")
		var ctxs []PDPContext
		for i := 0; i < n; i++ {
			ctxs = append(ctxs, PDPContext{
				Cid:       i + 1,
				Type:      rapid.SampledFrom([]string{"IP", "IPV6", "IPV4V6", "PPP"}).Draw(tt, "type"),
				APN:       safeField.Draw(tt, "apn"),
				Emergency: rapid.IntRange(0, 1).Draw(tt, "emergency"),
			})
		}
		apn := safeField.Draw(tt, "wantApn")
		ctx, _ := selectPDP(ctxs, nil, apn)

		anyNonEmergency := false
		for _, c := range ctxs {
			if c.Emergency == 0 {
				anyNonEmergency = true
			}
		}
		if anyNonEmergency {
			for _, c := range ctxs {
				if c.Cid == ctx.Cid {
					require.Zero(tt, c.Emergency)
				}
			}
		}
	})
}

// TestSelectPDPIsDeterministic checks that selectPDP is a pure function of
// its inputs: calling it twice with the same listing, active set and apn
// always yields the same candidate.
func TestSelectPDPIsDeterministic(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(tt, "n")
		var ctxs []PDPContext
		for i := 0; i < n; i++ {
			ctxs = append(ctxs, PDPContext{
				Cid:  i + 1,
				Type: rapid.SampledFrom([]string{"IP", "IPV6", "IPV4V6"}).Draw(tt, "type"),
				APN:  safeField.Draw(tt, "apn"),
			})
		}
		apn := safeField.Draw(tt, "wantApn")
		active := map[int]bool{}
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(tt, "active") {
				active[i+1] = true
			}
		}
		ctx1, define1 := selectPDP(ctxs, active, apn)
		ctx2, define2 := selectPDP(ctxs, active, apn)
		require.Equal(tt, ctx1, ctx2)
		require.Equal(tt, define1, define2)
	})
}
