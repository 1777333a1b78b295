package modem

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// pdpTypePref orders known PDP types for selection preference; anything
// else sorts after all of them.
var pdpTypePref = []string{"IP", "IPV4V6", "IPV6"}

// PDPContext is a packet-data-protocol profile as reported by
// AT+CGDCONT?. It is immutable once parsed - selection produces a new
// candidate rather than mutating an existing one.
type PDPContext struct {
	Cid       int
	Type      string
	APN       string
	Addr      string
	DComp     int
	HComp     int
	IPv4Ctrl  int
	Emergency int
}

// ParsePDPContext parses the comma-split, quote-stripped fields of a
// +CGDCONT: line. Only the first three fields (cid, type, apn) are
// required; a modem that omits the trailing fields yields zero values for
// them rather than an error, matching the dispatcher's stance that a
// short reply is routine, not a protocol anomaly.
func ParsePDPContext(fields []string) (PDPContext, error) {
	if len(fields) < 3 {
		return PDPContext{}, errors.Errorf("pdp context: need at least 3 fields, got %d", len(fields))
	}
	cid, err := strconv.Atoi(fields[0])
	if err != nil {
		return PDPContext{}, errors.Wrap(err, "pdp context: cid")
	}
	ctx := PDPContext{Cid: cid, Type: fields[1], APN: fields[2]}
	if len(fields) > 3 {
		ctx.Addr = fields[3]
	}
	if len(fields) > 4 {
		ctx.DComp, _ = strconv.Atoi(fields[4])
	}
	if len(fields) > 5 {
		ctx.HComp, _ = strconv.Atoi(fields[5])
	}
	if len(fields) > 6 {
		ctx.IPv4Ctrl, _ = strconv.Atoi(fields[6])
	}
	if len(fields) > 7 {
		ctx.Emergency, _ = strconv.Atoi(fields[7])
	}
	return ctx, nil
}

// Serialize renders the full 8-field form used by the round-trip test:
// cid,"type","apn","addr",d,h,ipv4,emergency.
func (c PDPContext) Serialize() string {
	return fmt.Sprintf(`%d,"%s","%s","%s",%d,%d,%d,%d`,
		c.Cid, c.Type, c.APN, c.Addr, c.DComp, c.HComp, c.IPv4Ctrl, c.Emergency)
}

// DefineCommand renders the 3-argument AT+CGDCONT= form used to (re)define
// a context, matching the original daemon's convention of only ever
// specifying cid/type/apn when defining.
func (c PDPContext) DefineCommand() string {
	return fmt.Sprintf(`AT+CGDCONT=%d,"%s","%s"`, c.Cid, c.Type, c.APN)
}

func typePref(t string) int {
	for i, want := range pdpTypePref {
		if t == want {
			return i
		}
	}
	return 1000
}

// selectPDP picks the best candidate from ctxs given which cids are
// currently active and the configured apn, per the ordering
// (inactive-first, type preference, apn match, list position). Emergency
// contexts are never selected. If no candidate survives, a default
// cid=1/"IP" context is synthesized. define is true when the returned
// context must be (re)issued with AT+CGDCONT= before use - either because
// it was synthesized, or because its APN had to be overridden.
func selectPDP(ctxs []PDPContext, active map[int]bool, apn string) (ctx PDPContext, define bool) {
	type scored struct {
		key [4]int
		ctx PDPContext
	}
	var candidates []scored
	for i, c := range ctxs {
		if c.Emergency != 0 {
			continue
		}
		activeFirst := 0
		if active[c.Cid] {
			activeFirst = 1
		}
		apnDiffers := 0
		if apn != "" && c.APN != apn {
			apnDiffers = 1
		}
		candidates = append(candidates, scored{
			key: [4]int{activeFirst, typePref(c.Type), apnDiffers, i},
			ctx: c,
		})
	}

	if len(candidates) == 0 {
		return PDPContext{Cid: 1, Type: "IP", APN: apn}, true
	}

	best := candidates[0]
	for _, s := range candidates[1:] {
		if less4(s.key, best.key) {
			best = s
		}
	}

	chosen := best.ctx
	if apn != "" && chosen.APN != apn {
		chosen.APN = apn
		return chosen, true
	}
	return chosen, false
}

func less4(a, b [4]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
