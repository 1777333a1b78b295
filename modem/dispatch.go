package modem

import (
	"strconv"
	"strings"

	"github.com/vedirect/modemd/atengine"
	"github.com/vedirect/modemd/info"
)

// Handlers returns the atengine.Handlers wired to this lifecycle's
// dispatch logic - the bridge between component C (the engine, which
// knows nothing about command semantics) and components D/E (which know
// nothing about framing).
func (lc *Lifecycle) Handlers() atengine.Handlers {
	return atengine.Handlers{
		OnEchoMatched: lc.onEchoMatched,
		OnResponse:    lc.onResponse,
		OnOK:          lc.onOK,
		OnError:       lc.onError,
		OnIdle:        lc.onIdle,
		OnAnomaly:     lc.onAnomaly,
	}
}

// onEchoMatched runs the pre-hooks that clear accumulator state the
// instant a listing query's own echo is observed, so a stale reply can
// never be mistaken for part of the new listing.
func (lc *Lifecycle) onEchoMatched(cmdID string) {
	switch cmdID {
	case "+CGACT?":
		lc.state.clearPDPActive()
	case "+CGDCONT?":
		lc.state.clearPDPList()
	}
}

func (lc *Lifecycle) onAnomaly(expected, got string) {
	lc.logger.Printf("modem: unexpected command echo: got %q, expected %q", got, expected)
}

// onOK runs the post-hooks fired when a query's terminal OK arrives.
func (lc *Lifecycle) onOK(cmdID string) {
	if cmdID == "+CGDCONT?" {
		lc.updatePDP()
	}
}

func (lc *Lifecycle) onError(cmdID, line string) {
	body := line
	if idx := strings.Index(line, ": "); idx >= 0 {
		body = line[idx+2:]
	}
	lc.logger.Printf("modem: %s: command failed: %s", cmdID, body)

	if !strings.HasPrefix(cmdID, "+CPIN") {
		return
	}
	code := SimBadPasswd
	if n, err := strconv.Atoi(body); err == nil {
		code = n
	}
	status := LookupSimStatus(code)
	lc.state.setSimStatus(status)
	lc.publish("/SimStatus", status.Code())

	if status.Code() == SimBadPasswd {
		lc.logger.Printf("modem: wrong PIN, clearing stored value")
		lc.setting.ClearPIN()
	}
}

func (lc *Lifecycle) onResponse(cmdID, resp string) {
	switch cmdID {
	case "+CGMM":
		lc.handleCGMM(resp)
	case "+CGSN":
		lc.publish("/IMEI", resp)
	case "+CPIN":
		lc.handleCPIN(resp)
	case "+CNSMOD":
		lc.handleCNSMOD(resp)
	case "+CREG":
		lc.handleCREG(resp)
	case "+COPS":
		lc.handleCOPS(resp)
	case "+CSQ":
		lc.handleCSQ(resp)
	case "+CGACT":
		lc.handleCGACT(resp)
	case "+CGATT":
		lc.handleCGATT(resp)
	case "+CGDCONT":
		lc.handleCGDCONT(resp)
	case "+CGPADDR":
		lc.handleCGPADDR(resp)
	case "+CGPS":
		lc.handleCGPS(resp)
	}
}

func (lc *Lifecycle) handleCGMM(resp string) {
	lc.publish("/Model", resp)
	if lc.tables.NeedsGPIOSave(resp) {
		lc.state.setGPIOSaveSuffix(",0")
	}
}

// handleCPIN maps the SIM-status string, sends the configured PIN when
// required, and logs the PIN-accepted / PIN-not-required transitions.
func (lc *Lifecycle) handleCPIN(resp string) {
	resp = strings.Trim(strings.TrimSpace(resp), `"`)
	code, ok := lc.tables.CPIN(resp)
	if !ok {
		code = SimError
	}
	status := LookupSimStatus(code)
	prev := lc.state.setSimStatus(status)
	lc.publish("/SimStatus", status.Code())

	switch status.Code() {
	case SimPin:
		pin := lc.setting.Settings().PIN
		if pin == "" {
			lc.logger.Printf("modem: SIM PIN required but not configured: %s", resp)
			return
		}
		lc.logger.Printf("modem: SIM PIN required, sending")
		lc.eng.Enqueue([]string{"AT+CPIN=" + pin}, false)
	case SimReady:
		if prev.Code() != SimReady {
			if prev != (SimStatus{}) {
				lc.logger.Printf("modem: SIM PIN accepted")
			} else {
				lc.logger.Printf("modem: SIM PIN not required")
			}
		}
	default:
		if !ok {
			lc.logger.Printf("modem: unknown SIM-PIN status: %s", resp)
		}
	}
}

func (lc *Lifecycle) handleCNSMOD(resp string) {
	v := info.Fields(resp)
	if len(v) < 2 {
		return
	}
	code, err := strconv.Atoi(v[1])
	if err != nil {
		return
	}
	lc.publish("/NetworkType", lc.tables.NetworkType(code))
}

func (lc *Lifecycle) handleCREG(resp string) {
	v := info.Fields(resp)
	if len(v) < 2 {
		return
	}
	code, err := strconv.Atoi(v[1])
	if err != nil {
		return
	}
	stat := LookupRegStatus(code)
	becameRegistered := lc.state.setRegistration(stat.Registered(), stat.Roaming())

	if becameRegistered {
		lc.SelectPDP()
	}
	lc.publish("/RegStatus", stat.Code())
	lc.publish("/Roaming", lc.state.Roaming())
}

func (lc *Lifecycle) handleCOPS(resp string) {
	v := info.Fields(resp)
	if len(v) < 3 {
		return
	}
	lc.publish("/NetworkName", v[2])
}

func (lc *Lifecycle) handleCSQ(resp string) {
	v := info.Fields(resp)
	if len(v) < 1 {
		return
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return
	}
	lc.publish("/SignalStrength", n)
}

// handleCGACT adds an active cid to pdpActive, and deactivates any rival
// that is active but not the cid this lifecycle has chosen.
func (lc *Lifecycle) handleCGACT(resp string) {
	v := info.Fields(resp)
	if len(v) < 2 {
		return
	}
	cid, err1 := strconv.Atoi(v[0])
	state, err2 := strconv.Atoi(v[1])
	if err1 != nil || err2 != nil {
		return
	}
	lc.state.setPDPActive(cid, state == 1)

	chosen, ok := lc.state.PDPCid()
	if state == 1 && ok && cid != chosen {
		lc.eng.Enqueue([]string{"AT+CGACT=0," + v[0]}, false)
	}
}

// handleCGATT requests activation of the chosen context if it isn't
// already active, then re-evaluates the PPP connection.
//
// Vendor-dependent: issuing AT+CGACT=1,<cid> while +CGATT already reports
// 1 is kept as-is; not all firmwares are known to accept it.
func (lc *Lifecycle) handleCGATT(resp string) {
	v := info.Fields(resp)
	if len(v) < 1 {
		return
	}
	attached, err := strconv.Atoi(v[0])
	if err != nil || attached != 1 {
		return
	}
	cid, ok := lc.state.PDPCid()
	if !ok {
		return
	}
	if !lc.state.isPDPActive(cid) {
		lc.eng.Enqueue([]string{"AT+CGACT=1," + strconv.Itoa(cid)}, false)
	}
	lc.updateConnection()
}

func (lc *Lifecycle) handleCGDCONT(resp string) {
	v := info.Fields(resp)
	ctx, err := ParsePDPContext(v)
	if err != nil {
		lc.logger.Printf("modem: malformed +CGDCONT line %q: %v", resp, err)
		return
	}
	lc.state.appendPDP(ctx)
	lc.logger.Printf("modem: PDP context %d, %s, %q", ctx.Cid, ctx.Type, ctx.APN)
}

func (lc *Lifecycle) handleCGPADDR(resp string) {
	v := info.Fields(resp)
	if len(v) < 2 {
		return
	}
	cid, err := strconv.Atoi(v[0])
	if err != nil {
		return
	}
	chosen, ok := lc.state.PDPCid()
	if !ok || cid != chosen {
		return
	}
	ip := v[1]
	if ip == "0.0.0.0" {
		lc.publish("/IP", nil)
		return
	}
	lc.publish("/IP", ip)
}

func (lc *Lifecycle) handleCGPS(resp string) {
	v := info.Fields(resp)
	if len(v) < 1 {
		return
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return
	}
	if n != 1 {
		lc.eng.Enqueue([]string{"AT+CGPS=1"}, false)
	}
}
