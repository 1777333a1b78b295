package modem

import "strconv"

// Known SIM-status codes (3GPP TS 27.007 section 9.2), plus the two
// out-of-band codes the dispatcher assigns itself: READY has no ME/CME
// error equivalent, and ERROR marks a +CPIN? reply this table doesn't
// recognise.
const (
	SimPhSimPin    = 5
	SimPhFSimPin   = 6
	SimPhFSimPuk   = 7
	SimNoSim       = 10
	SimPin         = 11
	SimPuk         = 12
	SimFail        = 13
	SimBusy        = 14
	SimWrong       = 15
	SimBadPasswd   = 16
	SimPin2        = 17
	SimPuk2        = 18
	SimPhNetPin    = 40
	SimPhNetPuk    = 41
	SimPhNetsubPin = 42
	SimPhNetsubPuk = 43
	SimPhSpPin     = 44
	SimPhSpPuk     = 45
	SimPhCorpPin   = 46
	SimPhCorpPuk   = 47

	SimReady = 1000
	SimError = 1001
)

var simStatusNames = map[int]string{
	SimPhSimPin: "PH_SIM_PIN", SimPhFSimPin: "PH_FSIM_PIN", SimPhFSimPuk: "PH_FSIM_PUK",
	SimNoSim: "NO_SIM", SimPin: "SIM_PIN", SimPuk: "SIM_PUK", SimFail: "SIM_FAIL",
	SimBusy: "SIM_BUSY", SimWrong: "SIM_WRONG", SimBadPasswd: "BAD_PASSWD",
	SimPin2: "SIM_PIN2", SimPuk2: "SIM_PUK2", SimPhNetPin: "PH_NET_PIN",
	SimPhNetPuk: "PH_NET_PUK", SimPhNetsubPin: "PH_NETSUB_PIN", SimPhNetsubPuk: "PH_NETSUB_PUK",
	SimPhSpPin: "PH_SP_PIN", SimPhSpPuk: "PH_SP_PUK", SimPhCorpPin: "PH_CORP_PIN",
	SimPhCorpPuk: "PH_CORP_PUK", SimReady: "READY", SimError: "ERROR",
}

// SimStatus is a tagged SIM-status value: either one of the codes this
// package knows about, or a Raw code the caller must still handle rather
// than silently pass through. This replaces the "unknown code passes
// through unchanged" behavior of a plain enum lookup.
type SimStatus struct {
	code  int
	known bool
}

// KnownSimStatus wraps one of the named Sim* codes above.
func KnownSimStatus(code int) SimStatus { return SimStatus{code: code, known: true} }

// RawSimStatus wraps a code this package does not recognise.
func RawSimStatus(code int) SimStatus { return SimStatus{code: code, known: false} }

// LookupSimStatus resolves code to a Known variant if it is one of the
// named Sim* constants, or a Raw variant otherwise.
func LookupSimStatus(code int) SimStatus {
	if _, ok := simStatusNames[code]; ok {
		return KnownSimStatus(code)
	}
	return RawSimStatus(code)
}

// Code returns the underlying numeric status, known or not.
func (s SimStatus) Code() int { return s.code }

// Known reports whether Code is one of the named Sim* constants.
func (s SimStatus) Known() bool { return s.known }

// String renders the symbolic name when known, else the bare code.
func (s SimStatus) String() string {
	if s.known {
		return simStatusNames[s.code]
	}
	return strconv.Itoa(s.code)
}

// Registration status codes (3GPP TS 27.007 section 7.2).
const (
	RegNone      = 0
	RegHome      = 1
	RegSearching = 2
	RegDenied    = 3
	RegUnknown   = 4
	RegRoaming   = 5
)

var regStatusNames = map[int]string{
	RegNone: "NREG", RegHome: "HOME", RegSearching: "SEARCHING",
	RegDenied: "DENIED", RegUnknown: "UNKNOWN", RegRoaming: "ROAMING",
}

// RegStatus is the same Known/Raw tagged pattern as SimStatus, applied to
// +CREG status codes.
type RegStatus struct {
	code  int
	known bool
}

func KnownRegStatus(code int) RegStatus { return RegStatus{code: code, known: true} }
func RawRegStatus(code int) RegStatus   { return RegStatus{code: code, known: false} }

func LookupRegStatus(code int) RegStatus {
	if _, ok := regStatusNames[code]; ok {
		return KnownRegStatus(code)
	}
	return RawRegStatus(code)
}

func (s RegStatus) Code() int    { return s.code }
func (s RegStatus) Known() bool  { return s.known }
func (s RegStatus) String() string {
	if s.known {
		return regStatusNames[s.code]
	}
	return strconv.Itoa(s.code)
}

// Registered reports whether this status counts as attached to the
// network, home or roaming.
func (s RegStatus) Registered() bool {
	return s.code == RegHome || s.code == RegRoaming
}

// Roaming reports whether this status specifically indicates roaming.
func (s RegStatus) Roaming() bool {
	return s.code == RegRoaming
}
