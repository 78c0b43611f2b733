// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package snmp

import (
	"crypto/subtle"
	"sync"
	"time"
)

// timeWindow is the RFC 3414 §3.2 rule 7 tolerance: a message whose
// engineTime differs from the locally tracked value by more than this many
// seconds is rejected as notInTimeWindow.
const timeWindow = 150

// usmStats* varbind OIDs (RFC 3414 §5), carried as the sole varbind of a
// Report PDU to name the reason authentication/decryption was refused.
var (
	oidUsmStatsUnsupportedSecLevels = MustParseOID("1.3.6.1.6.3.15.1.1.1.0")
	oidUsmStatsNotInTimeWindows     = MustParseOID("1.3.6.1.6.3.15.1.1.2.0")
	oidUsmStatsUnknownUserNames     = MustParseOID("1.3.6.1.6.3.15.1.1.3.0")
	oidUsmStatsUnknownEngineIDs     = MustParseOID("1.3.6.1.6.3.15.1.1.4.0")
	oidUsmStatsWrongDigests         = MustParseOID("1.3.6.1.6.3.15.1.1.5.0")
	oidUsmStatsDecryptionErrors     = MustParseOID("1.3.6.1.6.3.15.1.1.6.0")
)

// reportSentinel maps a Report PDU's usmStats varbind OID to the security
// error sentinel it names. An unrecognized or missing varbind defaults to
// ErrNotInTimeWindow, the most common reason agents return a Report.
func reportSentinel(vars []Variable) error {
	if len(vars) == 0 {
		return ErrNotInTimeWindow
	}
	oid := vars[0].OID
	switch {
	case oid.Equal(oidUsmStatsUnsupportedSecLevels):
		return ErrUnsupportedSecLevel
	case oid.Equal(oidUsmStatsNotInTimeWindows):
		return ErrNotInTimeWindow
	case oid.Equal(oidUsmStatsUnknownUserNames):
		return ErrUnknownUserName
	case oid.Equal(oidUsmStatsUnknownEngineIDs):
		return ErrUnknownEngineID
	case oid.Equal(oidUsmStatsWrongDigests):
		return ErrAuthFailure
	case oid.Equal(oidUsmStatsDecryptionErrors):
		return ErrDecryptionFailed
	default:
		return ErrNotInTimeWindow
	}
}

// engineState tracks the authoritative SNMP engine's identity and boot
// clock, discovered once per target and refreshed on a time-window
// failure.
type engineState struct {
	mu       sync.Mutex
	id       []byte
	boots    int32
	time     int32
	lastSync time.Time
}

func (e *engineState) snapshot() (id []byte, boots, time32 int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id, e.boots, e.time
}

func (e *engineState) update(id []byte, boots, time32 int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.id = id
	e.boots = boots
	e.time = time32
	e.lastSync = time.Now()
}

// known reports whether the engine's clock has been established yet, via
// discovery (client) or a prior accepted message (trap listener). Before
// that, there is nothing to validate a peer's engineTime against.
func (e *engineState) known() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.id) > 0
}

// inTimeWindow reports whether a received engineTime is acceptable
// relative to the locally cached clock, per RFC 3414 §3.2 rule 7: the
// local notion of time is advanced by wall-clock elapsed time since the
// last sync before comparing.
func (e *engineState) inTimeWindow(boots, peerTime int32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if boots != e.boots {
		return false
	}
	elapsed := int32(time.Since(e.lastSync).Seconds())
	localTime := e.time + elapsed
	diff := localTime - peerTime
	if diff < 0 {
		diff = -diff
	}
	return diff <= timeWindow
}

// buildOutgoingV3Message assembles a full v3 message for pdu, applying
// authentication and privacy per opts.SecurityLevel. discoveryProbe is
// true for the unauthenticated blank GetRequest used to learn the
// authoritative engine's identity and clock.
func buildOutgoingV3Message(opts *ClientOptions, msgID int32, pdu *PDU, engine []byte, boots, engineTime int32, creds *Credentials, discoveryProbe bool) ([]byte, error) {
	var flags byte
	if discoveryProbe {
		flags = msgFlagReportable
	} else {
		switch opts.SecurityLevel {
		case AuthNoPriv:
			flags = msgFlagAuth | msgFlagReportable
		case AuthPriv:
			flags = msgFlagAuth | msgFlagPriv | msgFlagReportable
		default:
			flags = msgFlagReportable
		}
	}

	contextEngineID := []byte(opts.ContextEngineID)
	if len(contextEngineID) == 0 {
		contextEngineID = engine
	}

	scopedPDUBytes, err := encodeScopedPDU(contextEngineID, opts.ContextName, pdu)
	if err != nil {
		return nil, err
	}

	var msgData []byte
	var privParams []byte

	if !discoveryProbe && opts.SecurityLevel == AuthPriv {
		privPlugin, err := lookupPrivPlugin(opts.PrivProtocol)
		if err != nil {
			return nil, err
		}
		salt := privPlugin.nextSalt(uint32(boots))
		ciphertext, err := privPlugin.encrypt(creds.privKey, salt, scopedPDUBytes, uint32(boots), uint32(engineTime))
		if err != nil {
			return nil, err
		}
		privParams = salt
		msgData = encodeTLV(TypeOctetString, ciphertext)
	} else {
		msgData = scopedPDUBytes
	}

	var authParams []byte
	if !discoveryProbe && opts.SecurityLevel != NoAuthNoPriv {
		authParams = make([]byte, authTagLen)
	}

	userName := opts.SecurityName
	if discoveryProbe {
		userName = ""
	}

	secParams := &usmSecurityParameters{
		EngineID:    engine,
		EngineBoots: boots,
		EngineTime:  engineTime,
		UserName:    userName,
		AuthParams:  authParams,
		PrivParams:  privParams,
	}
	secParamsBytes, authOffsetInSecParams := secParams.encode()

	data, authOffset := encodeMessageV3(msgID, int32(DefaultMaxOids*1024), flags, usmSecurityModel, secParamsBytes, authOffsetInSecParams, msgData)

	if !discoveryProbe && opts.SecurityLevel != NoAuthNoPriv {
		authPlugin, err := lookupAuthPlugin(opts.AuthProtocol)
		if err != nil {
			return nil, err
		}
		tag := authPlugin.tag(creds.authKey, data)
		copy(data[authOffset:authOffset+authTagLen], tag)
	}

	return data, nil
}

// verifyAndDecode authenticates (if required) and decrypts (if required)
// a decoded v3 message, returning the enclosed PDU. authProtocol and
// privProtocol identify the plugins to use; both the client and the trap
// listener resolve these from their own configuration before calling in.
// engine is the caller's per-peer clock cache used to enforce RFC 3414
// §3.2 rule 7's time-window check; pass nil to skip the check (used by
// call sites that keep no per-peer clock, e.g. tests exercising the HMAC
// and privacy path in isolation and the test agent).
func verifyAndDecode(msg *decodedMessageV3, authProtocol AuthProtocol, privProtocol PrivProtocol, creds *Credentials, engine *engineState) (contextEngineID []byte, pdu *PDU, err error) {
	if err := lookupSecurityModel(msg.MsgSecurityModel); err != nil {
		return nil, nil, err
	}

	needAuth := msg.MsgFlags&msgFlagAuth != 0
	if needAuth {
		authPlugin, err := lookupAuthPlugin(authProtocol)
		if err != nil {
			return nil, nil, err
		}
		received := msg.SecurityParams.AuthParams
		if len(received) != authTagLen {
			return nil, nil, NewSecurityError(ErrAuthFailure, string(msg.SecurityParams.EngineID), "malformed authentication parameters")
		}

		zeroed := make([]byte, len(msg.RawMessage))
		copy(zeroed, msg.RawMessage)
		for i := 0; i < authTagLen; i++ {
			zeroed[msg.SecurityParamsOffset+i] = 0
		}

		expected := authPlugin.tag(creds.authKey, zeroed)
		if subtle.ConstantTimeCompare(expected, received) != 1 {
			return nil, nil, NewSecurityError(ErrAuthFailure, string(msg.SecurityParams.EngineID), "authentication mismatch")
		}

		if engine != nil && engine.known() && !engine.inTimeWindow(msg.SecurityParams.EngineBoots, msg.SecurityParams.EngineTime) {
			return nil, nil, NewSecurityError(ErrNotInTimeWindow, string(msg.SecurityParams.EngineID), "message outside the USM time window")
		}
	}

	if msg.Encrypted {
		if msg.MsgFlags&msgFlagPriv == 0 {
			return nil, nil, NewSecurityError(ErrPrivFailure, string(msg.SecurityParams.EngineID), "encrypted message without privacy flag")
		}
		privPlugin, err := lookupPrivPlugin(privProtocol)
		if err != nil {
			return nil, nil, err
		}
		plain, err := privPlugin.decrypt(creds.privKey, msg.SecurityParams.PrivParams, msg.ScopedPDU, uint32(msg.SecurityParams.EngineBoots), uint32(msg.SecurityParams.EngineTime))
		if err != nil {
			return nil, nil, NewSecurityError(ErrDecryptionFailed, string(msg.SecurityParams.EngineID), err.Error())
		}
		ceID, _, p, err := decodeScopedPDU(plain)
		if err != nil {
			return nil, nil, NewSecurityError(ErrDecryptionFailed, string(msg.SecurityParams.EngineID), "malformed ScopedPDU after decryption")
		}
		return ceID, p, nil
	}

	// msg.ScopedPDU is already the unwrapped field content for the
	// plaintext case (decodeTLV stripped the outer sequence header).
	ceID, _, p, err := decodeScopedPDUFields(msg.ScopedPDU)
	if err != nil {
		return nil, nil, err
	}
	return ceID, p, nil
}
