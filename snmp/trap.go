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
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync"
)

// TrapListener listens for SNMP traps.
type TrapListener struct {
	opts    *TrapListenerOptions
	conn    *net.UDPConn
	handler TrapHandler
	logger  *slog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	metrics *Metrics

	// v3Engines tracks each sending agent's clock (keyed by raw engineID),
	// so repeated traps from the same engine are subject to the USM
	// time-window check. The first trap from a given engine establishes
	// the baseline, matching the client's post-discovery behavior.
	v3Engines sync.Map // string -> *engineState
}

// NewTrapListener creates a new trap listener.
func NewTrapListener(handler TrapHandler, opts ...TrapListenerOption) *TrapListener {
	options := NewTrapListenerOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TrapListener{
		opts:    options,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
		metrics: NewMetrics(),
	}
}

// Start starts listening for traps.
func (l *TrapListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.opts.Address)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	l.conn = conn
	l.logger.Info("trap listener started", "address", l.opts.Address)

	l.wg.Add(1)
	go l.listen()

	return nil
}

// Stop stops the trap listener.
func (l *TrapListener) Stop() error {
	close(l.done)
	if l.conn != nil {
		l.conn.Close()
	}
	l.wg.Wait()
	l.logger.Info("trap listener stopped")
	return nil
}

func (l *TrapListener) listen() {
	defer l.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-l.done:
			return
		default:
		}

		n, remoteAddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				l.logger.Warn("error reading trap", "error", err)
				continue
			}
		}

		l.metrics.TrapsReceived.Add(1)

		// Try to decode the trap
		trap, err := l.decodeTrap(buf[:n], remoteAddr)
		if err != nil {
			l.logger.Warn("failed to decode trap", "error", err, "source", remoteAddr)
			l.metrics.Errors.Add(1)
			continue
		}

		// Check community if specified (v3 traps authenticate via USM
		// instead and carry no community string).
		if trap.Version != Version3 && l.opts.Community != "" && trap.Community != l.opts.Community {
			l.logger.Warn("trap community mismatch",
				"expected", l.opts.Community,
				"received", trap.Community,
				"source", remoteAddr)
			continue
		}

		// Call handler
		if l.handler != nil {
			go l.handler(trap)
		}
	}
}

// peekTrapVersion reads just the outer sequence and version integer to
// decide which decode path applies, without committing to a full parse.
func peekTrapVersion(data []byte) (SNMPVersion, error) {
	r := bytes.NewReader(data)
	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return 0, err
	}
	if seqType != TypeSequence {
		return 0, NewParseError("expected sequence", -1)
	}
	_, versionData, err := decodeTLV(bytes.NewReader(seqData))
	if err != nil {
		return 0, err
	}
	return SNMPVersion(decodeInteger(versionData)), nil
}

func (l *TrapListener) decodeTrap(data []byte, remoteAddr *net.UDPAddr) (*TrapPDU, error) {
	version, err := peekTrapVersion(data)
	if err != nil {
		return l.decodeV1Trap(data, remoteAddr)
	}

	if version == Version3 {
		return l.decodeV3Trap(data, remoteAddr)
	}

	// Regular SNMP message framing (v2c trap/inform).
	msg, err := DecodeMessage(data)
	if err != nil {
		// Try v1 trap format
		return l.decodeV1Trap(data, remoteAddr)
	}

	trap := &TrapPDU{
		Version:       msg.Version,
		Community:     msg.Community,
		SourceAddress: remoteAddr.String(),
	}

	if msg.PDU.Type == PDUTrapV2 || msg.PDU.Type == PDUInformRequest {
		trap.Variables = msg.PDU.Variables

		// Extract sysUpTime and snmpTrapOID from varbinds
		for _, v := range msg.PDU.Variables {
			if v.OID.Equal(OIDSysUpTime) {
				if val, ok := v.Value.(uint32); ok {
					trap.Timestamp = val
				}
			}
		}
	}

	return trap, nil
}

// decodeV3Trap authenticates and, if needed, decrypts an SNMPv3
// InformRequest or TrapV2 against the listener's configured USM identity.
// The sending agent's engineID travels with the trap itself, so no
// discovery handshake is needed before verification.
func (l *TrapListener) decodeV3Trap(data []byte, remoteAddr *net.UDPAddr) (*TrapPDU, error) {
	decoded, err := decodeMessageV3(data)
	if err != nil {
		return nil, err
	}

	creds, err := trapCredentialsFromOptions(l.opts, decoded.SecurityParams.EngineID)
	if err != nil {
		return nil, err
	}

	engineKey := string(decoded.SecurityParams.EngineID)
	stateIface, _ := l.v3Engines.LoadOrStore(engineKey, &engineState{})
	engine := stateIface.(*engineState)

	_, pdu, err := verifyAndDecode(decoded, l.opts.AuthProtocol, l.opts.PrivProtocol, creds, engine)
	if err != nil {
		return nil, err
	}
	engine.update(decoded.SecurityParams.EngineID, decoded.SecurityParams.EngineBoots, decoded.SecurityParams.EngineTime)

	trap := &TrapPDU{
		Version:       Version3,
		SourceAddress: remoteAddr.String(),
		Variables:     pdu.Variables,
	}

	for _, v := range pdu.Variables {
		if v.OID.Equal(OIDSysUpTime) {
			if val, ok := v.Value.(uint32); ok {
				trap.Timestamp = val
			}
		}
	}

	return trap, nil
}

func (l *TrapListener) decodeV1Trap(data []byte, remoteAddr *net.UDPAddr) (*TrapPDU, error) {
	msg, err := DecodeTrapV1Message(data)
	if err != nil {
		return nil, err
	}

	// Convert agent address
	var agentAddr string
	if len(msg.PDU.AgentAddress) == 4 {
		agentAddr = net.IP(msg.PDU.AgentAddress).String()
	}

	return &TrapPDU{
		Version:       msg.Version,
		Community:     msg.Community,
		Enterprise:    msg.PDU.Enterprise,
		AgentAddress:  agentAddr,
		GenericTrap:   msg.PDU.GenericTrap,
		SpecificTrap:  msg.PDU.SpecificTrap,
		Timestamp:     msg.PDU.Timestamp,
		Variables:     msg.PDU.Variables,
		SourceAddress: remoteAddr.String(),
	}, nil
}

// Metrics returns the listener metrics.
func (l *TrapListener) Metrics() *Metrics {
	return l.metrics
}

// Address returns the listen address.
func (l *TrapListener) Address() string {
	if l.conn != nil {
		return l.conn.LocalAddr().String()
	}
	return l.opts.Address
}
