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
	"net"
	"testing"
)

func testRemoteAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("192.0.2.50"), Port: 54321}
}

func TestDecodeV1Trap(t *testing.T) {
	trap := &TrapV1PDU{
		Enterprise:   MustParseOID("1.3.6.1.4.1.8072.3.2.10"),
		AgentAddress: net.ParseIP("192.0.2.1").To4(),
		GenericTrap:  6,
		SpecificTrap: 2,
		Timestamp:    5000,
		Variables:    []Variable{{OID: OIDSysDescr, Type: TypeOctetString, Value: []byte("agent")}},
	}
	msg := &TrapV1Message{Version: Version1, Community: "public", PDU: trap}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	listener := NewTrapListener(nil, WithTrapCommunity("public"))
	got, err := listener.decodeTrap(data, testRemoteAddr())
	if err != nil {
		t.Fatalf("decodeTrap: %v", err)
	}

	if got.Version != Version1 || got.Community != "public" {
		t.Errorf("trap mismatch: %+v", got)
	}
	if got.GenericTrap != 6 || got.SpecificTrap != 2 {
		t.Errorf("GenericTrap/SpecificTrap = %d/%d", got.GenericTrap, got.SpecificTrap)
	}
	if got.AgentAddress != "192.0.2.1" {
		t.Errorf("AgentAddress = %q, want 192.0.2.1", got.AgentAddress)
	}
}

func TestDecodeV2cTrap(t *testing.T) {
	trapOID := MustParseOID("1.3.6.1.6.3.1.1.5.3")
	pdu := NewTrapV2(1, 9999, trapOID, Variable{OID: OIDSysContact, Type: TypeOctetString, Value: []byte("ops@example.com")})
	msg := &Message{Version: Version2c, Community: "public", PDU: pdu}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	listener := NewTrapListener(nil, WithTrapCommunity("public"))
	got, err := listener.decodeTrap(data, testRemoteAddr())
	if err != nil {
		t.Fatalf("decodeTrap: %v", err)
	}

	if got.Version != Version2c || got.Community != "public" {
		t.Errorf("trap mismatch: %+v", got)
	}
	if got.Timestamp != 9999 {
		t.Errorf("Timestamp = %d, want 9999", got.Timestamp)
	}
	if len(got.Variables) != 3 {
		t.Fatalf("Variables count = %d, want 3", len(got.Variables))
	}
}

func TestDecodeV3Trap(t *testing.T) {
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x99, 0x88, 0x77, 0x66}

	senderOpts := NewClientOptions()
	senderOpts.Version = Version3
	senderOpts.SecurityLevel = AuthPriv
	senderOpts.SecurityName = "trapuser"
	senderOpts.AuthProtocol = SHA
	senderOpts.AuthPassphrase = "trapauthpass"
	senderOpts.PrivProtocol = AES
	senderOpts.PrivPassphrase = "trapprivpass"

	creds, err := credentialsFromOptions(senderOpts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	trapOID := MustParseOID("1.3.6.1.6.3.1.1.5.3")
	pdu := NewTrapV2(1, 4242, trapOID)
	data, err := buildOutgoingV3Message(senderOpts, 1, pdu, engineID, 2, 500, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message: %v", err)
	}

	listener := NewTrapListener(nil, WithTrapSecurity(AuthPriv, "trapuser", SHA, "trapauthpass", AES, "trapprivpass"))
	got, err := listener.decodeTrap(data, testRemoteAddr())
	if err != nil {
		t.Fatalf("decodeTrap: %v", err)
	}

	if got.Version != Version3 {
		t.Errorf("Version = %v, want Version3", got.Version)
	}
	if got.Timestamp != 4242 {
		t.Errorf("Timestamp = %d, want 4242", got.Timestamp)
	}
}

func TestDecodeV3TrapWrongCredentialsFails(t *testing.T) {
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x99, 0x88, 0x77, 0x66}

	senderOpts := NewClientOptions()
	senderOpts.Version = Version3
	senderOpts.SecurityLevel = AuthPriv
	senderOpts.SecurityName = "trapuser"
	senderOpts.AuthProtocol = SHA
	senderOpts.AuthPassphrase = "trapauthpass"
	senderOpts.PrivProtocol = AES
	senderOpts.PrivPassphrase = "trapprivpass"

	creds, err := credentialsFromOptions(senderOpts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	trapOID := MustParseOID("1.3.6.1.6.3.1.1.5.3")
	pdu := NewTrapV2(1, 4242, trapOID)
	data, err := buildOutgoingV3Message(senderOpts, 1, pdu, engineID, 2, 500, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message: %v", err)
	}

	listener := NewTrapListener(nil, WithTrapSecurity(AuthPriv, "trapuser", SHA, "wrongpassphrase", AES, "trapprivpass"))
	_, err = listener.decodeTrap(data, testRemoteAddr())
	if err == nil {
		t.Error("decodeTrap with wrong auth passphrase should fail")
	}
}

func TestDecodeV3TrapRejectsReplayAfterWindowDrift(t *testing.T) {
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x99, 0x88, 0x77, 0x66}

	senderOpts := NewClientOptions()
	senderOpts.Version = Version3
	senderOpts.SecurityLevel = AuthPriv
	senderOpts.SecurityName = "trapuser"
	senderOpts.AuthProtocol = SHA
	senderOpts.AuthPassphrase = "trapauthpass"
	senderOpts.PrivProtocol = AES
	senderOpts.PrivPassphrase = "trapprivpass"

	creds, err := credentialsFromOptions(senderOpts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	listener := NewTrapListener(nil, WithTrapSecurity(AuthPriv, "trapuser", SHA, "trapauthpass", AES, "trapprivpass"))
	trapOID := MustParseOID("1.3.6.1.6.3.1.1.5.3")

	first := NewTrapV2(1, 500, trapOID)
	firstData, err := buildOutgoingV3Message(senderOpts, 1, first, engineID, 2, 500, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message (first): %v", err)
	}
	if _, err := listener.decodeTrap(firstData, testRemoteAddr()); err != nil {
		t.Fatalf("first trap should establish the baseline, got %v", err)
	}

	second := NewTrapV2(2, 900, trapOID)
	secondData, err := buildOutgoingV3Message(senderOpts, 2, second, engineID, 2, 900, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message (second): %v", err)
	}
	if _, err := listener.decodeTrap(secondData, testRemoteAddr()); !IsNotInTimeWindow(err) {
		t.Errorf("expected second trap 400s past baseline to be rejected as not-in-time-window, got %v", err)
	}
}

func TestPeekTrapVersion(t *testing.T) {
	pdu := NewTrapV2(1, 1, MustParseOID("1.3.6.1.6.3.1.1.5.1"))
	msg := &Message{Version: Version2c, Community: "public", PDU: pdu}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	v, err := peekTrapVersion(data)
	if err != nil {
		t.Fatalf("peekTrapVersion: %v", err)
	}
	if v != Version2c {
		t.Errorf("peekTrapVersion = %v, want Version2c", v)
	}
}
