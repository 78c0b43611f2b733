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
	"testing"
)

func TestEncodeOID(t *testing.T) {
	oid := MustParseOID("1.3.6.1.2.1.1.2.0")
	got := encodeOID(oid)
	want := []byte{0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x02, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeOID(%v) = % x, want % x", oid, got, want)
	}
}

func TestEncodeOIDTLV(t *testing.T) {
	oid := MustParseOID("1.3.6.1.2.1.1.2.0")
	got := encodeTLV(TypeObjectIdentifier, encodeOID(oid))
	want := []byte{0x06, 0x08, 0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x02, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeTLV(OID) = % x, want % x", got, want)
	}
}

func TestDecodeOID(t *testing.T) {
	data := []byte{0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x02, 0x00}
	oid, err := decodeOID(data)
	if err != nil {
		t.Fatalf("decodeOID: %v", err)
	}
	want := MustParseOID("1.3.6.1.2.1.1.2.0")
	if !oid.Equal(want) {
		t.Errorf("decodeOID(% x) = %v, want %v", data, oid, want)
	}
}

func TestEncodeInteger(t *testing.T) {
	tests := []struct {
		value int64
		want  []byte
	}{
		{0, []byte{0x00}},
		{300, []byte{0x01, 0x2c}},
		{-1, []byte{0xff}},
		{127, []byte{0x7f}},
		{128, []byte{0x00, 0x80}},
		{-128, []byte{0x80}},
	}

	for _, tt := range tests {
		got := encodeInteger(tt.value)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("encodeInteger(%d) = % x, want % x", tt.value, got, tt.want)
		}
	}
}

func TestDecodeInteger(t *testing.T) {
	tests := []struct {
		data []byte
		want int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01, 0x2c}, 300},
		{[]byte{0xff}, -1},
		{[]byte{0x7f}, 127},
		{[]byte{0x00, 0x80}, 128},
		{[]byte{0x80}, -128},
	}

	for _, tt := range tests {
		got := decodeInteger(tt.data)
		if got != tt.want {
			t.Errorf("decodeInteger(% x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestEncodeLength(t *testing.T) {
	tests := []struct {
		length int
		want   []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x81, 0x80}},
		{256, []byte{0x82, 0x01, 0x00}},
	}

	for _, tt := range tests {
		got := encodeLength(tt.length)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("encodeLength(%d) = % x, want % x", tt.length, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTripLargeOID(t *testing.T) {
	oid := OID{1, 3, 6, 1, 4, 1, 99999}
	encoded := encodeOID(oid)
	decoded, err := decodeOID(encoded)
	if err != nil {
		t.Fatalf("decodeOID: %v", err)
	}
	if !decoded.Equal(oid) {
		t.Errorf("round trip mismatch: got %v, want %v", decoded, oid)
	}
}

func TestGetRequestWireFormat(t *testing.T) {
	pdu := NewGetRequest(1, MustParseOID("1.3.6.1.2.1.1.1.0"))
	msg := &Message{Version: Version2c, Community: "public", PDU: pdu}

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Version(2c=1) and community "public" prefix, per the v2c GET wire
	// scenario: 30 ... 02 01 01 04 06 70 75 62 6c 69 63 ...
	wantPrefix := []byte{0x02, 0x01, 0x01, 0x04, 0x06, 'p', 'u', 'b', 'l', 'i', 'c'}
	if data[0] != 0x30 {
		t.Fatalf("expected outer sequence tag 0x30, got %#x", data[0])
	}
	// Skip the outer tag + length bytes (1 or 2 for this small message).
	body := data[2:]
	if len(body) < len(wantPrefix) {
		t.Fatalf("encoded message too short: %d bytes", len(body))
	}
	if !bytes.Equal(body[:len(wantPrefix)], wantPrefix) {
		t.Errorf("GET wire prefix = % x, want % x", body[:len(wantPrefix)], wantPrefix)
	}

	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if decoded.Community != "public" || decoded.Version != Version2c {
		t.Errorf("decoded message mismatch: %+v", decoded)
	}
	if decoded.PDU.Type != PDUGetRequest || decoded.PDU.RequestID != 1 {
		t.Errorf("decoded PDU mismatch: %+v", decoded.PDU)
	}
}

func TestCounter32Overflow(t *testing.T) {
	// Counter32 wraps at 2^32; the wire encoding of a value one past the
	// max should decode back to the wrapped (truncated) value.
	var max uint64 = 1<<32 - 1
	encoded := encodeUnsignedInteger(max)
	decoded := decodeUnsignedInteger(encoded)
	if decoded != max {
		t.Errorf("Counter32 max round trip: got %d, want %d", decoded, max)
	}

	wrapped := uint32(decodeUnsignedInteger(encodeUnsignedInteger(max + 1)))
	if wrapped != 0 {
		t.Errorf("Counter32 overflow: got %d, want 0", wrapped)
	}
}
