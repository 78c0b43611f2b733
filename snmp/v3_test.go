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

func ninjaOptions() *ClientOptions {
	opts := NewClientOptions()
	opts.Version = Version3
	opts.SecurityLevel = AuthPriv
	opts.SecurityName = "ninja"
	opts.AuthProtocol = MD5
	opts.AuthPassphrase = "theauthpass"
	opts.PrivProtocol = DES
	opts.PrivPassphrase = "privpass"
	return opts
}

func TestV3AuthPrivRoundTrip(t *testing.T) {
	opts := ninjaOptions()
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x5c, 0x73, 0x5f, 0x21}
	var boots, engineTime int32 = 3, 12345

	creds, err := credentialsFromOptions(opts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	pdu := NewGetRequest(1, MustParseOID("1.3.6.1.2.1.1.1.0"))
	data, err := buildOutgoingV3Message(opts, 42, pdu, engineID, boots, engineTime, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message: %v", err)
	}

	decoded, err := decodeMessageV3(data)
	if err != nil {
		t.Fatalf("decodeMessageV3: %v", err)
	}
	if !decoded.Encrypted {
		t.Fatal("expected encrypted ScopedPDU for AuthPriv")
	}
	if decoded.MsgFlags&msgFlagAuth == 0 || decoded.MsgFlags&msgFlagPriv == 0 {
		t.Fatalf("expected auth+priv flags, got %#x", decoded.MsgFlags)
	}

	_, gotPDU, err := verifyAndDecode(decoded, opts.AuthProtocol, opts.PrivProtocol, creds, nil)
	if err != nil {
		t.Fatalf("verifyAndDecode: %v", err)
	}

	if gotPDU.RequestID != pdu.RequestID {
		t.Errorf("RequestID mismatch: got %d, want %d", gotPDU.RequestID, pdu.RequestID)
	}
	if len(gotPDU.Variables) != 1 || !gotPDU.Variables[0].OID.Equal(pdu.Variables[0].OID) {
		t.Errorf("Variables mismatch: got %+v, want %+v", gotPDU.Variables, pdu.Variables)
	}
}

func TestV3AuthTagTamperDetected(t *testing.T) {
	opts := ninjaOptions()
	opts.SecurityLevel = AuthNoPriv
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x5c, 0x73, 0x5f, 0x21}

	creds, err := credentialsFromOptions(opts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	pdu := NewGetRequest(1, MustParseOID("1.3.6.1.2.1.1.1.0"))
	data, err := buildOutgoingV3Message(opts, 7, pdu, engineID, 3, 100, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message: %v", err)
	}

	// Flip the placeholder value's type tag (not a length byte) to
	// invalidate the auth tag without corrupting the TLV framing.
	data[len(data)-2] ^= 0xff

	decoded, err := decodeMessageV3(data)
	if err != nil {
		t.Fatalf("decodeMessageV3: %v", err)
	}

	_, _, err = verifyAndDecode(decoded, opts.AuthProtocol, opts.PrivProtocol, creds, nil)
	if !IsAuthFailure(err) {
		t.Errorf("expected auth failure, got %v", err)
	}
}

func TestPasswordToKeyAndLocalize(t *testing.T) {
	ku := passwordToKey(authHashFunc(MD5), "theauthpass")
	if len(ku) != 16 {
		t.Fatalf("MD5 password-to-key length = %d, want 16", len(ku))
	}

	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x5c, 0x73, 0x5f, 0x21}
	localized := localizeKey(authHashFunc(MD5), ku, engineID)
	if len(localized) != 16 {
		t.Fatalf("localized key length = %d, want 16", len(localized))
	}

	// Localization must depend on the engine ID.
	otherEngine := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x5c, 0x73, 0x5f, 0x22}
	localized2 := localizeKey(authHashFunc(MD5), ku, otherEngine)
	if bytes.Equal(localized, localized2) {
		t.Error("localized keys for distinct engine IDs must differ")
	}
}

func TestDESPrivacyRoundTrip(t *testing.T) {
	plugin := &desPrivPlugin{}
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i + 1)
	}

	plaintext := []byte("a ScopedPDU payload that is not block aligned")
	salt := plugin.nextSalt(3)

	ciphertext, err := plugin.encrypt(key, salt, plaintext, 3, 0)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	decrypted, err := plugin.decrypt(key, salt, ciphertext, 3, 0)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	padded := padTo8(append([]byte{}, plaintext...))
	if !bytes.Equal(decrypted, padded) {
		t.Errorf("DES round trip mismatch: got %q, want %q", decrypted, padded)
	}
}

func TestAESPrivacyRoundTrip(t *testing.T) {
	plugin := &aesPrivPlugin{}
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i * 3)
	}

	plaintext := []byte("another ScopedPDU payload of arbitrary length")
	salt := plugin.nextSalt(3)

	ciphertext, err := plugin.encrypt(key, salt, plaintext, 3, 12345)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	decrypted, err := plugin.decrypt(key, salt, ciphertext, 3, 12345)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("AES round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestVerifyAndDecodeRejectsOutOfWindow(t *testing.T) {
	opts := ninjaOptions()
	opts.SecurityLevel = AuthNoPriv
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x5c, 0x73, 0x5f, 0x21}

	creds, err := credentialsFromOptions(opts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	engine := &engineState{}
	engine.update(engineID, 3, 1000)

	pdu := NewGetRequest(1, MustParseOID("1.3.6.1.2.1.1.1.0"))
	data, err := buildOutgoingV3Message(opts, 7, pdu, engineID, 3, 1400, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message: %v", err)
	}

	decoded, err := decodeMessageV3(data)
	if err != nil {
		t.Fatalf("decodeMessageV3: %v", err)
	}

	_, _, err = verifyAndDecode(decoded, opts.AuthProtocol, opts.PrivProtocol, creds, engine)
	if !IsNotInTimeWindow(err) {
		t.Errorf("expected not-in-time-window error, got %v", err)
	}
}

func TestVerifyAndDecodeFirstSightSkipsWindowCheck(t *testing.T) {
	opts := ninjaOptions()
	opts.SecurityLevel = AuthNoPriv
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x5c, 0x73, 0x5f, 0x21}

	creds, err := credentialsFromOptions(opts, engineID)
	if err != nil {
		t.Fatalf("credentialsFromOptions: %v", err)
	}

	engine := &engineState{}

	pdu := NewGetRequest(1, MustParseOID("1.3.6.1.2.1.1.1.0"))
	data, err := buildOutgoingV3Message(opts, 7, pdu, engineID, 3, 999999, creds, false)
	if err != nil {
		t.Fatalf("buildOutgoingV3Message: %v", err)
	}

	decoded, err := decodeMessageV3(data)
	if err != nil {
		t.Fatalf("decodeMessageV3: %v", err)
	}

	if _, _, err := verifyAndDecode(decoded, opts.AuthProtocol, opts.PrivProtocol, creds, engine); err != nil {
		t.Errorf("expected first-sight message to be accepted without a baseline, got %v", err)
	}
}

func TestEngineStateTimeWindow(t *testing.T) {
	e := &engineState{}
	e.update([]byte{1, 2, 3}, 5, 1000)

	if !e.inTimeWindow(5, 1000) {
		t.Error("expected exact time match to be in window")
	}
	if !e.inTimeWindow(5, 1100) {
		t.Error("expected 100s drift to be in window")
	}
	if e.inTimeWindow(5, 1400) {
		t.Error("expected 400s drift to be out of window")
	}
	if e.inTimeWindow(6, 1000) {
		t.Error("expected boots mismatch to be out of window")
	}
}
