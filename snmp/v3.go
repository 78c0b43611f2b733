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
	"fmt"
)

// SNMPv3 message flags (msgFlags, a single-octet OCTET STRING).
const (
	msgFlagAuth       byte = 0x01
	msgFlagPriv       byte = 0x02
	msgFlagReportable byte = 0x04
)

// usmSecurityParameters is the UsmSecurityParameters SEQUENCE carried
// (OCTET STRING-wrapped) inside a v3 message's msgSecurityParameters
// field.
type usmSecurityParameters struct {
	EngineID    []byte
	EngineBoots int32
	EngineTime  int32
	UserName    string
	AuthParams  []byte // 12 zero bytes placeholder pre-signing, or empty
	PrivParams  []byte // 8-byte salt, or empty
}

// encode serializes the security parameters and reports the offset of
// AuthParams' content within the returned bytes, so the caller can splice
// in the real HMAC tag after authenticating the whole message.
func (p *usmSecurityParameters) encode() (data []byte, authParamsOffset int) {
	engineIDTLV := encodeTLV(TypeOctetString, p.EngineID)
	bootsTLV := encodeTLV(TypeInteger, encodeInteger(int64(p.EngineBoots)))
	timeTLV := encodeTLV(TypeInteger, encodeInteger(int64(p.EngineTime)))
	userTLV := encodeTLV(TypeOctetString, []byte(p.UserName))
	authTLV := encodeTLV(TypeOctetString, p.AuthParams)
	privTLV := encodeTLV(TypeOctetString, p.PrivParams)

	var inner bytes.Buffer
	inner.Write(engineIDTLV)
	inner.Write(bootsTLV)
	inner.Write(timeTLV)
	inner.Write(userTLV)
	relOffset := inner.Len() + (len(authTLV) - len(p.AuthParams))
	inner.Write(authTLV)
	inner.Write(privTLV)

	wrapped := encodeTLV(TypeSequence, inner.Bytes())
	headerLen := len(wrapped) - inner.Len()
	return wrapped, headerLen + relOffset
}

// decodeUSMSecurityParameters parses a UsmSecurityParameters SEQUENCE and
// reports the offset of AuthParams' content within data, for verification.
func decodeUSMSecurityParameters(data []byte) (*usmSecurityParameters, int, error) {
	r := bytes.NewReader(data)
	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, 0, err
	}
	if seqType != TypeSequence {
		return nil, 0, NewParseError(fmt.Sprintf("expected USM security parameters sequence, got %s", seqType), -1)
	}

	sr := bytes.NewReader(seqData)
	_, engineIDData, err := decodeTLV(sr)
	if err != nil {
		return nil, 0, err
	}
	_, bootsData, err := decodeTLV(sr)
	if err != nil {
		return nil, 0, err
	}
	_, timeData, err := decodeTLV(sr)
	if err != nil {
		return nil, 0, err
	}
	_, userData, err := decodeTLV(sr)
	if err != nil {
		return nil, 0, err
	}

	preAuthPos := len(seqData) - sr.Len()
	authType, authData, err := decodeTLV(sr)
	if err != nil {
		return nil, 0, err
	}
	if authType != TypeOctetString {
		return nil, 0, NewParseError("expected authentication parameters octet string", -1)
	}
	postAuthPos := len(seqData) - sr.Len()
	authHeaderLen := (postAuthPos - preAuthPos) - len(authData)

	_, privData, err := decodeTLV(sr)
	if err != nil {
		return nil, 0, err
	}

	params := &usmSecurityParameters{
		EngineID:    engineIDData,
		EngineBoots: int32(decodeInteger(bootsData)),
		EngineTime:  int32(decodeInteger(timeData)),
		UserName:    string(userData),
		AuthParams:  authData,
		PrivParams:  privData,
	}

	// Offset of AuthParams' content relative to the start of `data`: the
	// outer sequence TLV header, plus where we found it inside seqData.
	outerHeaderLen := len(data) - len(seqData)
	return params, outerHeaderLen + preAuthPos + authHeaderLen, nil
}

// encodeHeaderData serializes the msgGlobalData SEQUENCE.
func encodeHeaderData(msgID, msgMaxSize int32, flags byte, securityModel int) []byte {
	var buf bytes.Buffer
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(msgID))))
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(msgMaxSize))))
	buf.Write(encodeTLV(TypeOctetString, []byte{flags}))
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(securityModel))))
	return encodeTLV(TypeSequence, buf.Bytes())
}

// decodeHeaderData parses the msgGlobalData SEQUENCE.
func decodeHeaderData(data []byte) (msgID, msgMaxSize int32, flags byte, securityModel int, err error) {
	r := bytes.NewReader(data)
	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if seqType != TypeSequence {
		return 0, 0, 0, 0, NewParseError(fmt.Sprintf("expected msgGlobalData sequence, got %s", seqType), -1)
	}

	sr := bytes.NewReader(seqData)
	_, idData, err := decodeTLV(sr)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	_, maxSizeData, err := decodeTLV(sr)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	_, flagsData, err := decodeTLV(sr)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	_, modelData, err := decodeTLV(sr)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	var f byte
	if len(flagsData) > 0 {
		f = flagsData[0]
	}
	return int32(decodeInteger(idData)), int32(decodeInteger(maxSizeData)), f, int(decodeInteger(modelData)), nil
}

// encodeScopedPDU builds the plaintext ScopedPDU SEQUENCE (contextEngineID,
// contextName, PDU), including its own TLV header.
func encodeScopedPDU(contextEngineID []byte, contextName string, pdu *PDU) ([]byte, error) {
	pduBytes, err := pdu.Encode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(encodeTLV(TypeOctetString, contextEngineID))
	buf.Write(encodeTLV(TypeOctetString, []byte(contextName)))
	buf.Write(pduBytes)
	return encodeTLV(TypeSequence, buf.Bytes()), nil
}

// decodeScopedPDU parses a ScopedPDU SEQUENCE including its own TLV
// header, as recovered after decrypting an encrypted msgData OCTET
// STRING.
func decodeScopedPDU(data []byte) (contextEngineID []byte, contextName string, pdu *PDU, err error) {
	r := bytes.NewReader(data)
	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, "", nil, err
	}
	if seqType != TypeSequence {
		return nil, "", nil, NewParseError(fmt.Sprintf("expected ScopedPDU sequence, got %s", seqType), -1)
	}
	return decodeScopedPDUFields(seqData)
}

// decodeScopedPDUFields parses the inner fields of a ScopedPDU given its
// sequence content only (no outer TLV header) — the shape decodeTLV
// already leaves behind when the plaintext ScopedPDU was read directly
// off an unencrypted v3 message.
func decodeScopedPDUFields(seqData []byte) (contextEngineID []byte, contextName string, pdu *PDU, err error) {
	sr := bytes.NewReader(seqData)
	_, ceData, err := decodeTLV(sr)
	if err != nil {
		return nil, "", nil, err
	}
	_, cnData, err := decodeTLV(sr)
	if err != nil {
		return nil, "", nil, err
	}
	p, err := decodePDU(sr)
	if err != nil {
		return nil, "", nil, err
	}
	return ceData, string(cnData), p, nil
}

// encodeMessageV3 assembles the full v3 message and reports the absolute
// offset of AuthParams' content within the returned bytes, so the caller
// can splice in a real HMAC tag computed over the whole (zero-filled)
// message.
func encodeMessageV3(msgID, msgMaxSize int32, flags byte, securityModel int, secParams []byte, authOffsetInSecParams int, msgData []byte) (data []byte, authParamsOffset int) {
	header := encodeHeaderData(msgID, msgMaxSize, flags, securityModel)
	secParamsTLV := encodeTLV(TypeOctetString, secParams)
	secParamsHeaderLen := len(secParamsTLV) - len(secParams)

	var buf bytes.Buffer
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(Version3))))
	buf.Write(header)
	offsetInBuf := buf.Len() + secParamsHeaderLen + authOffsetInSecParams
	buf.Write(secParamsTLV)
	buf.Write(msgData)

	wrapped := encodeTLV(TypeSequence, buf.Bytes())
	outerHeaderLen := len(wrapped) - buf.Len()
	return wrapped, outerHeaderLen + offsetInBuf
}

// decodedMessageV3 is the parsed form of a v3 message prior to USM
// security processing (authentication/decryption), which is applied by
// usm.go.
type decodedMessageV3 struct {
	MsgID            int32
	MsgMaxSize       int32
	MsgFlags         byte
	MsgSecurityModel int

	SecurityParams       *usmSecurityParameters
	SecurityParamsOffset int // absolute offset of AuthParams' content in the raw packet

	Encrypted    bool
	ScopedPDU    []byte // plaintext inner ScopedPDU fields if !Encrypted, else ciphertext
	RawMessage   []byte // the full raw packet, needed to re-verify the auth tag in place
}

// decodeMessageV3 parses a v3 message's envelope and security parameters,
// without yet authenticating or decrypting the ScopedPDU.
func decodeMessageV3(data []byte) (*decodedMessageV3, error) {
	r := bytes.NewReader(data)
	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("expected v3 message sequence, got %s", seqType), -1)
	}

	sr := bytes.NewReader(seqData)
	_, versionData, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	msgVersion := SNMPVersion(decodeInteger(versionData))
	if err := lookupMPM(msgVersion); err != nil {
		return nil, err
	}
	if msgVersion != Version3 {
		return nil, ErrInvalidVersion
	}

	_, headerSeqData, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	// headerSeqData is the *value* of msgGlobalData's sequence TLV; feed it
	// back through decodeHeaderData, which expects the TLV including header.
	msgID, msgMaxSize, flags, secModel, err := decodeHeaderData(encodeTLV(TypeSequence, headerSeqData))
	if err != nil {
		return nil, err
	}

	preSecParamsPos := len(seqData) - sr.Len()
	secType, secParamsBytes, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	if secType != TypeOctetString {
		return nil, NewParseError(fmt.Sprintf("expected msgSecurityParameters octet string, got %s", secType), -1)
	}
	postSecParamsPos := len(seqData) - sr.Len()
	secParamsHeaderLen := (postSecParamsPos - preSecParamsPos) - len(secParamsBytes)

	usmParams, authRelOffset, err := decodeUSMSecurityParameters(secParamsBytes)
	if err != nil {
		return nil, err
	}

	outerHeaderLen := len(data) - len(seqData)
	secParamsAbsStart := outerHeaderLen + preSecParamsPos + secParamsHeaderLen

	msgDataType, msgDataValue, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}

	msg := &decodedMessageV3{
		MsgID:                msgID,
		MsgMaxSize:           msgMaxSize,
		MsgFlags:             flags,
		MsgSecurityModel:     secModel,
		SecurityParams:       usmParams,
		SecurityParamsOffset: secParamsAbsStart + authRelOffset,
		RawMessage:           data,
	}

	switch msgDataType {
	case TypeOctetString:
		msg.Encrypted = true
		msg.ScopedPDU = msgDataValue
	case TypeSequence:
		msg.ScopedPDU = msgDataValue
	default:
		return nil, NewParseError(fmt.Sprintf("expected ScopedPDU, got %s", msgDataType), -1)
	}

	return msg, nil
}
