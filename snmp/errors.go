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
	"errors"
	"fmt"
)

// Standard errors.
var (
	ErrNotConnected     = errors.New("snmp: not connected")
	ErrAlreadyConnected = errors.New("snmp: already connected")
	ErrConnectionLost   = errors.New("snmp: connection lost")
	ErrTimeout          = errors.New("snmp: operation timed out")
	ErrInvalidOID       = errors.New("snmp: invalid OID")
	ErrInvalidPacket    = errors.New("snmp: invalid packet")
	ErrInvalidPDU       = errors.New("snmp: invalid PDU")
	ErrInvalidType      = errors.New("snmp: invalid type")
	ErrInvalidLength    = errors.New("snmp: invalid length")
	ErrInvalidValue     = errors.New("snmp: invalid value")
	ErrInvalidVersion   = errors.New("snmp: invalid SNMP version")
	ErrInvalidCommunity = errors.New("snmp: invalid community string")
	ErrPacketTooLarge   = errors.New("snmp: packet too large")
	ErrMalformedPacket  = errors.New("snmp: malformed packet")
	ErrNoResponse       = errors.New("snmp: no response received")
	ErrEndOfMIB         = errors.New("snmp: end of MIB view")
	ErrNoSuchObject     = errors.New("snmp: no such object")
	ErrNoSuchInstance   = errors.New("snmp: no such instance")
	ErrRequestIDMismatch = errors.New("snmp: request ID mismatch")
	ErrAuthFailure      = errors.New("snmp: authentication failure")
	ErrPrivFailure      = errors.New("snmp: privacy failure")
	ErrClientClosed     = errors.New("snmp: client closed")

	// SNMPv3 errors.
	ErrUnknownEngineID          = errors.New("snmp: unknown engine ID")
	ErrNotInTimeWindow          = errors.New("snmp: message not in time window")
	ErrUnsupportedSecLevel      = errors.New("snmp: unsupported security level")
	ErrUnknownMPM               = errors.New("snmp: unknown message processing model")
	ErrUnknownSecurityModel     = errors.New("snmp: unknown security model")
	ErrUnsupportedAuthProtocol  = errors.New("snmp: unsupported authentication protocol")
	ErrUnsupportedPrivProtocol  = errors.New("snmp: unsupported privacy protocol")
	ErrFaultySNMPImplementation = errors.New("snmp: faulty agent implementation detected")
	ErrPrivacyNotSupported      = errors.New("snmp: privacy protocol not compiled in")
	ErrDecryptionFailed         = errors.New("snmp: decryption failed")
	ErrUnknownUserName          = errors.New("snmp: unknown user name")
)

// SNMPError represents an SNMP protocol error.
type SNMPError struct {
	Status      ErrorStatus
	Index       int
	Message     string
	RequestOID  OID
}

// Error implements the error interface.
func (e *SNMPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("snmp: %s (index %d): %s", e.Status.String(), e.Index, e.Message)
	}
	if e.RequestOID != nil {
		return fmt.Sprintf("snmp: %s at index %d (OID: %s)", e.Status.String(), e.Index, e.RequestOID)
	}
	return fmt.Sprintf("snmp: %s at index %d", e.Status.String(), e.Index)
}

// NewSNMPError creates a new SNMP error.
func NewSNMPError(status ErrorStatus, index int, oid OID) *SNMPError {
	return &SNMPError{
		Status:     status,
		Index:      index,
		RequestOID: oid,
	}
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsEndOfMIB returns true if the error indicates end of MIB view.
func IsEndOfMIB(err error) bool {
	return errors.Is(err, ErrEndOfMIB)
}

// IsNoSuchObject returns true if the error indicates no such object.
func IsNoSuchObject(err error) bool {
	return errors.Is(err, ErrNoSuchObject)
}

// IsNoSuchInstance returns true if the error indicates no such instance.
func IsNoSuchInstance(err error) bool {
	return errors.Is(err, ErrNoSuchInstance)
}

// ErrorStatusToError converts an error status to an error.
func ErrorStatusToError(status ErrorStatus, index int, oid OID) error {
	if status == NoError {
		return nil
	}
	return NewSNMPError(status, index, oid)
}

// SecurityError represents an SNMPv3 USM security failure: authentication,
// decryption, or time-window validation.
type SecurityError struct {
	Sentinel error
	EngineID string
	Message  string
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("snmp: security error (engine %x): %s", e.EngineID, e.Message)
	}
	return fmt.Sprintf("snmp: security error (engine %x): %s", e.EngineID, e.Sentinel)
}

// Unwrap allows errors.Is/errors.As to see through to the sentinel.
func (e *SecurityError) Unwrap() error {
	return e.Sentinel
}

// NewSecurityError creates a new security error wrapping a sentinel.
func NewSecurityError(sentinel error, engineID, message string) *SecurityError {
	return &SecurityError{Sentinel: sentinel, EngineID: engineID, Message: message}
}

// PluginError represents an unknown or unsupported plugin identifier in the
// message processing model, security model, auth, or privacy dispatch
// tables.
type PluginError struct {
	Sentinel error
	Kind     string
	ID       int
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	return fmt.Sprintf("snmp: %s: no plugin registered for %s id %d", e.Sentinel, e.Kind, e.ID)
}

// Unwrap allows errors.Is/errors.As to see through to the sentinel.
func (e *PluginError) Unwrap() error {
	return e.Sentinel
}

// NewPluginError creates a new plugin dispatch error.
func NewPluginError(sentinel error, kind string, id int) *PluginError {
	return &PluginError{Sentinel: sentinel, Kind: kind, ID: id}
}

// IsAuthFailure returns true if the error indicates a USM authentication failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthFailure)
}

// IsDecryptionError returns true if the error indicates a USM decryption failure.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptionFailed)
}

// IsUnknownEngineID returns true if the error indicates an unrecognized engine ID.
func IsUnknownEngineID(err error) bool {
	return errors.Is(err, ErrUnknownEngineID)
}

// IsNotInTimeWindow returns true if the error indicates the message fell outside
// the USM time window and a resync should be attempted.
func IsNotInTimeWindow(err error) bool {
	return errors.Is(err, ErrNotInTimeWindow)
}

// ParseError represents a packet parsing error.
type ParseError struct {
	Message string
	Offset  int
	Data    []byte
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("snmp: parse error at offset %d: %s", e.Offset, e.Message)
	}
	return fmt.Sprintf("snmp: parse error: %s", e.Message)
}

// NewParseError creates a new parse error.
func NewParseError(message string, offset int) *ParseError {
	return &ParseError{
		Message: message,
		Offset:  offset,
	}
}
