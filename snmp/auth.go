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
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
)

// authTagLen is the length of an RFC 3414 authentication parameter: both
// HMAC-MD5-96 and HMAC-SHA1-96 truncate their digest to 12 bytes.
const authTagLen = 12

// authPlugin computes and verifies the 12-byte AuthenticationParameters
// field carried in a v3 USM security parameters sequence.
type authPlugin interface {
	// identifier is the dispatch key used by dispatch.go's auth registry.
	identifier() AuthProtocol
	// tag returns the truncated HMAC over msg, keyed by the localized
	// authentication key.
	tag(key, msg []byte) []byte
}

type hmacMD5Plugin struct{}

func (hmacMD5Plugin) identifier() AuthProtocol { return MD5 }

func (hmacMD5Plugin) tag(key, msg []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(msg)
	return mac.Sum(nil)[:authTagLen]
}

type hmacSHA1Plugin struct{}

func (hmacSHA1Plugin) identifier() AuthProtocol { return SHA }

func (hmacSHA1Plugin) tag(key, msg []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(msg)
	return mac.Sum(nil)[:authTagLen]
}

// authPluginFor looks up the auth plugin for a protocol without going
// through the PluginError-returning dispatch table, for callers that
// already know the protocol must exist (e.g. after deriveV3Keys succeeded).
func authPluginFor(protocol AuthProtocol) (authPlugin, bool) {
	p, ok := authRegistry[protocol]
	return p, ok
}
