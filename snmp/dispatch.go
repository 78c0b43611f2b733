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

// Plugin dispatch tables. Every table is built once at package init time
// by explicit register calls and is read-only for the lifetime of the
// process; there is no dynamic loading of auth/privacy implementations
// from external packages or namespaces.

// usmSecurityModel is the SNMPv3 securityModel identifier for USM
// (RFC 3411 §3).
const usmSecurityModel = 3

var authRegistry = map[AuthProtocol]authPlugin{}

var privRegistry = map[PrivProtocol]privPlugin{}

// securityModelRegistry maps a securityModel identifier to the name of the
// model implemented; only USM is supported (spec's explicit scope).
var securityModelRegistry = map[int]string{
	usmSecurityModel: "USM",
}

func init() {
	registerAuthPlugin(hmacMD5Plugin{})
	registerAuthPlugin(hmacSHA1Plugin{})
	registerPrivPlugin(&desPrivPlugin{})
	registerPrivPlugin(&aesPrivPlugin{})
}

func registerAuthPlugin(p authPlugin) {
	authRegistry[p.identifier()] = p
}

func registerPrivPlugin(p privPlugin) {
	privRegistry[p.identifier()] = p
}

// lookupAuthPlugin resolves an auth plugin by protocol identifier,
// returning a PluginError when none is registered.
func lookupAuthPlugin(protocol AuthProtocol) (authPlugin, error) {
	p, ok := authRegistry[protocol]
	if !ok {
		return nil, NewPluginError(ErrUnsupportedAuthProtocol, "auth", int(protocol))
	}
	return p, nil
}

// lookupPrivPlugin resolves a privacy plugin by protocol identifier,
// returning a PluginError when none is registered.
func lookupPrivPlugin(protocol PrivProtocol) (privPlugin, error) {
	p, ok := privRegistry[protocol]
	if !ok {
		return nil, NewPluginError(ErrPrivacyNotSupported, "priv", int(protocol))
	}
	return p, nil
}

// lookupSecurityModel validates a securityModel identifier parsed off the
// wire.
func lookupSecurityModel(id int) error {
	if _, ok := securityModelRegistry[id]; !ok {
		return NewPluginError(ErrUnknownSecurityModel, "securityModel", id)
	}
	return nil
}

// lookupMPM validates a message-processing-model (SNMP version)
// identifier parsed off the wire.
func lookupMPM(version SNMPVersion) error {
	switch version {
	case Version1, Version2c, Version3:
		return nil
	default:
		return NewPluginError(ErrUnknownMPM, "mpm", int(version))
	}
}
