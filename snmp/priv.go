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
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// privSaltLen is the length of the PrivacyParameters field carried on the
// wire, fixed at 8 octets for both DES-CBC and AES-CFB128.
const privSaltLen = 8

// privPlugin encrypts and decrypts a ScopedPDU for the AuthPriv security
// level. Each plugin owns a salt counter used to build a fresh
// PrivacyParameters value for every outgoing message; one plugin instance
// per protocol is registered, so the counter is shared by every client.
type privPlugin interface {
	identifier() PrivProtocol
	// nextSalt returns the next 8-byte PrivacyParameters value and
	// advances the plugin's internal counter. engineBoots is folded into
	// the DES salt per RFC 3414; AES-CFB128 ignores it here since it goes
	// directly into the IV instead (RFC 3826 §3.1.2).
	nextSalt(engineBoots uint32) []byte
	encrypt(key, salt, plaintext []byte, engineBoots, engineTime uint32) ([]byte, error)
	decrypt(key, salt, ciphertext []byte, engineBoots, engineTime uint32) ([]byte, error)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// padTo8 zero-pads data to a multiple of the DES block size, as the
// ScopedPDU's own ASN.1 length header lets the receiver discard the
// padding after decryption.
func padTo8(data []byte) []byte {
	rem := len(data) % des.BlockSize
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, des.BlockSize-rem)...)
}

type desPrivPlugin struct {
	counter uint32
}

func (p *desPrivPlugin) identifier() PrivProtocol { return DES }

func (p *desPrivPlugin) nextSalt(engineBoots uint32) []byte {
	c := atomic.AddUint32(&p.counter, 1)
	salt := make([]byte, privSaltLen)
	binary.BigEndian.PutUint32(salt[0:4], engineBoots)
	binary.BigEndian.PutUint32(salt[4:8], c)
	return salt
}

func (p *desPrivPlugin) encrypt(key, salt, plaintext []byte, _, _ uint32) ([]byte, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("snmp: DES privacy key too short: %d bytes", len(key))
	}
	block, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	iv := xorBytes(key[8:16], salt)
	padded := padTo8(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func (p *desPrivPlugin) decrypt(key, salt, ciphertext []byte, _, _ uint32) ([]byte, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("snmp: DES privacy key too short: %d bytes", len(key))
	}
	if len(ciphertext)%des.BlockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	block, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	iv := xorBytes(key[8:16], salt)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

type aesPrivPlugin struct {
	counter uint64
}

func (p *aesPrivPlugin) identifier() PrivProtocol { return AES }

func (p *aesPrivPlugin) nextSalt(_ uint32) []byte {
	c := atomic.AddUint64(&p.counter, 1)
	salt := make([]byte, privSaltLen)
	binary.BigEndian.PutUint64(salt, c)
	return salt
}

func aesIV(salt []byte, engineBoots, engineTime uint32) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv[0:4], engineBoots)
	binary.BigEndian.PutUint32(iv[4:8], engineTime)
	copy(iv[8:16], salt)
	return iv
}

func (p *aesPrivPlugin) encrypt(key, salt, plaintext []byte, engineBoots, engineTime uint32) ([]byte, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("snmp: AES privacy key too short: %d bytes", len(key))
	}
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, aesIV(salt, engineBoots, engineTime)).XORKeyStream(ciphertext, plaintext)
	return ciphertext, nil
}

func (p *aesPrivPlugin) decrypt(key, salt, ciphertext []byte, engineBoots, engineTime uint32) ([]byte, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("snmp: AES privacy key too short: %d bytes", len(key))
	}
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, aesIV(salt, engineBoots, engineTime)).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// privPluginFor looks up the privacy plugin for a protocol, for callers
// that only need an existence check (e.g. deriveV3Keys).
func privPluginFor(protocol PrivProtocol) (privPlugin, bool) {
	p, ok := privRegistry[protocol]
	return p, ok
}
