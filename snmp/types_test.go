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

import "testing"

func TestParseOID(t *testing.T) {
	tests := []struct {
		in      string
		want    OID
		wantErr bool
	}{
		{"1.3.6.1.2.1.1.1.0", OID{1, 3, 6, 1, 2, 1, 1, 1, 0}, false},
		{".1.3.6.1.2.1.1.1.0", OID{1, 3, 6, 1, 2, 1, 1, 1, 0}, false},
		{"", nil, true},
		{"1.3.a.1", nil, true},
		{"1.-3.6.1", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseOID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseOID(%q) expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOID(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseOID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOIDHasPrefix(t *testing.T) {
	base := MustParseOID("1.3.6.1.2.1.1")
	child := MustParseOID("1.3.6.1.2.1.1.1.0")
	other := MustParseOID("1.3.6.1.2.1.2.1.0")

	if !child.HasPrefix(base) {
		t.Errorf("%v should have prefix %v", child, base)
	}
	if other.HasPrefix(base) {
		t.Errorf("%v should not have prefix %v", other, base)
	}
	if base.HasPrefix(child) {
		t.Error("a shorter OID cannot have a longer OID as its prefix")
	}
}

func TestOIDCopyIsIndependent(t *testing.T) {
	orig := MustParseOID("1.3.6.1.4.1")
	dup := orig.Copy()
	dup[0] = 99

	if orig[0] == 99 {
		t.Error("Copy must not alias the original backing array")
	}
}

func TestOIDString(t *testing.T) {
	oid := MustParseOID("1.3.6.1.2.1.1.1.0")
	if got := oid.String(); got != "1.3.6.1.2.1.1.1.0" {
		t.Errorf("OID.String() = %q, want %q", got, "1.3.6.1.2.1.1.1.0")
	}
	if got := OID(nil).String(); got != "" {
		t.Errorf("nil OID.String() = %q, want empty", got)
	}
}

func TestVariableAsIntAsUint(t *testing.T) {
	v := Variable{Type: TypeCounter32, Value: uint32(42)}
	got, ok := v.AsInt()
	if !ok || got != 42 {
		t.Errorf("AsInt() = %d, %v, want 42, true", got, ok)
	}
	ugot, ok := v.AsUint()
	if !ok || ugot != 42 {
		t.Errorf("AsUint() = %d, %v, want 42, true", ugot, ok)
	}

	notNumeric := Variable{Type: TypeOctetString, Value: []byte("hello")}
	if _, ok := notNumeric.AsInt(); ok {
		t.Error("AsInt() on an OCTET STRING value should report ok=false")
	}
}

func TestVariableAsStringAsBytes(t *testing.T) {
	v := Variable{Type: TypeOctetString, Value: []byte("sysContact")}
	if v.AsString() != "sysContact" {
		t.Errorf("AsString() = %q", v.AsString())
	}
	if string(v.AsBytes()) != "sysContact" {
		t.Errorf("AsBytes() = %q", v.AsBytes())
	}

	strVal := Variable{Type: TypeOctetString, Value: "plain string"}
	if strVal.AsString() != "plain string" {
		t.Errorf("AsString() on a string value = %q", strVal.AsString())
	}
}

func TestBERTypeString(t *testing.T) {
	if TypeObjectIdentifier.String() != "OBJECT IDENTIFIER" {
		t.Errorf("TypeObjectIdentifier.String() = %q", TypeObjectIdentifier.String())
	}
	if got := BERType(0xFE).String(); got != "Unknown(0xFE)" {
		t.Errorf("unknown BERType.String() = %q, want Unknown(0xFE)", got)
	}
}

func TestErrorStatusString(t *testing.T) {
	if NoSuchName.String() != "noSuchName" {
		t.Errorf("NoSuchName.String() = %q", NoSuchName.String())
	}
	if got := ErrorStatus(999).String(); got != "unknown(999)" {
		t.Errorf("unknown ErrorStatus.String() = %q, want unknown(999)", got)
	}
}
