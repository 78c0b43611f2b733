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
	"context"
	"net"
	"testing"
	"time"
)

// scriptedAgent answers GetBulk/GetNext requests from a fixed transcript,
// one varbind further into the script per request, simulating a walk over
// a MIB subtree.
type scriptedAgent struct {
	conn  *net.UDPConn
	vars  []Variable
	index int
}

func newScriptedAgent(t *testing.T, vars []Variable) *scriptedAgent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return &scriptedAgent{conn: conn, vars: vars}
}

func (a *scriptedAgent) addr() string {
	return a.conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().String()
}

func (a *scriptedAgent) port() int {
	return a.conn.LocalAddr().(*net.UDPAddr).Port
}

func (a *scriptedAgent) run(t *testing.T) {
	t.Helper()
	buf := make([]byte, 65535)
	for {
		n, remote, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		msg, err := DecodeMessage(buf[:n])
		if err != nil {
			return
		}

		resp := &PDU{
			Type:      PDUGetResponse,
			RequestID: msg.PDU.RequestID,
		}

		if a.index < len(a.vars) {
			resp.Variables = []Variable{a.vars[a.index]}
			a.index++
		} else {
			resp.Variables = []Variable{{
				OID:  a.vars[len(a.vars)-1].OID,
				Type: TypeEndOfMibView,
			}}
		}

		reply := &Message{Version: msg.Version, Community: msg.Community, PDU: resp}
		data, err := reply.Encode()
		if err != nil {
			return
		}
		a.conn.WriteToUDP(data, remote)
	}
}

func (a *scriptedAgent) close() {
	a.conn.Close()
}

func TestWalkTranscript(t *testing.T) {
	base := MustParseOID("1.3.6.1.2.1.1.9.1")

	var vars []Variable
	for i := 1; i <= 30; i++ {
		oid := append(base.Copy(), i)
		vars = append(vars, Variable{OID: oid, Type: TypeInteger, Value: i})
	}

	agent := newScriptedAgent(t, vars)
	defer agent.close()
	go agent.run(t)

	client := NewClient(
		WithTarget(agent.addr()),
		WithPort(agent.port()),
		WithVersion(Version2c),
		WithCommunity("public"),
		WithTimeout(2*time.Second),
		WithAutoReconnect(false),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	results, err := client.Walk(ctx, base)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(results) != 30 {
		t.Fatalf("Walk returned %d variables, want 30", len(results))
	}

	for i, v := range results {
		if !v.OID.HasPrefix(base) {
			t.Errorf("result %d OID %s is not under base %s", i, v.OID, base)
		}
		if i > 0 && !oidLess(results[i-1].OID, v.OID) {
			t.Errorf("results not strictly increasing at index %d: %s then %s", i, results[i-1].OID, v.OID)
		}
	}
}

func TestBulkWalkTranscript(t *testing.T) {
	base := MustParseOID("1.3.6.1.2.1.1.9.1")

	var vars []Variable
	for i := 1; i <= 10; i++ {
		oid := append(base.Copy(), i)
		vars = append(vars, Variable{OID: oid, Type: TypeInteger, Value: i})
	}

	agent := newScriptedAgent(t, vars)
	defer agent.close()
	go agent.run(t)

	client := NewClient(
		WithTarget(agent.addr()),
		WithPort(agent.port()),
		WithVersion(Version2c),
		WithCommunity("public"),
		WithTimeout(2*time.Second),
		WithAutoReconnect(false),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	results, err := client.BulkWalk(ctx, 5, base)
	if err != nil {
		t.Fatalf("BulkWalk: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("BulkWalk returned %d variables, want 10", len(results))
	}
}

func TestBulkWalkRejectsVersion1(t *testing.T) {
	client := NewClient(WithVersion(Version1))
	err := client.BulkWalkFunc(context.Background(), 10, MustParseOID("1.3.6.1.2.1.1"), func(Variable) error { return nil })
	if err == nil {
		t.Error("expected BulkWalkFunc to reject SNMPv1")
	}
}

func oidLess(a, b OID) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func TestWalkFaultyAgentRepeatsOID(t *testing.T) {
	base := MustParseOID("1.3.6.1.2.1.1.9.1")
	stuck := append(base.Copy(), 1)

	agent := newScriptedAgent(t, []Variable{{OID: stuck, Type: TypeInteger, Value: 1}})
	defer agent.close()

	// Override the agent to always answer with the same varbind instead of
	// advancing, simulating a faulty lexicographic-next implementation.
	go func() {
		buf := make([]byte, 65535)
		for {
			n, remote, err := agent.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			msg, err := DecodeMessage(buf[:n])
			if err != nil {
				return
			}
			resp := &PDU{
				Type:      PDUGetResponse,
				RequestID: msg.PDU.RequestID,
				Variables: []Variable{{OID: stuck, Type: TypeInteger, Value: 1}},
			}
			reply := &Message{Version: msg.Version, Community: msg.Community, PDU: resp}
			data, _ := reply.Encode()
			agent.conn.WriteToUDP(data, remote)
		}
	}()

	client := NewClient(
		WithTarget(agent.addr()),
		WithPort(agent.port()),
		WithVersion(Version2c),
		WithCommunity("public"),
		WithTimeout(2*time.Second),
		WithAutoReconnect(false),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	_, err := client.Walk(ctx, base)
	if err != ErrFaultySNMPImplementation {
		t.Errorf("Walk with repeating OID: got %v, want ErrFaultySNMPImplementation", err)
	}
}
