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

// echoAgent answers a single v1/v2c request with a canned GetResponse,
// exercising Get/GetNext/GetBulk/Set against a live Client without a real
// SNMP agent.
type echoAgent struct {
	conn *net.UDPConn
}

func newEchoAgent(t *testing.T) *echoAgent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return &echoAgent{conn: conn}
}

func (a *echoAgent) addr() string { return a.conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().String() }
func (a *echoAgent) port() int    { return a.conn.LocalAddr().(*net.UDPAddr).Port }
func (a *echoAgent) close()       { a.conn.Close() }

// run replies to every request, Set included, with a GetResponse carrying
// reply and echoing back the request's RequestID.
func (a *echoAgent) run(t *testing.T, reply []Variable) {
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
		resp := &PDU{Type: PDUGetResponse, RequestID: msg.PDU.RequestID, Variables: reply}
		out := &Message{Version: msg.Version, Community: msg.Community, PDU: resp}
		data, err := out.Encode()
		if err != nil {
			return
		}
		a.conn.WriteToUDP(data, remote)
	}
}

func newTestClient(t *testing.T, addr string, port int) *Client {
	t.Helper()
	client := NewClient(
		WithTarget(addr),
		WithPort(port),
		WithVersion(Version2c),
		WithCommunity("public"),
		WithTimeout(2*time.Second),
		WithAutoReconnect(false),
	)
	return client
}

func TestClientGet(t *testing.T) {
	sysDescr := MustParseOID("1.3.6.1.2.1.1.1.0")
	agent := newEchoAgent(t)
	defer agent.close()
	go agent.run(t, []Variable{{OID: sysDescr, Type: TypeOctetString, Value: []byte("test agent")}})

	client := newTestClient(t, agent.addr(), agent.port())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	vars, err := client.Get(ctx, sysDescr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(vars) != 1 || string(vars[0].Value.([]byte)) != "test agent" {
		t.Errorf("Get result = %+v, want sysDescr = %q", vars, "test agent")
	}
}

func TestClientGetBulk(t *testing.T) {
	oid := MustParseOID("1.3.6.1.2.1.2.2.1.1.1")
	agent := newEchoAgent(t)
	defer agent.close()
	go agent.run(t, []Variable{{OID: oid, Type: TypeInteger, Value: 1}})

	client := newTestClient(t, agent.addr(), agent.port())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	vars, err := client.GetBulk(ctx, 0, 10, MustParseOID("1.3.6.1.2.1.2.2.1.1"))
	if err != nil {
		t.Fatalf("GetBulk: %v", err)
	}
	if len(vars) != 1 || !vars[0].OID.Equal(oid) {
		t.Errorf("GetBulk result = %+v", vars)
	}
}

func TestClientBulkGet(t *testing.T) {
	sysUpTime := MustParseOID("1.3.6.1.2.1.1.3.0")
	descrCol := MustParseOID("1.3.6.1.2.1.2.2.1.2")
	speedCol := MustParseOID("1.3.6.1.2.1.2.2.1.5")

	descr1 := append(descrCol.Copy(), 1)
	speed1 := append(speedCol.Copy(), 1)
	descr2 := append(descrCol.Copy(), 2)
	speed2 := append(speedCol.Copy(), 2)

	agent := newEchoAgent(t)
	defer agent.close()
	go agent.run(t, []Variable{
		{OID: sysUpTime, Type: TypeTimeTicks, Value: uint32(12345)},
		{OID: descr1, Type: TypeOctetString, Value: []byte("eth0")},
		{OID: speed1, Type: TypeGauge32, Value: uint32(100)},
		{OID: descr2, Type: TypeOctetString, Value: []byte("eth1")},
		{OID: speed2, Type: TypeGauge32, Value: uint32(1000)},
	})

	client := newTestClient(t, agent.addr(), agent.port())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	scalars, listing, err := client.BulkGet(ctx, []OID{sysUpTime}, []OID{descrCol, speedCol}, 3)
	if err != nil {
		t.Fatalf("BulkGet: %v", err)
	}

	if len(scalars) != 1 || !scalars[0].OID.Equal(sysUpTime) {
		t.Fatalf("scalars = %+v, want [sysUpTime]", scalars)
	}
	if len(listing) != 3 {
		t.Fatalf("listing len = %d, want 3 (capped at maxListSize)", len(listing))
	}
	if !listing[0].OID.Equal(descr1) || !listing[1].OID.Equal(speed1) || !listing[2].OID.Equal(descr2) {
		t.Errorf("listing = %+v, want [descr1, speed1, descr2]", listing)
	}
}

func TestClientSet(t *testing.T) {
	sysContact := MustParseOID("1.3.6.1.2.1.1.4.0")
	agent := newEchoAgent(t)
	defer agent.close()
	go agent.run(t, []Variable{{OID: sysContact, Type: TypeOctetString, Value: []byte("ops@example.com")}})

	client := newTestClient(t, agent.addr(), agent.port())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	vars, err := client.Set(ctx, Variable{OID: sysContact, Type: TypeOctetString, Value: []byte("ops@example.com")})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(vars) != 1 || string(vars[0].Value.([]byte)) != "ops@example.com" {
		t.Errorf("Set result = %+v", vars)
	}
}

// v3Agent simulates an authoritative SNMP engine for USM discovery and
// AuthPriv request/response exchanges, using the same credential-derivation
// and plugin machinery the client itself uses.
type v3Agent struct {
	conn     *net.UDPConn
	opts     *ClientOptions
	engineID []byte
	boots    int32
	engTime  int32
	reply    []Variable
}

func newV3Agent(t *testing.T, opts *ClientOptions, reply []Variable) *v3Agent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return &v3Agent{
		conn:     conn,
		opts:     opts,
		engineID: []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x11, 0x22, 0x33, 0x44},
		boots:    1,
		engTime:  100,
		reply:    reply,
	}
}

func (a *v3Agent) addr() string { return a.conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().String() }
func (a *v3Agent) port() int    { return a.conn.LocalAddr().(*net.UDPAddr).Port }
func (a *v3Agent) close()       { a.conn.Close() }

func (a *v3Agent) run(t *testing.T) {
	t.Helper()
	buf := make([]byte, 65535)
	for {
		n, remote, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		decoded, err := decodeMessageV3(buf[:n])
		if err != nil {
			return
		}

		if decoded.MsgFlags&msgFlagAuth == 0 && decoded.MsgFlags&msgFlagPriv == 0 {
			// Discovery probe: reply with an unauthenticated Report carrying
			// this engine's identity and clock.
			_, _, probePDU, err := decodeScopedPDUFields(decoded.ScopedPDU)
			if err != nil {
				return
			}
			reportPDU := &PDU{Type: PDUReport, RequestID: probePDU.RequestID}
			data, err := buildOutgoingV3Message(a.opts, decoded.MsgID, reportPDU, a.engineID, a.boots, a.engTime, nil, true)
			if err != nil {
				return
			}
			a.conn.WriteToUDP(data, remote)
			continue
		}

		creds, err := credentialsFromOptions(a.opts, a.engineID)
		if err != nil {
			return
		}
		_, reqPDU, err := verifyAndDecode(decoded, a.opts.AuthProtocol, a.opts.PrivProtocol, creds, nil)
		if err != nil {
			return
		}

		respPDU := &PDU{Type: PDUGetResponse, RequestID: reqPDU.RequestID, Variables: a.reply}
		data, err := buildOutgoingV3Message(a.opts, decoded.MsgID, respPDU, a.engineID, a.boots, a.engTime, creds, false)
		if err != nil {
			return
		}
		a.conn.WriteToUDP(data, remote)
	}
}

func TestClientV3AuthPrivGet(t *testing.T) {
	sysDescr := MustParseOID("1.3.6.1.2.1.1.1.0")
	agent := newV3Agent(t, ninjaOptions(), []Variable{{OID: sysDescr, Type: TypeOctetString, Value: []byte("v3 agent")}})
	defer agent.close()
	go agent.run(t)

	client := NewClient(
		WithTarget(agent.addr()),
		WithPort(agent.port()),
		WithVersion(Version3),
		WithSecurityLevel(AuthPriv),
		WithSecurityName("ninja"),
		WithAuth(MD5, "theauthpass"),
		WithPrivacy(DES, "privpass"),
		WithTimeout(2*time.Second),
		WithAutoReconnect(false),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(context.Background())

	vars, err := client.Get(ctx, sysDescr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(vars) != 1 || string(vars[0].Value.([]byte)) != "v3 agent" {
		t.Errorf("Get result = %+v, want sysDescr = %q", vars, "v3 agent")
	}
}
