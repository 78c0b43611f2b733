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

// tableAgent answers walks over two column subtrees (ifDescr, ifSpeed) for
// a 3-row interface table, responding to whichever column OID a GetBulk
// request is rooted at.
type tableAgent struct {
	conn *net.UDPConn
}

func newTableAgent(t *testing.T) *tableAgent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return &tableAgent{conn: conn}
}

func (a *tableAgent) addr() string { return a.conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().String() }
func (a *tableAgent) port() int    { return a.conn.LocalAddr().(*net.UDPAddr).Port }
func (a *tableAgent) close()       { a.conn.Close() }

func (a *tableAgent) run(t *testing.T, descrCol, speedCol OID) {
	t.Helper()

	descrs := []string{"eth0", "eth1", "eth2"}
	speeds := []int{100, 1000, 10000}

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
		if len(msg.PDU.Variables) == 0 {
			continue
		}
		requested := msg.PDU.Variables[0].OID

		var col OID
		var row int
		switch {
		case requested.Equal(descrCol):
			col, row = descrCol, 1
		case requested.Equal(speedCol):
			col, row = speedCol, 1
		case requested.HasPrefix(descrCol) && len(requested) > len(descrCol):
			col = descrCol
			row = int(requested[len(descrCol)]) + 1
		case requested.HasPrefix(speedCol) && len(requested) > len(speedCol):
			col = speedCol
			row = int(requested[len(speedCol)]) + 1
		}

		resp := &PDU{Type: PDUGetResponse, RequestID: msg.PDU.RequestID}
		if row >= 1 && row <= len(descrs) {
			idx := row - 1
			if col.Equal(descrCol) {
				oid := append(col.Copy(), row)
				resp.Variables = []Variable{{OID: oid, Type: TypeOctetString, Value: []byte(descrs[idx])}}
			} else {
				oid := append(col.Copy(), row)
				resp.Variables = []Variable{{OID: oid, Type: TypeInteger, Value: speeds[idx]}}
			}
		} else {
			resp.Variables = []Variable{{OID: requested, Type: TypeEndOfMibView}}
		}

		reply := &Message{Version: msg.Version, Community: msg.Community, PDU: resp}
		data, err := reply.Encode()
		if err != nil {
			return
		}
		a.conn.WriteToUDP(data, remote)
	}
}

func TestTablePivot(t *testing.T) {
	descrCol := MustParseOID("1.3.6.1.2.1.2.2.1.2")
	speedCol := MustParseOID("1.3.6.1.2.1.2.2.1.5")

	agent := newTableAgent(t)
	defer agent.close()
	go agent.run(t, descrCol, speedCol)

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

	rows, err := client.Table(ctx, descrCol, speedCol)
	if err != nil {
		t.Fatalf("Table: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("Table returned %d rows, want 3", len(rows))
	}

	wantDescr := map[string]string{"1": "eth0", "2": "eth1", "3": "eth2"}
	wantSpeed := map[string]int{"1": 100, "2": 1000, "3": 10000}

	for _, row := range rows {
		idx := row.Index.String()
		descrVal, ok := row.Columns[descrCol[len(descrCol)-1]]
		if !ok {
			t.Errorf("row %s missing descr column", idx)
			continue
		}
		if string(descrVal.Value.([]byte)) != wantDescr[idx] {
			t.Errorf("row %s descr = %v, want %s", idx, descrVal.Value, wantDescr[idx])
		}

		speedVal, ok := row.Columns[speedCol[len(speedCol)-1]]
		if !ok {
			t.Errorf("row %s missing speed column", idx)
			continue
		}
		got, _ := speedVal.AsInt()
		if int(got) != wantSpeed[idx] {
			t.Errorf("row %s speed = %v, want %d", idx, speedVal.Value, wantSpeed[idx])
		}
	}
}
