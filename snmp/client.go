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
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is an SNMP client.
type Client struct {
	opts    *ClientOptions
	conn    net.Conn
	state   atomic.Int32
	mu      sync.RWMutex
	wg      sync.WaitGroup
	done    chan struct{}
	metrics *Metrics
	logger  *slog.Logger

	// Request ID management
	requestID     int32
	requestIDLock sync.Mutex

	// Pending requests
	pending     map[int32]chan *PDU
	pendingLock sync.RWMutex

	// SNMPv3 USM state, valid only when opts.Version == Version3.
	usmEngine *engineState
	v3MsgID   int32
}

// NewClient creates a new SNMP client.
func NewClient(opts ...Option) *Client {
	options := NewClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		opts:      options,
		done:      make(chan struct{}),
		metrics:   NewMetrics(),
		logger:    logger,
		pending:   make(map[int32]chan *PDU),
		requestID: rand.Int31(),
		v3MsgID:   rand.Int31(),
	}

	if options.Version == Version3 {
		c.usmEngine = &engineState{}
	}

	return c
}

// Connect establishes a connection to the SNMP agent.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if c.opts.Target == "" {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("snmp: no target configured")
	}

	c.metrics.ConnectionAttempts.Add(1)

	// Build address
	addr := fmt.Sprintf("%s:%d", c.opts.Target, c.opts.Port)

	// Connect with timeout
	dialer := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("snmp: connection failed: %w", err)
	}

	c.conn = conn
	c.state.Store(int32(StateConnected))
	c.metrics.ActiveConnections.Add(1)

	// Reset channels
	c.done = make(chan struct{})

	// Start response reader
	c.wg.Add(1)
	go c.readLoop()

	// Call OnConnect callback
	if c.opts.OnConnect != nil {
		go c.opts.OnConnect(c)
	}

	c.logger.Info("connected to SNMP agent",
		"target", addr,
		"version", c.opts.Version)

	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) {
		return ErrNotConnected
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.ActiveConnections.Add(-1)

	close(c.done)
	c.wg.Wait()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	// Fail pending requests
	c.failPending(ErrClientClosed)

	c.logger.Info("disconnected from SNMP agent")
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		// Set read deadline
		c.conn.SetReadDeadline(time.Now().Add(c.opts.Timeout * 2))

		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				c.handleConnectionLost(err)
				return
			}
		}

		// Decode message
		pdu, err := c.decodeIncoming(buf[:n])
		if err != nil {
			c.logger.Warn("failed to decode response", "error", err)
			c.metrics.Errors.Add(1)
			continue
		}

		c.metrics.ResponsesReceived.Add(1)
		c.metrics.VarbindsReceived.Add(int64(len(pdu.Variables)))

		// Find pending request
		c.pendingLock.RLock()
		ch, ok := c.pending[pdu.RequestID]
		c.pendingLock.RUnlock()

		if ok {
			select {
			case ch <- pdu:
			default:
			}
		}
	}
}

// decodeIncoming decodes a raw datagram into a PDU, branching to the v3
// USM authentication/decryption pipeline when the client is configured
// for SNMPv3.
func (c *Client) decodeIncoming(data []byte) (*PDU, error) {
	if c.opts.Version != Version3 {
		msg, err := DecodeMessage(data)
		if err != nil {
			return nil, err
		}
		return msg.PDU, nil
	}

	decoded, err := decodeMessageV3(data)
	if err != nil {
		return nil, err
	}

	// A Report PDU answering engine discovery carries the authoritative
	// engine's identity and clock and is never itself authenticated.
	if decoded.MsgFlags&msgFlagAuth == 0 && decoded.MsgFlags&msgFlagPriv == 0 {
		_, _, pdu, err := decodeScopedPDUFields(decoded.ScopedPDU)
		if err != nil {
			return nil, err
		}
		if len(decoded.SecurityParams.EngineID) > 0 {
			c.usmEngine.update(decoded.SecurityParams.EngineID, decoded.SecurityParams.EngineBoots, decoded.SecurityParams.EngineTime)
		}
		return pdu, nil
	}

	creds, err := credentialsFromOptions(c.opts, decoded.SecurityParams.EngineID)
	if err != nil {
		return nil, err
	}

	_, pdu, err := verifyAndDecode(decoded, c.opts.AuthProtocol, c.opts.PrivProtocol, creds, c.usmEngine)
	if err != nil {
		return nil, err
	}

	c.usmEngine.update(decoded.SecurityParams.EngineID, decoded.SecurityParams.EngineBoots, decoded.SecurityParams.EngineTime)
	return pdu, nil
}

func (c *Client) handleConnectionLost(err error) {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return
	}

	c.metrics.ActiveConnections.Add(-1)
	close(c.done)

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("connection lost", "error", err)

	if c.opts.OnConnectionLost != nil {
		go c.opts.OnConnectionLost(c, err)
	}

	c.failPending(err)

	if c.opts.AutoReconnect {
		go c.reconnect()
	}
}

func (c *Client) failPending(err error) {
	c.pendingLock.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingLock.Unlock()
}

func (c *Client) reconnect() {
	backoff := c.opts.ConnectRetryInterval
	retries := 0

	for {
		if c.opts.OnReconnecting != nil {
			c.opts.OnReconnecting(c, c.opts)
		}

		c.metrics.ReconnectAttempts.Add(1)

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		c.logger.Warn("reconnection failed", "error", err, "retry_in", backoff)

		retries++
		if c.opts.MaxRetries > 0 && retries >= c.opts.MaxRetries {
			c.logger.Error("max reconnection attempts reached")
			return
		}

		time.Sleep(backoff)

		// Exponential backoff with jitter
		backoff = time.Duration(float64(backoff) * (1.5 + rand.Float64()*0.5))
		if backoff > c.opts.MaxReconnectInterval {
			backoff = c.opts.MaxReconnectInterval
		}
	}
}

func (c *Client) nextRequestID() int32 {
	c.requestIDLock.Lock()
	defer c.requestIDLock.Unlock()

	c.requestID++
	if c.requestID <= 0 {
		c.requestID = 1
	}
	return c.requestID
}

func (c *Client) nextMsgID() int32 {
	c.requestIDLock.Lock()
	defer c.requestIDLock.Unlock()

	c.v3MsgID++
	if c.v3MsgID <= 0 {
		c.v3MsgID = 1
	}
	return c.v3MsgID
}

// discoverEngineIfNeeded performs the blank-GetRequest/Report handshake
// that learns the authoritative engine's ID, boot count, and clock, the
// prerequisite for every authenticated or encrypted v3 exchange.
func (c *Client) discoverEngineIfNeeded(ctx context.Context) error {
	if id, _, _ := c.usmEngine.snapshot(); len(id) > 0 {
		return nil
	}

	probe := NewGetRequest(c.nextRequestID())
	data, err := buildOutgoingV3Message(c.opts, c.nextMsgID(), probe, nil, 0, 0, nil, true)
	if err != nil {
		return err
	}

	respCh := make(chan *PDU, 1)
	c.pendingLock.Lock()
	c.pending[probe.RequestID] = respCh
	c.pendingLock.Unlock()
	defer func() {
		c.pendingLock.Lock()
		delete(c.pending, probe.RequestID)
		c.pendingLock.Unlock()
	}()

	c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("engine discovery write failed: %w", err)
	}

	select {
	case _, ok := <-respCh:
		if !ok {
			return ErrClientClosed
		}
	case <-time.After(c.opts.Timeout):
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	if id, _, _ := c.usmEngine.snapshot(); len(id) == 0 {
		return NewSecurityError(ErrUnknownEngineID, "", "agent did not report an engine ID during discovery")
	}
	return nil
}

func (c *Client) sendRequestV3(ctx context.Context, pdu *PDU) (*PDU, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	if err := c.discoverEngineIfNeeded(ctx); err != nil {
		return nil, err
	}

	resp, err := c.sendRequestV3Once(ctx, pdu)
	if err != nil && (IsNotInTimeWindow(err) || IsUnknownEngineID(err)) {
		// Resync and retry exactly once, per RFC 3414 §3.2's guidance that
		// a time-window failure should trigger rediscovery.
		c.usmEngine.update(nil, 0, 0)
		if derr := c.discoverEngineIfNeeded(ctx); derr != nil {
			return nil, derr
		}
		return c.sendRequestV3Once(ctx, pdu)
	}
	return resp, err
}

func (c *Client) sendRequestV3Once(ctx context.Context, pdu *PDU) (*PDU, error) {
	engineID, boots, engineTime := c.usmEngine.snapshot()

	creds, err := credentialsFromOptions(c.opts, engineID)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *PDU, 1)
	c.pendingLock.Lock()
	c.pending[pdu.RequestID] = respCh
	c.pendingLock.Unlock()
	defer func() {
		c.pendingLock.Lock()
		delete(c.pending, pdu.RequestID)
		c.pendingLock.Unlock()
	}()

	var lastErr error
	for retry := 0; retry <= c.opts.Retries; retry++ {
		if retry > 0 {
			c.metrics.Retries.Add(1)
		}

		data, err := buildOutgoingV3Message(c.opts, c.nextMsgID(), pdu, engineID, boots, engineTime, creds, false)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
		if _, err := c.conn.Write(data); err != nil {
			lastErr = fmt.Errorf("write failed: %w", err)
			continue
		}

		c.metrics.RequestsSent.Add(1)
		c.metrics.VarbindsSent.Add(int64(len(pdu.Variables)))

		select {
		case resp, ok := <-respCh:
			if !ok {
				return nil, ErrClientClosed
			}
			c.metrics.RequestLatency.ObserveDuration(time.Since(start))

			if resp.Type == PDUReport {
				return nil, NewSecurityError(reportSentinel(resp.Variables), string(engineID), "agent returned a report PDU")
			}

			if resp.ErrorStatus != NoError {
				var oid OID
				if resp.ErrorIndex > 0 && resp.ErrorIndex <= len(pdu.Variables) {
					oid = pdu.Variables[resp.ErrorIndex-1].OID
				}
				return resp, NewSNMPError(resp.ErrorStatus, resp.ErrorIndex, oid)
			}
			return resp, nil

		case <-time.After(c.opts.Timeout):
			lastErr = ErrTimeout
			c.metrics.Timeouts.Add(1)

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) sendRequest(ctx context.Context, pdu *PDU) (*PDU, error) {
	if c.opts.Version == Version3 {
		return c.sendRequestV3(ctx, pdu)
	}

	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	// Create response channel
	respCh := make(chan *PDU, 1)
	c.pendingLock.Lock()
	c.pending[pdu.RequestID] = respCh
	c.pendingLock.Unlock()

	defer func() {
		c.pendingLock.Lock()
		delete(c.pending, pdu.RequestID)
		c.pendingLock.Unlock()
	}()

	// Encode message
	msg := &Message{
		Version:   c.opts.Version,
		Community: c.opts.Community,
		PDU:       pdu,
	}

	data, err := msg.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	// Send with retries
	var lastErr error
	for retry := 0; retry <= c.opts.Retries; retry++ {
		if retry > 0 {
			c.metrics.Retries.Add(1)
			c.logger.Debug("retrying request", "retry", retry, "request_id", pdu.RequestID)
		}

		start := time.Now()

		// Set write deadline
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
		_, err := c.conn.Write(data)
		if err != nil {
			lastErr = fmt.Errorf("write failed: %w", err)
			continue
		}

		c.metrics.RequestsSent.Add(1)
		c.metrics.VarbindsSent.Add(int64(len(pdu.Variables)))

		// Wait for response
		select {
		case resp, ok := <-respCh:
			if !ok {
				return nil, ErrClientClosed
			}
			c.metrics.RequestLatency.ObserveDuration(time.Since(start))

			// Check for errors
			if resp.ErrorStatus != NoError {
				var oid OID
				if resp.ErrorIndex > 0 && resp.ErrorIndex <= len(pdu.Variables) {
					oid = pdu.Variables[resp.ErrorIndex-1].OID
				}
				return resp, NewSNMPError(resp.ErrorStatus, resp.ErrorIndex, oid)
			}

			return resp, nil

		case <-time.After(c.opts.Timeout):
			lastErr = ErrTimeout
			c.metrics.Timeouts.Add(1)

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// Get performs an SNMP GET request.
func (c *Client) Get(ctx context.Context, oids ...OID) ([]Variable, error) {
	c.metrics.GetRequests.Add(1)

	pdu := NewGetRequest(c.nextRequestID(), oids...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.Add(1)
		return nil, err
	}

	return resp.Variables, nil
}

// GetNext performs an SNMP GET-NEXT request.
func (c *Client) GetNext(ctx context.Context, oids ...OID) ([]Variable, error) {
	c.metrics.GetNextRequests.Add(1)

	pdu := NewGetNextRequest(c.nextRequestID(), oids...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.Add(1)
		return nil, err
	}

	return resp.Variables, nil
}

// GetBulk performs an SNMP GET-BULK request (v2c/v3 only).
func (c *Client) GetBulk(ctx context.Context, nonRepeaters, maxRepetitions int, oids ...OID) ([]Variable, error) {
	if c.opts.Version == Version1 {
		return nil, fmt.Errorf("snmp: GetBulk not supported in SNMPv1")
	}

	c.metrics.GetBulkRequests.Add(1)

	pdu := NewGetBulkRequest(c.nextRequestID(), nonRepeaters, maxRepetitions, oids...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.Add(1)
		return nil, err
	}

	return resp.Variables, nil
}

// BulkGet performs a single GET-BULK request covering both a set of
// scalar OIDs and a set of repeating (table-column) OIDs, splitting the
// response at the non-repeater boundary: scalarOIDs come back in the
// same order as scalars, and repeatingOIDs' values are pivoted and
// capped at maxListSize entries total, filtered to drop anything past
// EndOfMibView or outside the requested subtree.
func (c *Client) BulkGet(ctx context.Context, scalarOIDs, repeatingOIDs []OID, maxListSize int) (scalars []Variable, listing []Variable, err error) {
	if c.opts.Version == Version1 {
		return nil, nil, fmt.Errorf("snmp: BulkGet not supported in SNMPv1")
	}

	nonRepeaters := len(scalarOIDs)
	var maxRepetitions int
	if len(repeatingOIDs) > 0 && maxListSize > 0 {
		maxRepetitions = (maxListSize + len(repeatingOIDs) - 1) / len(repeatingOIDs)
	}

	oids := make([]OID, 0, len(scalarOIDs)+len(repeatingOIDs))
	oids = append(oids, scalarOIDs...)
	oids = append(oids, repeatingOIDs...)

	vars, err := c.GetBulk(ctx, nonRepeaters, maxRepetitions, oids...)
	if err != nil {
		return nil, nil, err
	}
	if len(vars) < nonRepeaters {
		return nil, nil, fmt.Errorf("snmp: bulkget response carried fewer varbinds than non-repeaters")
	}

	scalars = vars[:nonRepeaters]
	repeated := vars[nonRepeaters:]

	if len(repeatingOIDs) == 0 {
		return scalars, nil, nil
	}

	listing = make([]Variable, 0, len(repeated))
collect:
	for rep := 0; rep < maxRepetitions; rep++ {
		for col, root := range repeatingOIDs {
			idx := rep*len(repeatingOIDs) + col
			if idx >= len(repeated) {
				break collect
			}
			v := repeated[idx]
			if v.Type == TypeEndOfMibView || v.Type == TypeNoSuchObject || v.Type == TypeNoSuchInstance {
				continue
			}
			if !v.OID.HasPrefix(root) {
				continue
			}
			listing = append(listing, v)
			if len(listing) >= maxListSize {
				break collect
			}
		}
	}

	return scalars, listing, nil
}

// Set performs an SNMP SET request.
func (c *Client) Set(ctx context.Context, variables ...Variable) ([]Variable, error) {
	c.metrics.SetRequests.Add(1)

	pdu := NewSetRequest(c.nextRequestID(), variables...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.Add(1)
		return nil, err
	}

	return resp.Variables, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Options returns the client options.
func (c *Client) Options() *ClientOptions {
	return c.opts
}
