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
)

// walkStep fetches the next batch of variables for a walk, using GetNext
// for v1 (one varbind per response) and GetBulk otherwise.
func (c *Client) walkStep(ctx context.Context, nonRepeaters, maxRepetitions int, currentOID OID) ([]Variable, error) {
	if c.opts.Version == Version1 {
		return c.GetNext(ctx, currentOID)
	}
	return c.GetBulk(ctx, nonRepeaters, maxRepetitions, currentOID)
}

// Walk performs an SNMP walk starting from the given OID, collecting every
// variable under rootOID into a slice.
func (c *Client) Walk(ctx context.Context, rootOID OID) ([]Variable, error) {
	c.metrics.WalkRequests.Add(1)

	var results []Variable
	err := c.walkFunc(ctx, c.opts.NonRepeaters, c.opts.MaxRepetitions, rootOID, func(v Variable) error {
		results = append(results, v)
		return nil
	})
	return results, err
}

// WalkFunc walks the MIB tree and calls fn for each variable.
func (c *Client) WalkFunc(ctx context.Context, rootOID OID, fn func(Variable) error) error {
	c.metrics.WalkRequests.Add(1)
	return c.walkFunc(ctx, c.opts.NonRepeaters, c.opts.MaxRepetitions, rootOID, fn)
}

// walkFunc is the shared walk loop backing Walk, WalkFunc, and Table. It
// detects an agent that keeps returning the same OID (a faulty
// lexicographic-next implementation) rather than looping forever.
func (c *Client) walkFunc(ctx context.Context, nonRepeaters, maxRepetitions int, rootOID OID, fn func(Variable) error) error {
	currentOID := rootOID.Copy()
	var lastOID OID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		vars, err := c.walkStep(ctx, nonRepeaters, maxRepetitions, currentOID)
		if err != nil {
			if IsEndOfMIB(err) || IsNoSuchObject(err) || IsNoSuchInstance(err) {
				return nil
			}
			c.metrics.Errors.Add(1)
			return err
		}

		if len(vars) == 0 {
			return nil
		}

		for _, v := range vars {
			if !v.OID.HasPrefix(rootOID) {
				return nil
			}

			if v.Type == TypeEndOfMibView || v.Type == TypeNoSuchObject || v.Type == TypeNoSuchInstance {
				return nil
			}

			if lastOID != nil && v.OID.Equal(lastOID) {
				return ErrFaultySNMPImplementation
			}

			if err := fn(v); err != nil {
				return err
			}

			lastOID = v.OID
			currentOID = v.OID
		}

		if c.opts.Version == Version1 {
			currentOID = vars[0].OID
		} else {
			currentOID = vars[len(vars)-1].OID
		}
	}
}

// BulkWalk is equivalent to Walk but walks with an explicit
// max-repetitions value instead of the client's configured default,
// mirroring BulkTable. Not available for SNMPv1, which has no GET-BULK.
func (c *Client) BulkWalk(ctx context.Context, maxRepetitions int, rootOID OID) ([]Variable, error) {
	var results []Variable
	err := c.BulkWalkFunc(ctx, maxRepetitions, rootOID, func(v Variable) error {
		results = append(results, v)
		return nil
	})
	return results, err
}

// BulkWalkFunc is the GET-BULK-only counterpart to WalkFunc: it rejects
// SNMPv1 instead of silently falling back to GET-NEXT, since the caller
// explicitly asked for bulk semantics.
func (c *Client) BulkWalkFunc(ctx context.Context, maxRepetitions int, rootOID OID, fn func(Variable) error) error {
	if c.opts.Version == Version1 {
		return fmt.Errorf("snmp: BulkWalk not supported in SNMPv1")
	}
	c.metrics.WalkRequests.Add(1)
	return c.walkFunc(ctx, c.opts.NonRepeaters, maxRepetitions, rootOID, fn)
}

// WalkChan walks the MIB tree starting from rootOID, streaming each
// variable over the returned channel. The channel is closed when the walk
// completes, the context is cancelled, or an error occurs; the final error
// (nil on a clean finish) is sent to errCh before it closes.
func (c *Client) WalkChan(ctx context.Context, rootOID OID) (<-chan Variable, <-chan error) {
	varCh := make(chan Variable)
	errCh := make(chan error, 1)

	go func() {
		defer close(varCh)
		defer close(errCh)

		err := c.WalkFunc(ctx, rootOID, func(v Variable) error {
			select {
			case varCh <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errCh <- err
	}()

	return varCh, errCh
}
