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
	"sort"
)

// TableRow is one row of a pivoted SNMP conceptual table: Index is the OID
// suffix identifying the row (everything past the column sub-identifier),
// and Columns maps a column sub-identifier to the variable found there.
type TableRow struct {
	Index   OID
	Columns map[int]Variable
}

// Table walks each of columnOIDs as an independent subtree and pivots the
// results into rows keyed by the OID suffix past the column
// sub-identifier. columnOIDs are typically a table entry OID with each
// column's sub-identifier appended, e.g. 1.3.6.1.2.1.2.2.1.2 for
// ifDescr.
func (c *Client) Table(ctx context.Context, columnOIDs ...OID) ([]TableRow, error) {
	return c.table(ctx, c.opts.NonRepeaters, c.opts.MaxRepetitions, columnOIDs...)
}

// BulkTable is equivalent to Table but walks with an explicit
// max-repetitions value instead of the client's configured default,
// useful when a caller wants a single large page size for a known-small
// table.
func (c *Client) BulkTable(ctx context.Context, maxRepetitions int, columnOIDs ...OID) ([]TableRow, error) {
	return c.table(ctx, c.opts.NonRepeaters, maxRepetitions, columnOIDs...)
}

func (c *Client) table(ctx context.Context, nonRepeaters, maxRepetitions int, columnOIDs ...OID) ([]TableRow, error) {
	rows := make(map[string]*TableRow)
	var order []string

	for _, col := range columnOIDs {
		if len(col) == 0 {
			continue
		}
		colID := col[len(col)-1]

		err := c.walkFunc(ctx, nonRepeaters, maxRepetitions, col, func(v Variable) error {
			if len(v.OID) <= len(col) {
				return nil
			}
			index := v.OID[len(col):]
			key := index.String()

			row, ok := rows[key]
			if !ok {
				row = &TableRow{Index: index.Copy(), Columns: make(map[int]Variable)}
				rows[key] = row
				order = append(order, key)
			}
			row.Columns[colID] = v
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(order)
	result := make([]TableRow, 0, len(order))
	for _, key := range order {
		result = append(result, *rows[key])
	}
	return result, nil
}
