package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// IDSet is a set of identifiers stored as a Postgres bigint array.
// An empty set means "no restriction on this axis".
type IDSet []int64

// Contains reports whether id is in the set.
func (s IDSet) Contains(id int64) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner.
func (s *IDSet) Scan(src interface{}) error {
	arr := pq.Int64Array{}
	if err := arr.Scan(src); err != nil {
		return err
	}
	*s = IDSet(arr)
	return nil
}

// Value implements driver.Valuer.
func (s IDSet) Value() (driver.Value, error) {
	return pq.Int64Array(s).Value()
}

// Metadata is a free-form JSONB blob carried on ledger rows. It holds the
// correlation context (order number, wallet transaction id, operator).
type Metadata map[string]interface{}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
