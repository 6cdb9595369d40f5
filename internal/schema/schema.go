// Package schema defines the partition-key data model described in spec §3:
// a named attribute of a fact table with a fixed, write-once datatype.
package schema

import (
	"regexp"
	"time"

	"github.com/accented-ai/partitioncache/internal/errs"
)

// Datatype is one of the fixed partition-key value types (§3).
type Datatype string

const (
	DatatypeInteger   Datatype = "integer"
	DatatypeFloat     Datatype = "float"
	DatatypeText      Datatype = "text"
	DatatypeTimestamp Datatype = "timestamp"
	DatatypeGeometry  Datatype = "geometry"
)

func (d Datatype) Valid() bool {
	switch d {
	case DatatypeInteger, DatatypeFloat, DatatypeText, DatatypeTimestamp, DatatypeGeometry:
		return true
	default:
		return false
	}
}

// SupportsBitsize reports whether the datatype may be stored in a
// fixed-width bitstring/bitmap backend (§4.2: "Fixed-width bitstring:
// integer-only").
func (d Datatype) SupportsBitsize() bool {
	return d == DatatypeInteger
}

// PartitionKeyMeta is the bookkeeping row for a registered partition key
// (the `<prefix>_partition_metadata` table of §4.2).
type PartitionKeyMeta struct {
	Name      string
	Datatype  Datatype
	Bitsize   int
	CreatedAt time.Time
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier refuses any partition-key name or table prefix that is
// not a plain SQL identifier, per §7 "Invalid SQL identifier in table
// prefix / partition key" → KindConfiguration.
func ValidateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return errs.New("schema.ValidateIdentifier", errs.KindConfiguration,
			"invalid SQL identifier: "+name)
	}

	return nil
}

// Status is a cache entry's or query record's lifecycle status (§3).
type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusFailed  Status = "failed"
	StatusLimit   Status = "limit"
)

// IsTombstone reports whether the status suppresses reads and re-evaluation
// (§3 invariant I5).
func (s Status) IsTombstone() bool {
	return s == StatusTimeout || s == StatusFailed || s == StatusLimit
}

// Dominates implements the monotone status transition rule of §4.2's
// concurrency contract: "status monotone non-ok dominates ok".
func (s Status) Dominates(other Status) bool {
	if s == other {
		return false
	}

	if other == StatusOK {
		return s.IsTombstone()
	}

	return false
}
