package core

import (
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Falls back to v4 if v7 cannot read the clock source
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	GeneID     ID
	SourceName ID
	RecordID   ID
	SnapshotID ID
)

// String conversions for domain IDs
func (id GeneID) String() string     { return ID(id).String() }
func (id SourceName) String() string { return ID(id).String() }
func (id RecordID) String() string   { return ID(id).String() }
func (id SnapshotID) String() string { return ID(id).String() }

// NewRecordID creates an evidence record identifier
func NewRecordID() RecordID { return RecordID(NewID()) }

// NewSnapshotID creates a snapshot identifier
func NewSnapshotID() SnapshotID { return SnapshotID(NewID()) }

// ParseGeneID parses a string into GeneID. Gene identifiers arrive already
// normalized (HGNC ids such as "HGNC:1234"), so only blank input is rejected.
func ParseGeneID(s string) (GeneID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("gene_id", "cannot be empty")
	}
	return GeneID(s), nil
}

// ParseSourceName parses a string into SourceName
func ParseSourceName(s string) (SourceName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("source_name", "cannot be empty")
	}
	return SourceName(s), nil
}
