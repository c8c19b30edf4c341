package ports

import (
	"io"

	"genescore/domain/core"
	"genescore/domain/evidence"
)

// UploadParser turns an administrator upload into evidence records of one
// hybrid source
type UploadParser interface {
	Parse(filename string, r io.Reader, src core.SourceName) ([]*evidence.Record, error)
}
