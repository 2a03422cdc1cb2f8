package proposal

import (
	"context"

	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// Request is everything a source needs to propose mappings for one column.
type Request struct {
	Column  models.SourceColumn
	Profile models.ColumnProfile
}

// Source proposes canonical field mappings for source columns. It is the
// external boundary of the resolution pipeline: implementations must return
// a typed ProposalResponse or an error, never raw provider output.
//
// A response with an empty ProposedMappings slice is valid and means the
// source found no plausible mapping. Errors are reserved for transport and
// provider failures; malformed provider output is degraded to an empty
// response so one bad column never aborts a batch.
type Source interface {
	Propose(ctx context.Context, req Request) (*models.ProposalResponse, error)
}
