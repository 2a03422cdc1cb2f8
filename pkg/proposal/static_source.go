package proposal

import (
	"context"
	"sync"

	"github.com/canonform-inc/canonform-engine/pkg/models"
)

// StaticSource returns canned responses keyed by qualified column name.
// Used in tests and offline evaluation runs. Safe for concurrent use.
type StaticSource struct {
	// Responses maps SourceColumn.QualifiedName() to the response to return.
	Responses map[string]*models.ProposalResponse

	// Err, when set, is returned for every column.
	Err error

	mu           sync.Mutex
	proposeCalls int
}

var _ Source = (*StaticSource)(nil)

// Propose implements Source.
func (s *StaticSource) Propose(ctx context.Context, req Request) (*models.ProposalResponse, error) {
	s.mu.Lock()
	s.proposeCalls++
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if resp, ok := s.Responses[req.Column.QualifiedName()]; ok {
		return resp, nil
	}
	return &models.ProposalResponse{ProposedMappings: []models.MappingProposal{}}, nil
}

// ProposeCallCount returns how many times Propose has been called.
func (s *StaticSource) ProposeCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposeCalls
}
