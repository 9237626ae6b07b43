package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/models"
)

// VocabStore is the data-access interface VocabService depends on.
// It reuses domain.VocabService since the method sets are identical, avoiding duplication.
type VocabStore = domain.VocabService

// Compile-time check: *VocabService must satisfy domain.VocabService.
var _ domain.VocabService = (*VocabService)(nil)

// VocabService wraps VocabStore with audit logging for vocabulary changes.
type VocabService struct {
	store       VocabStore
	auditWorker AuditEnqueuer
	log         *logrus.Logger
}

// NewVocabService creates a VocabService.
func NewVocabService(store VocabStore, auditWorker AuditEnqueuer, log *logrus.Logger) *VocabService {
	return &VocabService{store: store, auditWorker: auditWorker, log: log}
}

// CreateValue registers a value in a controlled vocabulary. Re-registering an
// existing value succeeds and returns the existing row.
func (s *VocabService) CreateValue(
	ctx context.Context, kind models.VocabKind, value string,
) (*models.VocabValue, error) {
	v, err := s.store.CreateValue(ctx, kind, value)
	if err != nil {
		return nil, err
	}

	if s.auditWorker != nil {
		s.auditWorker.Enqueue(&AuditJob{
			Action:     "vocab.create",
			EntityKind: "vocab",
			EntityID:   string(kind) + "/" + value,
		})
	}

	return v, nil
}

// ListValues returns all values of a vocabulary, sorted (pass-through).
func (s *VocabService) ListValues(ctx context.Context, kind models.VocabKind) ([]models.VocabValue, error) {
	return s.store.ListValues(ctx, kind)
}
