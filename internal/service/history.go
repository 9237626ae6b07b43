package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/models"
)

// HistoryStore is the data-access interface HistoryService depends on.
// It reuses domain.HistoryService since the method sets are identical, avoiding duplication.
type HistoryStore = domain.HistoryService

// Compile-time check: *HistoryService must satisfy domain.HistoryService.
var _ domain.HistoryService = (*HistoryService)(nil)

// HistoryService wraps HistoryStore with context-aware logging.
type HistoryService struct {
	store HistoryStore
	log   *logrus.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(store HistoryStore, log *logrus.Logger) *HistoryService {
	return &HistoryService{store: store, log: log}
}

// GetHistory returns the full change history for a record, oldest first.
func (s *HistoryService) GetHistory(
	ctx context.Context, recordUUID uuid.UUID, limit, offset int,
) ([]models.HistoryEntry, bool, error) {
	defer observeOp("history.get")()

	s.log.WithFields(logrus.Fields{
		"record_uuid": recordUUID,
		"limit":       limit,
		"offset":      offset,
	}).Debug("history.get")

	return s.store.GetHistory(ctx, recordUUID, limit, offset)
}
