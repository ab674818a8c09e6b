package common

import (
	"context"
	"fmt"
	"slices"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

// ReportFilter selects which requests a console report covers.
type ReportFilter struct {
	UserId      string
	Type        models.RequestType
	PendingOnly bool
}

// LoadRequests gathers requests for console utilities, newest first. It
// reads the store directly and is meant for operators with database access.
func LoadRequests(ctx context.Context, requests store.RequestStore, filter ReportFilter, logger *zap.Logger) ([]models.Request, error) {
	types := []models.RequestType{models.RequestTypeBuy, models.RequestTypeSell}
	if filter.Type != "" {
		if !filter.Type.Valid() {
			return nil, fmt.Errorf("unknown request type %q", filter.Type)
		}
		types = []models.RequestType{filter.Type}
	}

	var all []models.Request
	for _, t := range types {
		var (
			batch []models.Request
			err   error
		)
		if filter.UserId != "" {
			logger.Info("Looking up requests by user", zap.String("user_id", filter.UserId), zap.String("type", string(t)))
			batch, err = requests.ListRequestsByUser(ctx, filter.UserId, t)
		} else {
			batch, err = requests.ListAllRequests(ctx, t)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s requests: %w", t, err)
		}
		all = append(all, batch...)
	}

	if filter.PendingOnly {
		all = slices.DeleteFunc(all, func(r models.Request) bool { return r.Status != models.StatusPending })
	}

	slices.SortStableFunc(all, func(a, b models.Request) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	logger.Info("Retrieved requests", zap.Int("count", len(all)))
	return all, nil
}
