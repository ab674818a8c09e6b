/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"slices"

	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"
)

// ListFilter narrows the admin listing. Zero values match everything.
type ListFilter struct {
	Type   models.RequestType
	Status models.RequestStatus
}

// ListMine returns the caller's own requests of one type, newest first.
func (s *DeskService) ListMine(ctx context.Context, who models.Identity, reqType models.RequestType) ([]models.Request, error) {
	if who.UserId == "" {
		return nil, fmt.Errorf("%w: caller identity is required", store.ErrValidation)
	}
	if !reqType.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %q", store.ErrValidation, reqType)
	}
	return s.requests.ListRequestsByUser(ctx, who.UserId, reqType)
}

// ListAll is the admin dashboard listing. With no type in the filter, buy
// and sell requests are merged newest first.
func (s *DeskService) ListAll(ctx context.Context, actor models.Identity, filter ListFilter) ([]models.Request, error) {
	if err := s.gate.Authorize(ctx, actor.Email); err != nil {
		return nil, err
	}

	types := []models.RequestType{models.RequestTypeBuy, models.RequestTypeSell}
	if filter.Type != "" {
		if !filter.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown request type %q", store.ErrValidation, filter.Type)
		}
		types = []models.RequestType{filter.Type}
	}

	var all []models.Request
	for _, t := range types {
		reqs, err := s.requests.ListAllRequests(ctx, t)
		if err != nil {
			return nil, err
		}
		all = append(all, reqs...)
	}

	if filter.Status != "" {
		all = slices.DeleteFunc(all, func(r models.Request) bool { return r.Status != filter.Status })
	}

	if len(types) > 1 {
		slices.SortStableFunc(all, func(a, b models.Request) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}

	if all == nil {
		all = []models.Request{}
	}
	return all, nil
}

// Access loads a request for who. The owner sees it as the requester; any
// other caller must be an admin and sees it in the admin view.
func (s *DeskService) Access(ctx context.Context, who models.Identity, requestId string) (*models.Request, bool, error) {
	req, err := s.requests.GetRequest(ctx, requestId)
	if err != nil {
		return nil, false, err
	}

	if who.UserId != "" && req.UserId == who.UserId {
		return req, false, nil
	}

	ok, err := s.gate.IsAdmin(ctx, who.Email)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: request %s belongs to another user", store.ErrUnauthorized, requestId)
	}
	return req, true, nil
}

// GetRequest is Access without the view flag.
func (s *DeskService) GetRequest(ctx context.Context, who models.Identity, requestId string) (*models.Request, error) {
	req, _, err := s.Access(ctx, who, requestId)
	return req, err
}
