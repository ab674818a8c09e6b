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

package workflow

import (
	"context"
	"errors"
	"fmt"

	"p2p-coin-desk-go/internal/audit"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"go.uber.org/zap"
)

// Collaborators consumed by the workflow.
type (
	Authorizer interface {
		Authorize(ctx context.Context, email string) error
	}

	Uploader interface {
		Upload(ctx context.Context, file *models.ProofFile) (string, error)
	}

	AuditAppender interface {
		Append(ctx context.Context, actorEmail, actionType, detail string) (*models.AuditEntry, error)
	}

	Notifier interface {
		Notify(ctx context.Context, userId, title, message, link string) (*models.AppNotification, error)
	}

	ResolutionPublisher interface {
		PublishResolved(ctx context.Context, req *models.Request, actorEmail string) error
	}
)

const notificationLink = "/dashboard"

// transitions lists the allowed edges; terminal states have none.
var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusPending: {models.StatusApproved, models.StatusRejected},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to models.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Workflow struct {
	requests store.RequestStore
	gate     Authorizer
	uploader Uploader
	audit    AuditAppender
	notifier Notifier
	events   ResolutionPublisher
}

type Option func(*Workflow)

func WithEvents(p ResolutionPublisher) Option {
	return func(w *Workflow) {
		w.events = p
	}
}

func New(requests store.RequestStore, gate Authorizer, uploader Uploader, auditLog AuditAppender, notifier Notifier, opts ...Option) *Workflow {
	w := &Workflow{
		requests: requests,
		gate:     gate,
		uploader: uploader,
		audit:    auditLog,
		notifier: notifier,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Resolve applies an admin decision to a pending request.
//
// Nothing is written when authorization, lookup, the transition check or the
// proof upload fails. Once the status update commits it is kept; failures of
// the audit or notification step are reported through the result flags and
// an error wrapping store.ErrDegraded, and can be re-run with RetryFollowUp.
func (w *Workflow) Resolve(ctx context.Context, actor models.Identity, params models.ResolveParams) (*models.ResolutionResult, error) {
	if !params.Decision.IsTerminal() {
		return nil, fmt.Errorf("%w: decision must be approved or rejected, got %q", store.ErrValidation, params.Decision)
	}
	if params.RequestId == "" {
		return nil, fmt.Errorf("%w: request id is required", store.ErrValidation)
	}

	if err := w.gate.Authorize(ctx, actor.Email); err != nil {
		return nil, err
	}

	current, err := w.requests.GetRequest(ctx, params.RequestId)
	if err != nil {
		return nil, err
	}

	if !CanTransition(current.Status, params.Decision) {
		return nil, fmt.Errorf("%w: request %s is %s", store.ErrInvalidTransition, current.Id, current.Status)
	}

	// only approvals carry a payout proof
	var proofURL string
	if params.Decision == models.StatusApproved && params.Proof != nil {
		proofURL, err = w.uploader.Upload(ctx, params.Proof)
		if err != nil {
			zap.L().Error("Payout proof upload failed",
				zap.String("request_id", current.Id),
				zap.Error(err))
			return nil, fmt.Errorf("%w: payout proof upload: %w", store.ErrUpstream, err)
		}
	}

	updated, err := w.requests.UpdateRequestStatus(ctx, store.UpdateStatusParams{
		RequestId:          current.Id,
		Status:             params.Decision,
		AdminScreenshotURL: proofURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status update: %w", store.ErrUpstream, err)
	}

	zap.L().Info("Request resolved",
		zap.String("request_id", updated.Id),
		zap.String("type", string(updated.Type())),
		zap.String("status", string(updated.Status)),
		zap.String("actor", actor.Email))

	result := &models.ResolutionResult{
		Success:   true,
		Committed: true,
		Request:   updated,
	}
	followErr := w.followUp(ctx, actor.Email, updated, models.FollowUpSteps{Audit: true, Notify: true}, result)

	if w.events != nil {
		if err := w.events.PublishResolved(ctx, updated, actor.Email); err != nil {
			zap.L().Warn("Failed to publish resolution event", zap.String("request_id", updated.Id), zap.Error(err))
		}
	}

	return result, followErr
}

// RetryFollowUp re-runs the selected post-commit steps for a resolved request.
func (w *Workflow) RetryFollowUp(ctx context.Context, actor models.Identity, requestId string, steps models.FollowUpSteps) (*models.ResolutionResult, error) {
	if !steps.Audit && !steps.Notify {
		return nil, fmt.Errorf("%w: no follow-up step selected", store.ErrValidation)
	}

	if err := w.gate.Authorize(ctx, actor.Email); err != nil {
		return nil, err
	}

	req, err := w.requests.GetRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if !req.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: request %s is still %s", store.ErrInvalidTransition, req.Id, req.Status)
	}

	result := &models.ResolutionResult{Success: true, Committed: true, Request: req}
	err = w.followUp(ctx, actor.Email, req, steps, result)
	return result, err
}

func (w *Workflow) followUp(ctx context.Context, actorEmail string, req *models.Request, steps models.FollowUpSteps, result *models.ResolutionResult) error {
	var errs []error

	if steps.Audit {
		action := audit.ResolutionAction(req.Type(), req.Status)
		detail := fmt.Sprintf("Updated tx %s to %s", req.Id, req.Status)
		if _, err := w.audit.Append(ctx, actorEmail, action, detail); err != nil {
			zap.L().Warn("Audit step failed after commit", zap.String("request_id", req.Id), zap.Error(err))
			result.AuditPending = true
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}

	if steps.Notify {
		title, message := NotificationText(req)
		if _, err := w.notifier.Notify(ctx, req.UserId, title, message, notificationLink); err != nil {
			zap.L().Warn("Notification step failed after commit", zap.String("request_id", req.Id), zap.Error(err))
			result.NotificationPending = true
			errs = append(errs, fmt.Errorf("notification: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	err := fmt.Errorf("%w: %w", store.ErrDegraded, errors.Join(errs...))
	result.Error = err.Error()
	return err
}

// NotificationText renders the user-facing notice for a resolved request.
func NotificationText(req *models.Request) (title, message string) {
	status := "বাতিল"
	if req.Status == models.StatusApproved {
		status = "অনুমোদিত"
	}
	kind := "বিক্রয়"
	if req.Type() == models.RequestTypeBuy {
		kind = "ক্রয়"
	}

	title = "রিকুয়েস্ট " + status
	message = fmt.Sprintf("আপনার %s রিকুয়েস্ট #%s %s করা হয়েছে।", kind, req.ShortId(), status)
	return title, message
}
