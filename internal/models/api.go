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

package models

import (
	"io"

	"github.com/shopspring/decimal"
)

// Identity is the already-authenticated caller supplied by the identity provider
type Identity struct {
	UserId string `json:"user_id"`
	Email  string `json:"email"`
}

// ProofFile is an image to be handed to the proof-upload collaborator
type ProofFile struct {
	Name string
	Body io.Reader
}

// SubmitParams carries a user's buy or sell submission before validation
type SubmitParams struct {
	Type          RequestType
	CoinId        string
	Amount        decimal.Decimal
	PaymentMethod string
	PaymentNumber string
	WalletAddress string
	Note          string
	Proof         *ProofFile
}

// ResolveParams carries an admin decision on a pending request
type ResolveParams struct {
	RequestId string
	Decision  RequestStatus
	Proof     *ProofFile
}

// FollowUpSteps selects which post-commit steps of a resolution to re-run
type FollowUpSteps struct {
	Audit  bool `json:"audit"`
	Notify bool `json:"notify"`
}

// ResolutionResult reports the outcome of a resolution. Committed is true once
// the status change is durable; the pending flags name post-commit steps that
// failed and may be retried.
type ResolutionResult struct {
	Success             bool     `json:"success"`
	Committed           bool     `json:"committed"`
	Request             *Request `json:"request,omitempty"`
	AuditPending        bool     `json:"audit_pending"`
	NotificationPending bool     `json:"notification_pending"`
	Error               string   `json:"error,omitempty"`
}

// Degraded reports whether the status committed but a follow-up step failed.
func (r *ResolutionResult) Degraded() bool {
	return r.Committed && (r.AuditPending || r.NotificationPending)
}

// NotificationFeed is the snapshot pushed to a notification subscriber
type NotificationFeed struct {
	Notifications []AppNotification `json:"notifications"`
	Unread        int               `json:"unread"`
}

// SiteSettings are the operator-configured exchange parameters
type SiteSettings struct {
	Currency       string          `json:"currency"`
	PaymentMethods []string        `json:"payment_methods"`
	MinimumBuy     decimal.Decimal `json:"minimum_buy"`
	MinimumSell    decimal.Decimal `json:"minimum_sell"`
	FeePercent     decimal.Decimal `json:"fees"`
}
