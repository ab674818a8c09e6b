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
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RequestType discriminates the two request variants.
type RequestType string

const (
	RequestTypeBuy  RequestType = "buy"
	RequestTypeSell RequestType = "sell"
)

// Valid reports whether t is one of the known request variants.
func (t RequestType) Valid() bool {
	return t == RequestTypeBuy || t == RequestTypeSell
}

// RequestStatus is the lifecycle state of a request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Settlement holds the variant-specific fields of a request. The set of
// implementations is closed: BuySettlement and SellSettlement.
type Settlement interface {
	requestType() RequestType
}

// BuySettlement records the channel and account the user paid from.
type BuySettlement struct {
	PaymentMethod string
	PaymentNumber string
}

func (BuySettlement) requestType() RequestType { return RequestTypeBuy }

// SellSettlement records where the fiat payout should be sent.
type SellSettlement struct {
	WalletAddress string
}

func (SellSettlement) requestType() RequestType { return RequestTypeSell }

// Request is a user-submitted buy or sell request. CoinPriceAtRequest and
// TotalPrice are snapshotted at creation and never recomputed.
type Request struct {
	Id                 string
	UserId             string
	UserEmail          string
	CoinId             string
	CoinSymbol         string
	CoinPriceAtRequest decimal.Decimal
	Amount             decimal.Decimal
	TotalPrice         decimal.Decimal
	UserScreenshotURL  string
	AdminScreenshotURL string
	Status             RequestStatus
	Note               string
	Settlement         Settlement
	CreatedAt          time.Time
}

// Type returns the discriminant derived from the settlement variant.
func (r *Request) Type() RequestType {
	if r.Settlement == nil {
		return ""
	}
	return r.Settlement.requestType()
}

// ShortId is the six-character reference shown to users.
func (r *Request) ShortId() string {
	if len(r.Id) > 6 {
		return r.Id[:6]
	}
	return r.Id
}

// Buy returns the buy settlement fields when r is a buy request.
func (r *Request) Buy() (BuySettlement, bool) {
	b, ok := r.Settlement.(BuySettlement)
	return b, ok
}

// Sell returns the sell settlement fields when r is a sell request.
func (r *Request) Sell() (SellSettlement, bool) {
	s, ok := r.Settlement.(SellSettlement)
	return s, ok
}

type requestJSON struct {
	Id                 string          `json:"id"`
	Type               RequestType     `json:"type"`
	UserId             string          `json:"user_id"`
	UserEmail          string          `json:"user_email"`
	CoinId             string          `json:"coin_id"`
	CoinSymbol         string          `json:"coin_symbol"`
	CoinPriceAtRequest decimal.Decimal `json:"coin_price_at_request"`
	Amount             decimal.Decimal `json:"amount"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	UserScreenshotURL  string          `json:"user_screenshot_url,omitempty"`
	AdminScreenshotURL string          `json:"admin_screenshot_url,omitempty"`
	Status             RequestStatus   `json:"status"`
	Note               string          `json:"note,omitempty"`
	PaymentMethod      string          `json:"payment_method,omitempty"`
	PaymentNumber      string          `json:"payment_number,omitempty"`
	WalletAddress      string          `json:"wallet_address,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
}

// MarshalJSON flattens the settlement variant into the request object with
// an explicit "type" tag.
func (r Request) MarshalJSON() ([]byte, error) {
	out := requestJSON{
		Id:                 r.Id,
		Type:               r.Type(),
		UserId:             r.UserId,
		UserEmail:          r.UserEmail,
		CoinId:             r.CoinId,
		CoinSymbol:         r.CoinSymbol,
		CoinPriceAtRequest: r.CoinPriceAtRequest,
		Amount:             r.Amount,
		TotalPrice:         r.TotalPrice,
		UserScreenshotURL:  r.UserScreenshotURL,
		AdminScreenshotURL: r.AdminScreenshotURL,
		Status:             r.Status,
		Note:               r.Note,
		Timestamp:          r.CreatedAt,
	}
	switch s := r.Settlement.(type) {
	case BuySettlement:
		out.PaymentMethod = s.PaymentMethod
		out.PaymentNumber = s.PaymentNumber
	case SellSettlement:
		out.WalletAddress = s.WalletAddress
	}
	return json.Marshal(out)
}
