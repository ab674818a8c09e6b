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

package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"p2p-coin-desk-go/internal/api"
	"p2p-coin-desk-go/internal/models"
	"p2p-coin-desk-go/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type messageView struct {
	models.ChatMessage
	IsMine bool `json:"is_mine"`
}

type sendMessageBody struct {
	Text string `json:"text"`
}

type coinBody struct {
	Name      string          `json:"coin_name"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Available *bool           `json:"available"`
}

func (s *Server) health(c echo.Context) error {
	if err := s.deps.Desk.HealthCheck(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Code: "unavailable", Message: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) settings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Desk.Settings())
}

func (s *Server) listCoins(c echo.Context) error {
	coins, err := s.deps.Desk.ListCoins(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, coins)
}

// submit handles the multipart buy and sell forms. The payment proof is the
// "screenshot" file field and is required for buys only.
func (s *Server) submit(reqType models.RequestType) echo.HandlerFunc {
	return func(c echo.Context) error {
		amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("amount")))
		if err != nil {
			return fmt.Errorf("%w: amount is not a number", store.ErrValidation)
		}

		params := models.SubmitParams{
			Type:          reqType,
			CoinId:        c.FormValue("coin_id"),
			Amount:        amount,
			PaymentMethod: c.FormValue("payment_method"),
			PaymentNumber: c.FormValue("payment_number"),
			WalletAddress: c.FormValue("wallet_address"),
			Note:          c.FormValue("note"),
		}

		proof, closeProof, err := formProof(c, "screenshot")
		if err != nil {
			return err
		}
		defer closeProof()
		params.Proof = proof

		req, err := s.deps.Desk.Submit(c.Request().Context(), caller(c), params)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, req)
	}
}

func (s *Server) listMine(c echo.Context) error {
	ctx := c.Request().Context()
	who := caller(c)

	types := []models.RequestType{models.RequestTypeBuy, models.RequestTypeSell}
	if t := c.QueryParam("type"); t != "" {
		types = []models.RequestType{models.RequestType(t)}
	}

	var out []models.Request
	for _, t := range types {
		reqs, err := s.deps.Desk.ListMine(ctx, who, t)
		if err != nil {
			return err
		}
		out = append(out, reqs...)
	}
	if len(types) > 1 {
		slices.SortStableFunc(out, func(a, b models.Request) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	if out == nil {
		out = []models.Request{}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getRequest(c echo.Context) error {
	req, err := s.deps.Desk.GetRequest(c.Request().Context(), caller(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, req)
}

func (s *Server) listMessages(c echo.Context) error {
	ctx := c.Request().Context()
	who := caller(c)
	req, adminView, err := s.deps.Desk.Access(ctx, who, c.Param("id"))
	if err != nil {
		return err
	}

	msgs, err := s.deps.Chat.History(ctx, req.Id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageViews(msgs, models.ChatViewer{UserId: who.UserId, AdminView: adminView}))
}

func (s *Server) sendMessage(c echo.Context) error {
	var body sendMessageBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: malformed message body", store.ErrValidation)
	}

	ctx := c.Request().Context()
	who := caller(c)
	req, adminView, err := s.deps.Desk.Access(ctx, who, c.Param("id"))
	if err != nil {
		return err
	}

	msg, err := s.deps.Chat.Send(ctx, req.Id, who, adminView, body.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, messageView{ChatMessage: *msg, IsMine: true})
}

func (s *Server) notifications(c echo.Context) error {
	feed, err := s.deps.Notify.Feed(c.Request().Context(), caller(c).UserId)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, feed)
}

func (s *Server) markRead(c echo.Context) error {
	if err := s.deps.Notify.MarkRead(c.Request().Context(), caller(c).UserId, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listAll(c echo.Context) error {
	filter := api.ListFilter{
		Type:   models.RequestType(c.QueryParam("type")),
		Status: models.RequestStatus(c.QueryParam("status")),
	}
	reqs, err := s.deps.Desk.ListAll(c.Request().Context(), caller(c), filter)
	if err != nil {
		return err
	}
	if reqs == nil {
		reqs = []models.Request{}
	}
	return c.JSON(http.StatusOK, reqs)
}

// resolve applies an admin decision. A committed resolution whose audit or
// notification step failed answers 202 with the pending flags set.
func (s *Server) resolve(c echo.Context) error {
	params := models.ResolveParams{
		RequestId: c.Param("id"),
		Decision:  models.RequestStatus(c.FormValue("decision")),
	}

	proof, closeProof, err := formProof(c, "proof")
	if err != nil {
		return err
	}
	defer closeProof()
	params.Proof = proof

	result, err := s.deps.Workflow.Resolve(c.Request().Context(), caller(c), params)
	return resolutionResponse(c, result, err)
}

func (s *Server) followUp(c echo.Context) error {
	var steps models.FollowUpSteps
	if err := c.Bind(&steps); err != nil {
		return fmt.Errorf("%w: malformed follow-up body", store.ErrValidation)
	}

	result, err := s.deps.Workflow.RetryFollowUp(c.Request().Context(), caller(c), c.Param("id"), steps)
	return resolutionResponse(c, result, err)
}

func resolutionResponse(c echo.Context, result *models.ResolutionResult, err error) error {
	if err != nil {
		if errors.Is(err, store.ErrDegraded) && result != nil {
			result.Error = err.Error()
			return c.JSON(http.StatusAccepted, result)
		}
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) recentAudit(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: limit must be an integer", store.ErrValidation)
		}
		limit = n
	}

	entries, err := s.deps.Audit.Recent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) upsertCoin(c echo.Context) error {
	var body coinBody
	if err := c.Bind(&body); err != nil {
		return fmt.Errorf("%w: malformed coin body", store.ErrValidation)
	}

	coin := models.Coin{
		Id:        c.Param("id"),
		Name:      body.Name,
		Symbol:    body.Symbol,
		Price:     body.Price,
		Available: true,
	}
	if coin.Symbol == "" {
		coin.Symbol = c.Param("id")
	}
	if body.Available != nil {
		coin.Available = *body.Available
	}

	saved, err := s.deps.Desk.UpsertCoin(c.Request().Context(), caller(c), coin)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

// formProof returns the uploaded file under field, or nil when the form
// carries none.
func formProof(c echo.Context, field string) (*models.ProofFile, func(), error) {
	noop := func() {}

	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		return nil, noop, fmt.Errorf("%w: reading %s: %v", store.ErrValidation, field, err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("%w: opening %s: %v", store.ErrValidation, field, err)
	}
	return &models.ProofFile{Name: fh.Filename, Body: f}, func() { _ = f.Close() }, nil
}

func messageViews(msgs []models.ChatMessage, viewer models.ChatViewer) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{ChatMessage: m, IsMine: m.IsMine(viewer)})
	}
	return out
}
