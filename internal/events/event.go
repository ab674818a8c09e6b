package events

import (
	"fmt"
	"time"

	"p2p-coin-desk-go/internal/models"
)

const (
	KindCreated  = "request.created"
	KindResolved = "request.resolved"
)

// RequestEvent is the lifecycle message carried over the broker. It holds
// enough of the request for consumers to log or alert without a lookup.
type RequestEvent struct {
	Kind       string               `json:"kind"`
	RequestId  string               `json:"request_id"`
	Type       models.RequestType   `json:"type"`
	UserId     string               `json:"user_id"`
	UserEmail  string               `json:"user_email"`
	CoinSymbol string               `json:"coin_symbol"`
	Amount     string               `json:"amount"`
	TotalPrice string               `json:"total_price"`
	Status     models.RequestStatus `json:"status"`
	Actor      string               `json:"actor,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func newEvent(kind string, req *models.Request, actor string) RequestEvent {
	return RequestEvent{
		Kind:       kind,
		RequestId:  req.Id,
		Type:       req.Type(),
		UserId:     req.UserId,
		UserEmail:  req.UserEmail,
		CoinSymbol: req.CoinSymbol,
		Amount:     req.Amount.String(),
		TotalPrice: req.TotalPrice.String(),
		Status:     req.Status,
		Actor:      actor,
		OccurredAt: time.Now().UTC(),
	}
}

// LogLine renders ev as a single line for the request log.
func (ev RequestEvent) LogLine() string {
	line := fmt.Sprintf("[%s] %s | request_id=%s | type=%s | user=%s | coin=%s | amount=%s | total=%s | status=%s",
		ev.OccurredAt.Format(time.RFC3339), ev.Kind, ev.RequestId, ev.Type, ev.UserEmail,
		ev.CoinSymbol, ev.Amount, ev.TotalPrice, ev.Status)
	if ev.Actor != "" {
		line += " | actor=" + ev.Actor
	}
	return line + "\n"
}
