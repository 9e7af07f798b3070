package app

import (
	"time"

	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/lib/schedule"
)

type SubscriberView struct {
	IsExisting bool            `json:"is_existing"`
	Email      string          `json:"email,omitempty"`
	Stocks     []string        `json:"stocks"`
	Schedule   models.Schedule `json:"schedule,omitempty"`
	Status     models.Status   `json:"status,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

func (view SubscriberView) From(entity *models.Subscriber) SubscriberView {
	return SubscriberView{
		IsExisting: true,
		Email:      entity.Email,
		Stocks:     entity.StockList(),
		Schedule:   entity.Schedule,
		Status:     entity.Status,
		UpdatedAt:  isoformat(entity.UpdatedAt),
	}
}

type NextDispatchView struct {
	State        string `json:"state"`
	Message      string `json:"message"`
	HomeTime     string `json:"home_time,omitempty"`
	DisplayTime  string `json:"display_time,omitempty"`
	HomeLabel    string `json:"home_label,omitempty"`
	DisplayLabel string `json:"display_label,omitempty"`
}

func (view NextDispatchView) From(next schedule.NextDispatch) NextDispatchView {
	return NextDispatchView{
		State:        "active",
		Message:      next.String(),
		HomeTime:     isoformat(next.Home),
		DisplayTime:  isoformat(next.Display),
		HomeLabel:    next.HomeLabel,
		DisplayLabel: next.DisplayLabel,
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[*T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i := range elems {
		var u U
		out[i] = u.From(&elems[i])
	}
	return out
}

func isoformat(t time.Time) string {
	return t.Format(time.RFC3339)
}
