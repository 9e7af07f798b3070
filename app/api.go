package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib"
	"github.com/fiffu/marketoracle/lib/dispatch"
	"github.com/fiffu/marketoracle/lib/limiter"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/lib/schedule"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, orch *dispatch.Orchestrator, cal *schedule.Calendar, lim *limiter.Limiter) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, orch, cal, lim)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, orch *dispatch.Orchestrator, cal *schedule.Calendar, lim *limiter.Limiter) http.Handler {
	ctrl := &controller{log, svc, orch, cal, lim}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/subscribe", func(r chi.Router) {
		r.Post("/", ctrl.onSubscribe)
		r.Get("/", ctrl.onLookup)
	})
	r.Get("/verify/{nonce}", ctrl.onVerify)
	r.Get("/next-dispatch", ctrl.onNextDispatch)

	r.Route("/admin", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("marketoracle", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Get("/subscribers", ctrl.onListSubscribers)
		r.Get("/limits", ctrl.onLimits)
		r.Post("/dispatch", ctrl.onDispatch)
	})

	return r
}

type controller struct {
	log  *zap.Logger
	svc  *lib.Service
	orch *dispatch.Orchestrator
	cal  *schedule.Calendar
	lim  *limiter.Limiter
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "error", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

// fail maps the error taxonomy onto HTTP statuses. Anything unrecognised is
// an upstream collaborator failure.
func (ctrl *controller) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		ctrl.reject(w, http.StatusBadRequest, err)
	case errors.Is(err, models.ErrQuotaExceeded):
		ctrl.resolve(w, http.StatusForbidden, map[string]string{"message": "quota_limit_reached"})
	case errors.Is(err, models.ErrLimitReached):
		ctrl.reject(w, http.StatusTooManyRequests, err)
	case errors.Is(err, models.ErrNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
	case errors.Is(err, models.ErrDispatchBusy):
		ctrl.reject(w, http.StatusConflict, err)
	default:
		ctrl.log.Sugar().Errorw("Upstream failure", "err", err)
		ctrl.reject(w, http.StatusBadGateway, err)
	}
}

type subscribeRequest struct {
	Email      string   `json:"email"`
	Stocks     []string `json:"stocks"`
	Schedule   string   `json:"schedule"`
	TriggerNow bool     `json:"trigger_now"`
	Action     string   `json:"action"`
}

func (ctrl *controller) onSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	if req.Action == "unsubscribe" {
		out, err := ctrl.svc.Unsubscribe(ctx, req.Email)
		if err != nil {
			ctrl.fail(w, err)
			return
		}
		ctrl.resolve(w, http.StatusOK, out)
		return
	}

	sched, err := models.ParseSchedule(req.Schedule)
	if err != nil {
		ctrl.fail(w, err)
		return
	}

	out, err := ctrl.svc.Subscribe(ctx, req.Email, req.Stocks, sched)
	if err != nil {
		ctrl.fail(w, err)
		return
	}

	if req.TriggerNow && out.Status == models.StatusActive {
		trig := dispatch.Trigger{Kind: dispatch.TriggerManual, Email: req.Email}
		if _, err := ctrl.orch.Handle(ctx, trig); errors.Is(err, models.ErrLimitReached) {
			out.Message += " (Manual dispatch limit reached for today.)"
		} else if err != nil {
			ctrl.log.Sugar().Errorw("Immediate dispatch failed", "email", req.Email, "err", err)
			out.Message += " (Immediate dispatch failed; your scheduled reports are unaffected.)"
		} else {
			out.Message += " (Report dispatched.)"
		}
	}

	ctrl.resolve(w, http.StatusOK, out)
}

func (ctrl *controller) onLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.URL.Query().Get("email")
	if email == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}

	sub, err := ctrl.svc.Lookup(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		// Never-subscribed is a normal negative result.
		ctrl.resolve(w, http.StatusOK, SubscriberView{IsExisting: false})
		return
	} else if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, SubscriberView{}.From(sub))
}

func (ctrl *controller) onVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nonce := chi.URLParam(r, "nonce")

	ok, err := ctrl.svc.Confirm(ctx, nonce)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"verified": ok})
}

func (ctrl *controller) onNextDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.URL.Query().Get("email")
	if email == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}

	sub, err := ctrl.svc.Lookup(ctx, email)
	if err != nil {
		ctrl.fail(w, err)
		return
	}

	switch {
	case sub.Status == models.StatusPending:
		ctrl.resolve(w, http.StatusOK, NextDispatchView{State: "pending", Message: "Waiting for verification..."})
	case sub.Status == models.StatusInactive || sub.Stocks == "":
		ctrl.resolve(w, http.StatusOK, NextDispatchView{State: "inactive", Message: "Subscription inactive (Add stocks to start)"})
	default:
		// Recomputed on every request: "now" moves and a cached answer would
		// mislead about whether a dispatch is imminent.
		next := ctrl.cal.NextDispatch(time.Now(), sub.Schedule)
		ctrl.resolve(w, http.StatusOK, NextDispatchView{}.From(next))
	}
}

func (ctrl *controller) onListSubscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subs, err := ctrl.svc.ListAll(ctx)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, FromMany[models.Subscriber, SubscriberView](subs))
}

func (ctrl *controller) onLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	remaining, err := ctrl.lim.Remaining(ctx)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]int{"manual_triggers_remaining": remaining})
}

type dispatchRequest struct {
	Action string `json:"action"` // broadcast | manual | test
	Shift  string `json:"shift"`
	Email  string `json:"email"`
}

func (ctrl *controller) onDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	var trig dispatch.Trigger
	switch req.Action {
	case "broadcast":
		shift, err := models.ParseShift(req.Shift)
		if err != nil {
			ctrl.fail(w, err)
			return
		}
		trig = dispatch.Trigger{Kind: dispatch.TriggerScheduled, Shift: shift}
	case "manual":
		trig = dispatch.Trigger{Kind: dispatch.TriggerManual, Email: req.Email}
	case "test":
		trig = dispatch.Trigger{Kind: dispatch.TriggerTest, Email: req.Email}
	default:
		ctrl.reject(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", req.Action))
		return
	}

	res, err := ctrl.orch.Handle(ctx, trig)
	if err != nil {
		ctrl.fail(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, res)
}
