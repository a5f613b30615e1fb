package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"jobsched/internal/domain"
	"jobsched/internal/ports"
	"jobsched/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxBody = 1 << 20

type handlers struct {
	sched   *usecase.Scheduler
	mailbox ports.Mailbox
}

type startReq struct {
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
	DelayMs int64           `json:"delay_ms"`
}

type taskReq struct {
	Data    json.RawMessage `json:"data"`
	Queue   string          `json:"queue"`
	DelayMs int64           `json:"delay_ms"`
}

type statsResp struct {
	Job          string `json:"job"`
	JobsPending  int64  `json:"jobs_pending"`
	TasksPending int64  `json:"tasks_pending"`
}

func (h handlers) start(w http.ResponseWriter, r *http.Request) {
	enq, ok := h.job(w, r)
	if !ok {
		return
	}
	var req startReq
	if !decode(w, r, &req) {
		return
	}

	opts := []usecase.AddOption{usecase.WithDelay(time.Duration(req.DelayMs) * time.Millisecond)}
	if req.ID != "" {
		opts = append(opts, usecase.WithJobID(req.ID))
	}
	id, err := enq.Start(r.Context(), payload(req.Data), opts...)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h handlers) task(w http.ResponseWriter, r *http.Request) {
	enq, ok := h.job(w, r)
	if !ok {
		return
	}
	var req taskReq
	if !decode(w, r, &req) {
		return
	}

	err := enq.Task(r.Context(), payload(req.Data), usecase.TaskOptions{Queue: req.Queue},
		usecase.WithDelay(time.Duration(req.DelayMs)*time.Millisecond))
	if err != nil {
		serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h handlers) stats(w http.ResponseWriter, r *http.Request) {
	enq, ok := h.job(w, r)
	if !ok {
		return
	}
	jobs, err := enq.Jobs.Count(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	tasks, err := enq.Tasks.Count(r.Context())
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResp{Job: enq.Job, JobsPending: jobs, TasksPending: tasks})
}

// run reports one job entry: its state, attempts and payload.
func (h handlers) run(w http.ResponseWriter, r *http.Request) {
	enq, ok := h.job(w, r)
	if !ok {
		return
	}
	e, found, err := enq.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !found {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// event wraps the request body as {"data": body} and pushes it where the
// poller of app picks it up. app "*" reaches every application.
func (h handlers) event(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be JSON", http.StatusBadRequest)
		return
	}

	msg, err := json.Marshal(domain.Event{Data: body})
	if err != nil {
		serverError(w, r, err)
		return
	}
	key := usecase.EventKey(chi.URLParam(r, "app"), chi.URLParam(r, "topic"))
	if err := h.mailbox.Prepend(r.Context(), key, msg); err != nil {
		serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h handlers) job(w http.ResponseWriter, r *http.Request) (*usecase.Enqueuer, bool) {
	enq, err := h.sched.Job(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownJob) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return nil, false
		}
		serverError(w, r, err)
		return nil, false
	}
	return enq, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// payload keeps an absent data field absent instead of storing "null".
func payload(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
