package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oapi-codegen/nullable"
	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/adapters/memory/viewstore"
	"github.com/transitclock/refresher/internal/app/refresh"
	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/platform/timecodec"
)

// ViewSource returns the last rendered view of a subscriber.
type ViewSource interface {
	Get(id domain.SubscriberID) (viewstore.View, bool)
}

// PendingWakeups reports the pending wake-up of a subscriber.
type PendingWakeups interface {
	Pending(id domain.SubscriberID) (time.Time, bool)
}

// Server implements the control API handlers.
type Server struct {
	Refresh    *refresh.Service
	Dispatcher *refresh.Dispatcher
	Views      ViewSource
	// Wakeups is optional.
	Wakeups PendingWakeups

	log zerolog.Logger
}

func NewServer(svc *refresh.Service, d *refresh.Dispatcher, views ViewSource, log zerolog.Logger) *Server {
	return &Server{
		Refresh:    svc,
		Dispatcher: d,
		Views:      views,
		log:        log.With().Str("component", "httpapi").Logger(),
	}
}

type ConfigRequest struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ConfigResponse never carries the password.
type ConfigResponse struct {
	URL      string `json:"url"`
	Username string `json:"username"`
}

type ReloadResponse struct {
	Queued bool `json:"queued"`
}

type SubscribersResponse struct {
	Subscribers []int64 `json:"subscribers"`
}

type Action struct {
	Method string `json:"method"`
	Href   string `json:"href"`
}

type ViewActions struct {
	Reload    Action `json:"reload"`
	Configure Action `json:"configure"`
}

type TripJSON struct {
	Range        string                 `json:"range"`
	DelaySeconds nullable.Nullable[int] `json:"delaySeconds"`
}

type RowJSON struct {
	LegID          int        `json:"legId"`
	LineShortName  string     `json:"lineShortName"`
	Direction      string     `json:"direction"`
	DeparturesText string     `json:"departuresText"`
	Trips          []TripJSON `json:"trips"`
}

type ViewResponse struct {
	SubscriberID int64                     `json:"subscriberId"`
	RenderedAt   string                    `json:"renderedAt"`
	NextWakeup   nullable.Nullable[string] `json:"nextWakeup"`
	Rows         []RowJSON                 `json:"rows"`
	Actions      ViewActions               `json:"actions"`
}

func (s *Server) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Refresh.Subscribers(r.Context())
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	out := SubscribersResponse{Subscribers: make([]int64, 0, len(ids))}
	for _, id := range ids {
		out.Subscribers = append(out.Subscribers, int64(id))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) PutConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := SubscriberFromContext(r.Context())

	var body ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body", map[string]any{"body": err.Error()})
		return
	}
	err := s.Refresh.Configure(r.Context(), id, refresh.ConfigInput{
		URL:      body.URL,
		Username: body.Username,
		Password: body.Password,
	})
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	s.Dispatcher.Trigger(id)

	creds, err := s.Refresh.Config(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{URL: creds.BaseURL, Username: creds.Username})
}

func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := SubscriberFromContext(r.Context())
	creds, err := s.Refresh.Config(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{URL: creds.BaseURL, Username: creds.Username})
}

// Reload queues a cycle. A full queue is not an error: a later trigger or
// wake-up re-evaluates the subscriber.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	id, _ := SubscriberFromContext(r.Context())
	writeJSON(w, http.StatusAccepted, ReloadResponse{Queued: s.Dispatcher.Trigger(id)})
}

func (s *Server) GetView(w http.ResponseWriter, r *http.Request) {
	id, _ := SubscriberFromContext(r.Context())
	v, ok := s.Views.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_RENDERED", "Nothing has been rendered for this subscriber yet.", nil)
		return
	}

	out := ViewResponse{
		SubscriberID: int64(id),
		RenderedAt:   timecodec.Format(v.RenderedAt),
		Rows:         make([]RowJSON, 0, len(v.Rows)),
		NextWakeup:   nullable.NewNullNullable[string](),
		Actions:      actionsFor(id),
	}
	if s.Wakeups != nil {
		if at, ok := s.Wakeups.Pending(id); ok {
			out.NextWakeup = nullable.NewNullableWithValue(timecodec.Format(at))
		}
	}
	for _, row := range v.Rows {
		out.Rows = append(out.Rows, rowFromDomain(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) DeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	id, _ := SubscriberFromContext(r.Context())
	if err := s.Dispatcher.Teardown(r.Context(), id); err != nil {
		writeAppError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actionsFor(id domain.SubscriberID) ViewActions {
	base := fmt.Sprintf("/subscribers/%d", int64(id))
	return ViewActions{
		Reload:    Action{Method: http.MethodPost, Href: base + "/reload"},
		Configure: Action{Method: http.MethodPut, Href: base + "/config"},
	}
}

func rowFromDomain(row domain.Row) RowJSON {
	out := RowJSON{
		LegID:          int(row.LegID),
		LineShortName:  row.LineShortName,
		Direction:      row.Direction,
		DeparturesText: row.DeparturesText,
		Trips:          make([]TripJSON, 0, len(row.Trips)),
	}
	for _, t := range row.Trips {
		tj := TripJSON{Range: t.Range}
		if t.DelaySeconds != nil {
			tj.DelaySeconds = nullable.NewNullableWithValue(*t.DelaySeconds)
		} else {
			tj.DelaySeconds = nullable.NewNullNullable[int]()
		}
		out.Trips = append(out.Trips, tj)
	}
	return out
}
