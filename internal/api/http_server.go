package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"zapis/internal/config"
	"zapis/internal/domain"
	"zapis/internal/metrics"
	"zapis/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxExportRows = 5000

// Appointments is the booking side the transports call.
type Appointments interface {
	domain.BookingService
	LedgerEntry(ctx context.Context, appt *models.Appointment) *models.LedgerEntry
}

type Exporter interface {
	Save(entries []*models.LedgerEntry, from, to time.Time) (string, error)
}

// Services bundles what both transports serve.
type Services struct {
	Slots    domain.AvailabilityService
	Booking  Appointments
	Exporter Exporter
	Location *time.Location
	// Health is optional; a non-nil error makes /healthz answer 503.
	Health func(ctx context.Context) error
}

func (s Services) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// HTTPServer exposes the JSON API alongside the gRPC service.
type HTTPServer struct {
	cfg    *config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, auth: NewHTTPAuth(cfg), log: zerolog.Nop()}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /v1/shops/{shop}/slots", srv.handleSlots)
	mux.HandleFunc("POST /v1/appointments", srv.handleCommit)
	mux.HandleFunc("GET /v1/appointments", srv.handleList)
	mux.HandleFunc("GET /v1/appointments/export", srv.handleExport)
	mux.HandleFunc("GET /v1/appointments/{id}", srv.handleGet)
	mux.HandleFunc("POST /v1/appointments/{id}/status", srv.handleTransition)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	loc := s.svc.location()
	q, err := parseSlotsQuery(r.PathValue("shop"), r.URL.Query().Get, loc)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	slots, err := s.svc.Slots.GetAvailableSlots(r.Context(), q.ShopID, q.Staff, q.ServiceID, q.Date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"shop_id":    q.ShopID,
		"service_id": q.ServiceID,
		"date":       q.Date.Format(dateLayout),
		"slots":      slotViews(slots, loc),
	})
}

// bookingBody accepts either start_time (RFC 3339) or date plus start ("HH:mm" shop time).
type bookingBody struct {
	models.BookingRequest
	Date  string `json:"date,omitempty"`
	Start string `json:"start,omitempty"`
}

func (b bookingBody) request(loc *time.Location) (models.BookingRequest, error) {
	req := b.BookingRequest
	if req.StartTime.IsZero() && b.Date != "" && b.Start != "" {
		start, err := time.ParseInLocation(dateLayout+" 15:04", b.Date+" "+b.Start, loc)
		if err != nil {
			return req, fmt.Errorf("%w: invalid date/start", domain.ErrInvalidRequest)
		}
		req.StartTime = start
	}
	return req, nil
}

func (s *HTTPServer) handleCommit(w http.ResponseWriter, r *http.Request) {
	var body bookingBody
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := body.request(s.svc.location())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	appt, err := s.svc.Booking.CommitBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	next, err := body.parse()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	appt, err := s.svc.Booking.TransitionStatus(r.Context(), r.PathValue("id"), next)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	appt, err := s.svc.Booking.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query().Get, s.svc.location())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	appts, err := s.svc.Booking.ListAppointments(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if appts == nil {
		appts = []*models.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	loc := s.svc.location()
	filter, err := parseFilter(r.URL.Query().Get, loc)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if filter.Limit == 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}

	appts, err := s.svc.Booking.ListAppointments(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	entries := make([]*models.LedgerEntry, 0, len(appts))
	for _, appt := range appts {
		entries = append(entries, s.svc.Booking.LedgerEntry(r.Context(), appt))
	}

	from, to := exportPeriod(filter, appts, loc)
	path, err := s.svc.Exporter.Save(entries, from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// exportPeriod is the title period: the filter bounds or the span of the rows.
func exportPeriod(filter models.AppointmentFilter, appts []*models.Appointment, loc *time.Location) (time.Time, time.Time) {
	from, to := filter.From, filter.To
	if !to.IsZero() {
		to = to.AddDate(0, 0, -1)
	}
	if from.IsZero() {
		if len(appts) > 0 {
			from = appts[0].StartTime
		} else {
			from = time.Now().In(loc)
		}
	}
	if to.IsZero() {
		to = from
		for _, appt := range appts {
			if appt.StartTime.After(to) {
				to = appt.StartTime
			}
		}
	}
	return from, to
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
