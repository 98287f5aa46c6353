package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"
)

const dateLayout = "2006-01-02"

// params reads one request parameter by name; HTTP query and gRPC Struct both provide it.
type params func(key string) string

type slotView struct {
	Start    string   `json:"start"`
	StaffIDs []string `json:"staff_ids"`
}

func slotViews(slots []models.Slot, loc *time.Location) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotView{
			Start:    slot.Start.In(loc).Format("15:04"),
			StaffIDs: slot.StaffIDs,
		})
	}
	return out
}

type slotsQuery struct {
	ShopID    string
	ServiceID string
	Staff     models.StaffSelector
	Date      time.Time
}

func parseSlotsQuery(shopID string, p params, loc *time.Location) (slotsQuery, error) {
	q := slotsQuery{
		ShopID:    strings.TrimSpace(shopID),
		ServiceID: strings.TrimSpace(p("service")),
		Staff:     models.ParseStaffSelector(p("staff")),
	}
	if q.ShopID == "" {
		return q, fmt.Errorf("%w: shop is required", domain.ErrInvalidRequest)
	}
	if q.ServiceID == "" {
		return q, fmt.Errorf("%w: service is required", domain.ErrInvalidRequest)
	}

	date, err := parseDate(p("date"), loc)
	if err != nil {
		return q, err
	}
	if date.IsZero() {
		return q, fmt.Errorf("%w: date is required", domain.ErrInvalidRequest)
	}
	q.Date = date
	return q, nil
}

// parseDate reads YYYY-MM-DD in loc. An empty value gives the zero time.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	date, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q; expected YYYY-MM-DD", domain.ErrInvalidRequest, raw)
	}
	return date, nil
}

// parseFilter builds a list filter. from and to are inclusive dates.
func parseFilter(p params, loc *time.Location) (models.AppointmentFilter, error) {
	filter := models.AppointmentFilter{
		ShopID:   strings.TrimSpace(p("shop")),
		StaffID:  strings.TrimSpace(p("staff")),
		ClientID: strings.TrimSpace(p("client")),
	}

	for _, raw := range splitCSV(p("status")) {
		st, ok := models.ParseStatus(raw)
		if !ok {
			return filter, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, raw)
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	from, err := parseDate(p("from"), loc)
	if err != nil {
		return filter, err
	}
	to, err := parseDate(p("to"), loc)
	if err != nil {
		return filter, err
	}
	filter.From = from
	if !to.IsZero() {
		filter.To = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return filter, fmt.Errorf("%w: to is before from", domain.ErrInvalidRequest)
	}

	if filter.Limit, err = parseInt(p("limit")); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseInt(p("offset")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid number %q", domain.ErrInvalidRequest, raw)
	}
	return n, nil
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (r transitionRequest) parse() (models.AppointmentStatus, error) {
	st, ok := models.ParseStatus(strings.TrimSpace(r.Status))
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, r.Status)
	}
	return st, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
