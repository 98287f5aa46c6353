package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zapis/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsService) {
	ctx := context.Background()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	return mux, newSheetsService(srv, "ledger_tid", &logger)
}

func testEntry() *models.LedgerEntry {
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	return &models.LedgerEntry{
		Appointment: models.Appointment{
			ID:        "appt-1",
			StartTime: start,
			EndTime:   start.Add(30 * time.Minute),
			Status:    models.StatusConfirmed,
			UpdatedAt: time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		ShopName:    "Barbearia Centro",
		StaffName:   "Ana",
		ServiceName: "Corte",
		ClientName:  "João Silva",
		ClientPhone: "+55 11 99999-0000",
	}
}

func TestRowValues(t *testing.T) {
	values := rowValues(testEntry())

	expected := []interface{}{
		"appt-1", "Barbearia Centro", "Ana", "Corte", "João Silva", "+55 11 99999-0000",
		"2030-03-04 09:00", "2030-03-04 09:30", "confirmed", "2030-03-01 08:00",
	}
	assert.Equal(t, expected, values)
	assert.Len(t, headers, len(values))
}

func TestParseRow(t *testing.T) {
	row, ok := parseRow("Appointments!A10:J10")
	assert.True(t, ok)
	assert.Equal(t, 10, row)

	_, ok = parseRow("garbage")
	assert.False(t, ok)
}

func TestSheetsService_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"appt-1"}, {}, {"appt-2"}},
		})
	})
	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow("appt-1")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, _ = s.getCachedRow("appt-2")
	assert.Equal(t, 4, row)
	_, ok = s.getCachedRow("ID")
	assert.False(t, ok)
}

func TestSheetsService_UpsertAppointment_Append(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A:J:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&appended)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Appointments!A7:J7"},
		})
	})

	require.NoError(t, s.UpsertAppointment(context.Background(), testEntry()))
	require.Len(t, appended.Values, 1)
	assert.Equal(t, "appt-1", appended.Values[0][0])

	row, ok := s.getCachedRow("appt-1")
	assert.True(t, ok)
	assert.Equal(t, 7, row)
}

func TestSheetsService_UpsertAppointment_Update(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow("appt-1", 3)

	called := false
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A3:J3", func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.UpsertAppointment(context.Background(), testEntry()))
	assert.True(t, called)
	assert.Error(t, s.UpsertAppointment(context.Background(), nil))
}

func TestSheetsService_UpdateAppointmentStatus(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"appt-9"}}})
	})

	var written sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!I2:J2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&written)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	ctx := context.Background()
	require.NoError(t, s.UpdateAppointmentStatus(ctx, "appt-9", models.StatusCancelledByShop))
	require.Len(t, written.Values, 1)
	assert.Equal(t, "cancelled_by_shop", written.Values[0][0])

	err := s.UpdateAppointmentStatus(ctx, "unknown", models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	mux, s := setupMockServer(t)

	var headerWrites int
	mux.HandleFunc("/v4/spreadsheets/ledger_tid/values/Appointments!A1:J1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			headerWrites++
			_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
			return
		}
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{})
	})

	require.NoError(t, s.EnsureHeader(context.Background()))
	assert.Equal(t, 1, headerWrites)
}

func TestCacheOperations(t *testing.T) {
	_, s := setupMockServer(t)
	s.setCachedRow("a", 5)
	row, ok := s.getCachedRow("a")
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	s.ClearCache()
	_, ok = s.getCachedRow("a")
	assert.False(t, ok)
}
