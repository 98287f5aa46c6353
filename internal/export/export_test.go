package export

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zapis/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func entries() []*models.LedgerEntry {
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	mk := func(id string, offset time.Duration, status models.AppointmentStatus) *models.LedgerEntry {
		return &models.LedgerEntry{
			Appointment: models.Appointment{
				ID:             id,
				StartTime:      start.Add(offset),
				EndTime:        start.Add(offset + 30*time.Minute),
				Status:         status,
				PriceAtBooking: 1500,
			},
			ShopName:    "Barbearia Centro",
			StaffName:   "Ana",
			ServiceName: "Corte",
			ClientName:  "Maria",
			ClientPhone: "+351 910 000 000",
		}
	}
	return []*models.LedgerEntry{
		mk("a1", 0, models.StatusConfirmed),
		mk("a2", time.Hour, models.StatusPending),
		mk("a3", 2*time.Hour, models.StatusNoShow),
	}
}

func TestBuild(t *testing.T) {
	logger := zerolog.New(io.Discard)
	e := NewExporter(t.TempDir(), time.UTC, &logger)

	from := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	f, err := e.Build(entries(), from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	title, _ := f.GetCellValue(sheetName, "A1")
	assert.Equal(t, "Период: 01.03.2030 - 08.03.2030", title)

	header, _ := f.GetCellValue(sheetName, "C2")
	assert.Equal(t, "Мастер", header)

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{
		"a1", "Barbearia Centro", "Ana", "Corte", "Maria", "+351 910 000 000",
		"04.03.2030 09:00", "04.03.2030 09:30", "Подтверждена", "1500",
	}, rows[2])
	assert.Equal(t, "Неявка", rows[4][8])

	confirmed, _ := f.GetCellStyle(sheetName, "I3")
	pending, _ := f.GetCellStyle(sheetName, "I4")
	released, _ := f.GetCellStyle(sheetName, "I5")
	assert.NotEqual(t, confirmed, pending)
	assert.NotEqual(t, pending, released)
}

func TestBuild_Empty(t *testing.T) {
	logger := zerolog.New(io.Discard)
	e := NewExporter(t.TempDir(), nil, &logger)

	f, err := e.Build(nil, time.Now(), time.Now())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	logger := zerolog.New(io.Discard)
	e := NewExporter(dir, time.UTC, &logger)

	from := time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)
	path, err := e.Save(entries(), from, from.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	id, _ := f.GetCellValue(sheetName, "A3")
	assert.Equal(t, "a1", id)
}

func TestStatusLabel(t *testing.T) {
	for _, status := range models.AllStatuses {
		assert.NotEqual(t, string(status), statusLabel(status), status)
	}
	assert.Equal(t, "weird", statusLabel("weird"))
}
