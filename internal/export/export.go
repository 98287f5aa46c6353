package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zapis/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Записи"

var headers = []string{"ID", "Салон", "Мастер", "Услуга", "Клиент", "Телефон", "Начало", "Конец", "Статус", "Цена"}

// Exporter пишет записи в XLSX файлы в каталоге экспорта.
type Exporter struct {
	dir    string
	loc    *time.Location
	logger *zerolog.Logger
}

func NewExporter(dir string, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{dir: dir, loc: loc, logger: logger}
}

// Save builds the workbook for entries and stores it under the export directory.
func (e *Exporter) Save(entries []*models.LedgerEntry, from, to time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.Build(entries, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("appointments_%s_to_%s_%s.xlsx",
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		time.Now().Format("150405"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(entries)).Msg("Excel file created")
	return filePath, nil
}

// Build returns the workbook: period title in row 1, headers in row 2, one appointment per row.
func (e *Exporter) Build(entries []*models.LedgerEntry, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		from.In(e.loc).Format("02.01.2006"), to.In(e.loc).Format("02.01.2006")))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	styles, err := statusStyles(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating styles: %w", err)
	}

	for i, entry := range entries {
		row := i + 3
		appt := entry.Appointment
		values := []interface{}{
			appt.ID,
			entry.ShopName,
			entry.StaffName,
			entry.ServiceName,
			entry.ClientName,
			entry.ClientPhone,
			appt.StartTime.In(e.loc).Format("02.01.2006 15:04"),
			appt.EndTime.In(e.loc).Format("02.01.2006 15:04"),
			statusLabel(appt.Status),
			appt.PriceAtBooking,
		}
		first, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, first, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}

		statusCell, _ := excelize.CoordinatesToCellName(9, row)
		_ = f.SetCellStyle(sheetName, statusCell, statusCell, styles[statusGroup(appt.Status)])
	}

	// Настраиваем ширину колонок
	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "F", 20)
	_ = f.SetColWidth(sheetName, "G", "H", 18)
	_ = f.SetColWidth(sheetName, "I", "J", 14)

	return f, nil
}

type styleGroup int

const (
	groupConfirmed styleGroup = iota
	groupPending
	groupClosed
	groupReleased
)

func statusGroup(status models.AppointmentStatus) styleGroup {
	switch status {
	case models.StatusPending:
		return groupPending
	case models.StatusCompleted:
		return groupClosed
	case models.StatusCancelledByClient, models.StatusCancelledByShop, models.StatusNoShow:
		return groupReleased
	default:
		return groupConfirmed
	}
}

func statusStyles(f *excelize.File) (map[styleGroup]int, error) {
	colors := map[styleGroup]string{
		groupConfirmed: "#C6EFCE", // зеленый
		groupPending:   "#FFEB9C", // желтый
		groupClosed:    "#EDEDED",
		groupReleased:  "#FFC7CE", // красный
	}
	styles := make(map[styleGroup]int, len(colors))
	for group, color := range colors {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top"},
		})
		if err != nil {
			return nil, err
		}
		styles[group] = id
	}
	return styles, nil
}

func statusLabel(status models.AppointmentStatus) string {
	switch status {
	case models.StatusPending:
		return "Ожидает"
	case models.StatusConfirmed:
		return "Подтверждена"
	case models.StatusCompleted:
		return "Завершена"
	case models.StatusCancelledByClient:
		return "Отменена клиентом"
	case models.StatusCancelledByShop:
		return "Отменена салоном"
	case models.StatusNoShow:
		return "Неявка"
	default:
		return string(status)
	}
}
