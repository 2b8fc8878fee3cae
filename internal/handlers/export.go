package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/gonglijing/clinisense/internal/dashboard"
	"github.com/gonglijing/clinisense/internal/pipeline"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// column 导出列：表头、列宽、取值
type column[T any] struct {
	header string
	width  float64
	value  func(T) interface{}
}

var sensorColumns = []column[dashboard.SensorRow]{
	{"Matricule", 16, func(r dashboard.SensorRow) interface{} { return r.Matricule }},
	{"Famille", 18, func(r dashboard.SensorRow) interface{} { return r.Family }},
	{"Type", 16, func(r dashboard.SensorRow) interface{} { return r.Type }},
	{"Clinique", 22, func(r dashboard.SensorRow) interface{} { return r.Clinic }},
	{"Statut", 12, func(r dashboard.SensorRow) interface{} { return string(r.Status) }},
	{"Critique", 10, func(r dashboard.SensorRow) interface{} { return yesNo(r.Critical) }},
	{"Valeur", 12, func(r dashboard.SensorRow) interface{} { return floatCell(r.Value) }},
	{"Unité", 10, func(r dashboard.SensorRow) interface{} { return r.UniteLabel }},
	{"Seuil min", 12, func(r dashboard.SensorRow) interface{} { return floatCell(r.SeuilMin) }},
	{"Seuil max", 12, func(r dashboard.SensorRow) interface{} { return floatCell(r.SeuilMax) }},
	{"Dernière mesure", 22, func(r dashboard.SensorRow) interface{} { return r.MeasuredAt.Raw }},
	{"Alertes actives", 14, func(r dashboard.SensorRow) interface{} { return r.Alerts.Active }},
	{"Adresse IP", 16, func(r dashboard.SensorRow) interface{} { return r.AdresseIP }},
	{"Adresse MAC", 20, func(r dashboard.SensorRow) interface{} { return r.AdresseMAC }},
}

var alertColumns = []column[dashboard.AlertRow]{
	{"ID", 8, func(r dashboard.AlertRow) interface{} { return r.ID.String() }},
	{"Capteur", 16, func(r dashboard.AlertRow) interface{} { return r.Matricule }},
	{"Clinique", 22, func(r dashboard.AlertRow) interface{} { return r.Clinic }},
	{"Type", 16, func(r dashboard.AlertRow) interface{} { return r.Type }},
	{"Catégorie", 16, func(r dashboard.AlertRow) interface{} { return string(r.Category) }},
	{"État", 12, func(r dashboard.AlertRow) interface{} { return string(r.State) }},
	{"Valeur", 12, func(r dashboard.AlertRow) interface{} { return r.Valeur }},
	{"Critique", 10, func(r dashboard.AlertRow) interface{} { return yesNo(r.Critique) }},
	{"Créée le", 22, func(r dashboard.AlertRow) interface{} { return r.DateCreation.Raw }},
	{"Résolue le", 22, func(r dashboard.AlertRow) interface{} { return r.DateResolution.Raw }},
}

func yesNo(b bool) string {
	if b {
		return "oui"
	}
	return "non"
}

func floatCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// exportQuery 导出使用与列表相同的搜索、过滤、排序，但不分组不分页
func exportQuery[T any](r *http.Request, fields pipeline.Fields[T], total int) pipeline.Query {
	q := parseListQuery(r, fields)
	q.GroupBy = ""
	q.PageIndex = 0
	q.PageSize = total
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	return q
}

// ExportSensors GET /sensors/export.xlsx
func (h *Handler) ExportSensors(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	rows := snap.SensorRows()
	res := pipeline.Apply(rows, exportQuery(r, dashboard.SensorFields, len(rows)), dashboard.SensorFields)
	writeWorkbook(h, w, r, "Capteurs", "capteurs", sensorColumns, res.Page)
}

// ExportAlerts GET /alerts/export.xlsx
func (h *Handler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	rows := snap.AlertRows()
	res := pipeline.Apply(rows, exportQuery(r, dashboard.AlertFields, len(rows)), dashboard.AlertFields)
	writeWorkbook(h, w, r, "Alertes", "alertes", alertColumns, res.Page)
}

func writeWorkbook[T any](h *Handler, w http.ResponseWriter, r *http.Request, sheet, prefix string, cols []column[T], rows []T) {
	data, err := buildWorkbook(sheet, cols, rows)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.xlsx", prefix, time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// buildWorkbook 生成单工作表 xlsx：加粗表头、冻结首行、自动筛选
func buildWorkbook[T any](sheet string, cols []column[T], rows []T) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, c := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, c.header); err != nil {
			return nil, fmt.Errorf("header cell %s: %w", cell, err)
		}
		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, colName, colName, c.width); err != nil {
			return nil, err
		}
	}
	lastCol, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol, headerStyle); err != nil {
		return nil, err
	}

	for rowIdx, row := range rows {
		values := make([]interface{}, len(cols))
		for i, c := range cols {
			values[i] = c.value(row)
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("row %d: %w", rowIdx+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}
	lastCell, err := excelize.CoordinatesToCellName(len(cols), len(rows)+1)
	if err != nil {
		return nil, err
	}
	if err := f.AutoFilter(sheet, "A1:"+lastCell, nil); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
