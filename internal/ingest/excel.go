package ingest

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Excel stores datetimes as serial day numbers and leaves the rendering to the
// cell's number format. Both readers return date cells as RFC 3339 text so
// the sniffer sees the full timestamp whatever the display format was.

func readXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyTable
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	var date1904 bool
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	styles := xlsxDateStyles{f: f, known: make(map[int]bool)}
	for i, row := range rows {
		for j, v := range row {
			serial, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			if !styles.isDate(sheet, cell) {
				continue
			}
			if ts, err := excelize.ExcelDateToTime(serial, date1904); err == nil {
				row[j] = ts.Format(time.RFC3339)
			}
		}
	}
	return tableFromGrid(sheet, rows)
}

// xlsxDateStyles caches, per style index, whether the number format is a date.
type xlsxDateStyles struct {
	f     *excelize.File
	known map[int]bool
}

func (s xlsxDateStyles) isDate(sheet, cell string) bool {
	idx, err := s.f.GetCellStyle(sheet, cell)
	if err != nil {
		return false
	}
	if v, ok := s.known[idx]; ok {
		return v
	}
	var v bool
	if style, err := s.f.GetStyle(idx); err == nil {
		if style.CustomNumFmt != nil {
			v = isDateFormatCode(*style.CustomNumFmt)
		} else {
			v = isDateNumFmt(style.NumFmt)
		}
	}
	s.known[idx] = v
	return v
}

func readXLS(path string) (t *Table, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// extrame/xls panics on some truncated records.
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("reading workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(file, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, ErrEmptyTable
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyTable
	}

	book := xlsBook{wb: wb, date1904: xlsDate1904(wb)}
	var grid [][]string
	for _, i := range xlsRowIndexes(sheet) {
		grid = append(grid, book.rowCells(sheet.Row(i)))
	}
	return tableFromGrid(sheet.Name, grid)
}

// The xls reader keeps cell records, the XF index of each cell and the
// workbook date mode unexported, and renders RK date cells as "2006.01". The
// helpers below read those fields through reflection so that numbers and
// dates come back at full precision.

type xlsBook struct {
	wb       *xls.WorkBook
	date1904 bool
}

type xlsNumber struct {
	value float64
	xf    int
}

func xlsDate1904(wb *xls.WorkBook) bool {
	mode := reflect.ValueOf(wb).Elem().FieldByName("dateMode")
	return mode.IsValid() && mode.Uint() == 1
}

// xlsRowIndexes lists the rows present in the sheet in ascending order.
// WorkSheet.Row panics for an index with no record.
func xlsRowIndexes(sheet *xls.WorkSheet) []int {
	rows := reflect.ValueOf(sheet).Elem().FieldByName("rows")
	if !rows.IsValid() {
		return nil
	}
	idx := make([]int, 0, rows.Len())
	for _, k := range rows.MapKeys() {
		idx = append(idx, int(k.Uint()))
	}
	sort.Ints(idx)
	return idx
}

func (b xlsBook) rowCells(row *xls.Row) []string {
	width, nums := xlsRowNumbers(row)
	if n := row.LastCol(); n > width {
		width = n
	}
	cells := make([]string, width)
	for c := range cells {
		n, ok := nums[c]
		if !ok {
			cells[c] = row.Col(c)
			continue
		}
		if b.isDateXF(n.xf) {
			if ts, err := excelize.ExcelDateToTime(n.value, b.date1904); err == nil {
				cells[c] = ts.Format(time.RFC3339)
				continue
			}
		}
		cells[c] = strconv.FormatFloat(n.value, 'f', -1, 64)
	}
	return cells
}

var (
	xlsNumberCol = reflect.TypeOf(xls.NumberCol{})
	xlsRkCol     = reflect.TypeOf(xls.RkCol{})
	xlsMulrkCol  = reflect.TypeOf(xls.MulrkCol{})
)

// xlsRowNumbers returns the row width implied by its cell records and the
// numeric cells keyed by column.
func xlsRowNumbers(row *xls.Row) (int, map[int]xlsNumber) {
	nums := make(map[int]xlsNumber)
	cols := reflect.ValueOf(row).Elem().FieldByName("cols")
	if !cols.IsValid() {
		return 0, nums
	}

	width := 0
	iter := cols.MapRange()
	for iter.Next() {
		cell := iter.Value().Elem()
		if cell.Kind() != reflect.Pointer || cell.IsNil() {
			continue
		}
		cell = cell.Elem()
		firstField := cell.FieldByName("FirstColB")
		if !firstField.IsValid() {
			continue
		}
		first := int(firstField.Uint())
		last := first
		if lc := cell.FieldByName("LastColB"); lc.IsValid() {
			last = int(lc.Uint())
		}
		if last+1 > width {
			width = last + 1
		}

		switch cell.Type() {
		case xlsNumberCol:
			nums[first] = xlsNumber{
				value: cell.FieldByName("Float").Float(),
				xf:    int(cell.FieldByName("Index").Uint()),
			}
		case xlsRkCol:
			nums[first] = xlsRK(cell.FieldByName("Xfrk"))
		case xlsMulrkCol:
			rks := cell.FieldByName("Xfrks")
			for k := 0; k < rks.Len(); k++ {
				nums[first+k] = xlsRK(rks.Index(k))
			}
		}
	}
	return width, nums
}

func xlsRK(xfrk reflect.Value) xlsNumber {
	rk := xls.RK(xfrk.FieldByName("Rk").Uint())
	v, _ := strconv.ParseFloat(rk.String(), 64)
	return xlsNumber{value: v, xf: int(xfrk.FieldByName("Index").Uint())}
}

func (b xlsBook) isDateXF(xf int) bool {
	if xf < 0 || xf >= len(b.wb.Xfs) {
		return false
	}
	var id uint16
	switch x := b.wb.Xfs[xf].(type) {
	case *xls.Xf8:
		id = x.Format
	case *xls.Xf5:
		id = x.Format
	default:
		return false
	}
	if f := b.wb.Formats[id]; f != nil {
		code := reflect.ValueOf(f).Elem().FieldByName("str")
		if code.IsValid() {
			return isDateFormatCode(code.String())
		}
	}
	return isDateNumFmt(int(id))
}

// isDateNumFmt reports whether a built-in number format id is a date or time
// format, including the East Asian locale ids.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22,
		id >= 27 && id <= 36,
		id >= 45 && id <= 47,
		id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom number format code renders a date
// or time. Quoted literals, escaped characters and bracketed colour or locale
// tags are ignored. Elapsed-time tags such as [h] count. Only the first
// section is inspected.
func isDateFormatCode(code string) bool {
	if strings.EqualFold(code, "general") {
		return false
	}
	inQuote := false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == '\\' || c == '_' || c == '*':
			i++
		case c == '[':
			end := strings.IndexByte(code[i:], ']')
			if end < 0 {
				return false
			}
			tag := strings.ToLower(code[i+1 : i+end])
			if tag != "" && strings.Trim(tag, "hms") == "" {
				return true
			}
			i += end
		case c == ';':
			return false
		default:
			switch unicode.ToLower(rune(c)) {
			case 'y', 'm', 'd', 'h', 's':
				return true
			}
		}
	}
	return false
}
