package sheet

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/bulog/serapan/internal/procurement"
)

var nullMarkers = map[string]struct{}{"": {}, "nan": {}, "none": {}, "null": {}}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2/1/2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"1-2-06",
	"01-02-06 15:04",
	"02-Jan-2006",
	"2 Jan 2006",
}

// Clean normalises a raw cell: null markers become nil, everything else is trimmed.
func Clean(raw string) *string {
	v := strings.TrimSpace(raw)
	if _, ok := nullMarkers[strings.ToLower(v)]; ok {
		return nil
	}
	return &v
}

// ParseDecimal reads a number with optional thousands separators. Both "1,234.5" and
// "1.234,5" are accepted.
func ParseDecimal(raw string) (*decimal.Decimal, error) {
	v := Clean(raw)
	if v == nil {
		return nil, nil
	}
	s := strings.ReplaceAll(*v, " ", "")
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("sheet: parse number %q: %w", raw, err)
	}
	return &d, nil
}

// ParseInt reads an integer written as "123" or "123.0".
func ParseInt(raw string) (*int64, error) {
	d, err := ParseDecimal(raw)
	if err != nil || d == nil {
		return nil, err
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("sheet: parse integer %q: fractional value", raw)
	}
	v := d.IntPart()
	return &v, nil
}

// ParseDate reads ISO dates, DD/MM/YYYY, MM-DD-YY, datetime forms and Excel serial
// numbers.
func ParseDate(raw string) (*procurement.Date, error) {
	v := Clean(raw)
	if v == nil {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *v); err == nil {
			return procurement.DatePtr(procurement.DateOf(t)), nil
		}
	}
	if serial, err := strconv.ParseFloat(*v, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return procurement.DatePtr(procurement.DateOf(t)), nil
		}
	}
	return nil, fmt.Errorf("sheet: parse date %q: unrecognised format", raw)
}
