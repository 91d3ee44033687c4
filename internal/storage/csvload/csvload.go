// Package csvload parses the house price and rental price CSV exports
// into rows for storage.Loader. Headers are matched case-insensitively and
// both snake_case and the UK HPI export names are accepted.
package csvload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tjfontaine/propertychat/internal/storage"
)

var housePriceColumns = map[string][]string{
	"date":          {"date"},
	"region_name":   {"region_name", "regionname", "region"},
	"average_price": {"average_price", "averageprice", "price"},
}

var rentColumns = map[string][]string{
	"date":        {"date", "time_period", "timeperiod"},
	"region_name": {"region_name", "regionname", "area_name", "region"},
	"rent_all":    {"rent_all", "rental_price", "rent"},
	"rent_1bed":   {"rent_1bed", "rental_price_one_bed"},
	"rent_2bed":   {"rent_2bed", "rental_price_two_bed"},
	"rent_3bed":   {"rent_3bed", "rental_price_three_bed"},
	"rent_4plus":  {"rent_4plus", "rental_price_four_or_more_bed"},
}

// dateLayouts are tried in order; the stored form is always YYYY-MM-DD.
var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01", "Jan-2006", "2006-01-02T15:04:05Z07:00"}

// HousePrices reads house_prices rows. date, region_name and average_price
// are required.
func HousePrices(r io.Reader) ([]storage.HousePrice, error) {
	rd, cols, err := open(r, housePriceColumns, "date", "region_name", "average_price")
	if err != nil {
		return nil, err
	}

	var rows []storage.HousePrice
	for line := 2; ; line++ {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		date, err := parseDate(field(rec, cols, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := parseFloat(field(rec, cols, "average_price"))
		if err != nil {
			return nil, fmt.Errorf("line %d: average_price: %w", line, err)
		}
		if price == nil {
			continue
		}
		rows = append(rows, storage.HousePrice{
			Date:         date,
			RegionName:   field(rec, cols, "region_name"),
			AveragePrice: *price,
		})
	}
}

// Rents reads rental_prices rows. date and region_name are required, the
// rent columns are optional and blank cells become NULL.
func Rents(r io.Reader) ([]storage.RentRecord, error) {
	rd, cols, err := open(r, rentColumns, "date", "region_name")
	if err != nil {
		return nil, err
	}

	var rows []storage.RentRecord
	for line := 2; ; line++ {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		date, err := parseDate(field(rec, cols, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := storage.RentRecord{Date: date, RegionName: field(rec, cols, "region_name")}
		for name, dst := range map[string]**float64{
			"rent_all":   &row.RentAll,
			"rent_1bed":  &row.Rent1Bed,
			"rent_2bed":  &row.Rent2Bed,
			"rent_3bed":  &row.Rent3Bed,
			"rent_4plus": &row.Rent4Plus,
		} {
			v, err := parseFloat(field(rec, cols, name))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			*dst = v
		}
		rows = append(rows, row)
	}
}

func open(r io.Reader, aliases map[string][]string, required ...string) (*csv.Reader, map[string]int, error) {
	rd := csv.NewReader(r)
	rd.TrimLeadingSpace = true
	rd.FieldsPerRecord = -1

	header, err := rd.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for name, names := range aliases {
			for _, alias := range names {
				if h == alias {
					if _, dup := cols[name]; !dup {
						cols[name] = i
					}
				}
			}
		}
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return rd, cols, nil
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseDate(s string) (string, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

func parseFloat(s string) (*float64, error) {
	s = strings.NewReplacer(",", "", "£", "").Replace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "null") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
