// Package storage defines the price lookups the assistant's tools run
// against the house-price and rental-price tables.
package storage

import (
	"context"
	"fmt"
	"time"
)

// DateLayout is the only accepted date form at the tool boundary.
const DateLayout = "2006-01-02"

// Dataset selects which table a lookup reads.
type Dataset string

const (
	DatasetSale   Dataset = "sale"
	DatasetRental Dataset = "rental"
)

// Table returns the table backing the dataset.
func (d Dataset) Table() (string, error) {
	switch d {
	case DatasetSale:
		return "house_prices", nil
	case DatasetRental:
		return "rental_prices", nil
	default:
		return "", fmt.Errorf("unknown dataset %q", d)
	}
}

// Bedrooms selects a rent category.
type Bedrooms string

const (
	BedroomsAll   Bedrooms = "all"
	BedroomsOne   Bedrooms = "1"
	BedroomsTwo   Bedrooms = "2"
	BedroomsThree Bedrooms = "3"
	BedroomsFour  Bedrooms = "4"
)

// bedroomColumns is the complete set of rent columns a query may project.
var bedroomColumns = map[Bedrooms]string{
	BedroomsAll:   "rent_all",
	BedroomsOne:   "rent_1bed",
	BedroomsTwo:   "rent_2bed",
	BedroomsThree: "rent_3bed",
	BedroomsFour:  "rent_4plus",
}

// BedroomOptions lists the accepted selector values in display order.
func BedroomOptions() []string {
	return []string{string(BedroomsOne), string(BedroomsTwo), string(BedroomsThree), string(BedroomsFour), string(BedroomsAll)}
}

// Column returns the rent column for b. An empty selector means "all".
func (b Bedrooms) Column() (string, error) {
	if b == "" {
		b = BedroomsAll
	}
	col, ok := bedroomColumns[b]
	if !ok {
		return "", fmt.Errorf("unknown bedroom selector %q", b)
	}
	return col, nil
}

// DateRange is an inclusive range of months. Start and End may fall on
// any day; queries cover the whole of both months.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates and checks their order.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("start: expected YYYY-MM-DD, got %q", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("end: expected YYYY-MM-DD, got %q", end)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("end %s is before start %s", end, start)
	}
	return DateRange{Start: s, End: e}, nil
}

func (r DateRange) StartString() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndString() string   { return r.End.Format(DateLayout) }

// FromString is the first day of the start month, the inclusive lower bound.
func (r DateRange) FromString() string {
	return time.Date(r.Start.Year(), r.Start.Month(), 1, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

// UntilString is the first day of the month after End, the exclusive
// upper bound.
func (r DateRange) UntilString() string {
	return time.Date(r.End.Year(), r.End.Month()+1, 1, 0, 0, 0, 0, time.UTC).Format(DateLayout)
}

// PriceRow is one averaged sale price for a month and region.
type PriceRow struct {
	Month      string  `db:"month" json:"month"`
	RegionName string  `db:"region_name" json:"region_name"`
	AvgPrice   float64 `db:"avg_price" json:"avg_price"`
}

// RentRow is one observation for the selected bedroom category.
type RentRow struct {
	Date string  `db:"obs_date" json:"date"`
	Rent float64 `db:"rent" json:"rent"`
}

// AffordableRow is a region whose mean price fell under a ceiling.
type AffordableRow struct {
	RegionName string  `db:"region_name" json:"region_name"`
	MeanPrice  float64 `db:"mean_price" json:"mean_price"`
}

// HousePrice is an ingestable house_prices row.
type HousePrice struct {
	Date         string  `db:"date"`
	RegionName   string  `db:"region_name"`
	AveragePrice float64 `db:"average_price"`
}

// RentRecord is an ingestable rental_prices row. Nil values are stored as NULL.
type RentRecord struct {
	Date       string   `db:"date"`
	RegionName string   `db:"region_name"`
	RentAll    *float64 `db:"rent_all"`
	Rent1Bed   *float64 `db:"rent_1bed"`
	Rent2Bed   *float64 `db:"rent_2bed"`
	Rent3Bed   *float64 `db:"rent_3bed"`
	Rent4Plus  *float64 `db:"rent_4plus"`
}

// PriceStore is the read side consumed by the tools.
type PriceStore interface {
	Regions(ctx context.Context, dataset Dataset) ([]string, error)
	HousePrices(ctx context.Context, r DateRange, regions []string) ([]PriceRow, error)
	HousePricesByMonth(ctx context.Context, years, months []int, regions []string) ([]PriceRow, error)
	Rents(ctx context.Context, r DateRange, region string, bedrooms Bedrooms) ([]RentRow, error)
	Affordable(ctx context.Context, r DateRange, maxPrice float64) ([]AffordableRow, error)
}

// Loader is the write side used by ingestion and tests.
type Loader interface {
	EnsureSchema(ctx context.Context) error
	InsertHousePrices(ctx context.Context, rows []HousePrice) error
	InsertRents(ctx context.Context, rows []RentRecord) error
}
