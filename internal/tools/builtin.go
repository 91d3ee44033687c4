package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/storage"
)

// build returns the definition for k. Every Kind must have a case.
func build(k Kind, deps Deps) (*Definition, error) {
	needStore := func() error {
		if deps.Prices == nil {
			return fmt.Errorf("tool %s requires a price store", k)
		}
		return nil
	}

	var def *Definition
	switch k {
	case KindAvailableRegions:
		def = availableRegions(deps.Prices)
	case KindHousePrices:
		def = housePrices(deps.Prices)
	case KindHousePricesByMonth:
		def = housePricesByMonth(deps.Prices)
	case KindRentPrices:
		def = rentPrices(deps.Prices)
	case KindAffordableRegions:
		def = affordableRegions(deps.Prices)
	case KindMatchRegion:
		def = matchRegion(deps.Prices)
	case KindGenerateChart:
		def = generateChart()
	default:
		return nil, fmt.Errorf("no builder for tool kind %s", k)
	}

	if k != KindGenerateChart {
		if err := needStore(); err != nil {
			return nil, err
		}
	}
	def.Kind = k
	def.Name = k.String()
	return def, nil
}

func datasetSchema() *Schema {
	s := Enum("Which dataset to read: sale prices or rental prices.", string(storage.DatasetSale), string(storage.DatasetRental))
	s.Default = string(storage.DatasetSale)
	return s
}

func dateRange(tool, start, end string) (storage.DateRange, error) {
	r, err := storage.ParseDateRange(start, end)
	if err != nil {
		return storage.DateRange{}, &domain.ValidationError{Tool: tool, Message: err.Error()}
	}
	return r, nil
}

type regionsInput struct {
	Dataset storage.Dataset `json:"dataset"`
}

func availableRegions(prices storage.PriceStore) *Definition {
	name := KindAvailableRegions.String()
	return &Definition{
		Description: "Get the list of valid region names available in the housing price database. Use it before other lookups when unsure how a region is spelled.",
		Schema:      Object(map[string]*Schema{"dataset": datasetSchema()}),
		execute: typed(name, func(ctx context.Context, in regionsInput) (any, error) {
			names, err := prices.Regions(ctx, in.Dataset)
			if err != nil {
				return nil, err
			}
			if names == nil {
				names = []string{}
			}
			return map[string]any{"dataset": in.Dataset, "region_names": names}, nil
		}),
	}
}

type housePricesInput struct {
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Regions []string `json:"regions"`
}

func housePrices(prices storage.PriceStore) *Definition {
	name := KindHousePrices.String()
	return &Definition{
		Description: "Get the average house price per month for one or more regions over an inclusive date range. Dates are YYYY-MM-DD.",
		Schema: Object(map[string]*Schema{
			"start":   Date("First month of the range, YYYY-MM-DD."),
			"end":     Date("Last month of the range, YYYY-MM-DD. Every observation in that month is included."),
			"regions": Array("Canonical region names.", String(""), 1),
		}, "start", "end", "regions"),
		execute: typed(name, func(ctx context.Context, in housePricesInput) (any, error) {
			r, err := dateRange(name, in.Start, in.End)
			if err != nil {
				return nil, err
			}
			rows, err := prices.HousePrices(ctx, r, in.Regions)
			if err != nil {
				return nil, err
			}
			return map[string]any{"rows": rows}, nil
		}),
	}
}

type housePricesByMonthInput struct {
	Year   []string `json:"year"`
	Month  []int    `json:"month"`
	Region []string `json:"region"`
}

func housePricesByMonth(prices storage.PriceStore) *Definition {
	name := KindHousePricesByMonth.String()
	month := Integer("")
	month.Minimum, month.Maximum = ptr(1.0), ptr(12.0)
	return &Definition{
		Description: "Get the house price in a given series of years, months and regions. Prefer getHousePrices for continuous ranges.",
		Schema: Object(map[string]*Schema{
			"year":   Array("Four digit years as strings, e.g. \"2024\".", String(""), 1),
			"month":  Array("Month numbers 1-12.", month, 1),
			"region": Array("Canonical region names.", String(""), 1),
		}, "year", "month", "region"),
		execute: typed(name, func(ctx context.Context, in housePricesByMonthInput) (any, error) {
			years := make([]int, 0, len(in.Year))
			for _, y := range in.Year {
				n, err := strconv.Atoi(y)
				if err != nil || n < 1000 || n > 9999 {
					return nil, &domain.ValidationError{Tool: name, Field: "year", Message: fmt.Sprintf("expected a four digit year, got %q", y)}
				}
				years = append(years, n)
			}
			rows, err := prices.HousePricesByMonth(ctx, years, in.Month, in.Region)
			if err != nil {
				return nil, err
			}
			return map[string]any{"rows": rows}, nil
		}),
	}
}

type rentPricesInput struct {
	Start    string           `json:"start"`
	End      string           `json:"end"`
	Region   string           `json:"region"`
	Bedrooms storage.Bedrooms `json:"bedrooms"`
}

func rentPrices(prices storage.PriceStore) *Definition {
	name := KindRentPrices.String()
	bedrooms := Enum("Bedroom category. Use \"all\" unless the user asks for a specific size.", storage.BedroomOptions()...)
	bedrooms.Default = string(storage.BedroomsAll)
	return &Definition{
		Description: "Get the average private rent per month for a single region over an inclusive date range, optionally for one bedroom category.",
		Schema: Object(map[string]*Schema{
			"start":    Date("First month of the range, YYYY-MM-DD."),
			"end":      Date("Last month of the range, YYYY-MM-DD. Every observation in that month is included."),
			"region":   String("Canonical region name."),
			"bedrooms": bedrooms,
		}, "start", "end", "region"),
		execute: typed(name, func(ctx context.Context, in rentPricesInput) (any, error) {
			r, err := dateRange(name, in.Start, in.End)
			if err != nil {
				return nil, err
			}
			rows, err := prices.Rents(ctx, r, in.Region, in.Bedrooms)
			if err != nil {
				return nil, err
			}
			return map[string]any{"region": in.Region, "bedrooms": in.Bedrooms, "rows": rows}, nil
		}),
	}
}

type affordableInput struct {
	Start    string  `json:"start"`
	End      string  `json:"end"`
	MaxPrice float64 `json:"maxPrice"`
}

func affordableRegions(prices storage.PriceStore) *Definition {
	name := KindAffordableRegions.String()
	budget := Number("Budget ceiling in GBP, greater than zero.")
	budget.ExclusiveMinimum = ptr(0.0)
	return &Definition{
		Description: "Find regions whose mean house price over an inclusive date range is below a budget, cheapest first.",
		Schema: Object(map[string]*Schema{
			"start":    Date("First month of the range, YYYY-MM-DD."),
			"end":      Date("Last month of the range, YYYY-MM-DD. Every observation in that month is included."),
			"maxPrice": budget,
		}, "start", "end", "maxPrice"),
		execute: typed(name, func(ctx context.Context, in affordableInput) (any, error) {
			r, err := dateRange(name, in.Start, in.End)
			if err != nil {
				return nil, err
			}
			rows, err := prices.Affordable(ctx, r, in.MaxPrice)
			if err != nil {
				return nil, err
			}
			return map[string]any{"max_price": in.MaxPrice, "rows": rows}, nil
		}),
	}
}

type matchInput struct {
	Query   string          `json:"query"`
	Dataset storage.Dataset `json:"dataset"`
}

func matchRegion(prices storage.PriceStore) *Definition {
	name := KindMatchRegion.String()
	return &Definition{
		Description: "Resolve a free-text place name to canonical region names, best match first.",
		Schema: Object(map[string]*Schema{
			"query":   String("The area name as the user wrote it."),
			"dataset": datasetSchema(),
		}, "query"),
		execute: typed(name, func(ctx context.Context, in matchInput) (any, error) {
			names, err := prices.Regions(ctx, in.Dataset)
			if err != nil {
				return nil, err
			}
			return map[string]any{"query": in.Query, "candidates": MatchRegions(in.Query, names)}, nil
		}),
	}
}

func chartSchema() *Schema {
	kind := Enum("Chart kind.", string(ChartLine), string(ChartBar))
	seriesKind := Enum("Series kind, defaults to the chart kind.", string(ChartLine), string(ChartBar))
	value := Number("")
	value.Nullable = true
	series := Object(map[string]*Schema{
		"name": String("Series name, shown in the legend."),
		"type": seriesKind,
		"data": Array("One value per category; null for missing data.", value, 0),
	}, "name", "data")

	return Object(map[string]*Schema{
		"title":      String("Chart title."),
		"type":       kind,
		"xAxis":      Array("Category labels, e.g. months.", String(""), 1),
		"series":     Array("Named data series.", series, 1),
		"legendData": Array("Legend entries; defaults to series names.", String(""), 0),
	}, "title", "type", "xAxis", "series")
}

func generateChart() *Definition {
	name := KindGenerateChart.String()
	return &Definition{
		Description: "Generate a chart from structured housing data the conversation already holds. Performs no lookup.",
		Schema:      chartSchema(),
		execute: typed(name, func(_ context.Context, in ChartInput) (any, error) {
			return BuildChart(in), nil
		}),
	}
}
