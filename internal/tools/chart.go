package tools

import "strings"

// ChartKind is the visual form of a chart or a series.
type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
)

// ChartInput is the structured request the model sends to generateChart.
type ChartInput struct {
	Title      string        `json:"title"`
	Type       ChartKind     `json:"type"`
	XAxis      []string      `json:"xAxis"`
	Series     []SeriesInput `json:"series"`
	LegendData []string      `json:"legendData,omitempty"`
}

// SeriesInput is one named series. Nil entries are missing data points.
type SeriesInput struct {
	Name string     `json:"name"`
	Type ChartKind  `json:"type,omitempty"`
	Data []*float64 `json:"data"`
}

// ChartOption is the normalized chart description handed verbatim to the
// rendering widget. Field order is fixed, so equal inputs encode to equal
// bytes.
type ChartOption struct {
	Title   ChartTitle    `json:"title"`
	Tooltip ChartTooltip  `json:"tooltip"`
	Legend  ChartLegend   `json:"legend"`
	Grid    ChartGrid     `json:"grid"`
	Toolbox ChartToolbox  `json:"toolbox"`
	XAxis   ChartAxis     `json:"xAxis"`
	YAxis   ChartAxis     `json:"yAxis"`
	Series  []ChartSeries `json:"series"`
}

type ChartTitle struct {
	Text string `json:"text"`
}

type ChartTooltip struct {
	Trigger string `json:"trigger"`
}

type ChartLegend struct {
	Data []string `json:"data"`
}

type ChartGrid struct {
	Left         string `json:"left"`
	Right        string `json:"right"`
	Bottom       string `json:"bottom"`
	ContainLabel bool   `json:"containLabel"`
}

type ChartToolbox struct {
	Feature ChartToolboxFeature `json:"feature"`
}

type ChartToolboxFeature struct {
	SaveAsImage struct{} `json:"saveAsImage"`
}

type ChartAxis struct {
	Type string   `json:"type"`
	Data []string `json:"data,omitempty"`
}

type ChartSeries struct {
	Name string     `json:"name"`
	Type ChartKind  `json:"type"`
	Data []*float64 `json:"data"`
}

// BuildChart normalizes a chart request. Series default to the chart's
// kind, series data is padded with nulls or truncated to the category
// count, and the legend falls back to series names.
func BuildChart(in ChartInput) ChartOption {
	kind := in.Type
	if kind != ChartBar {
		kind = ChartLine
	}

	categories := make([]string, len(in.XAxis))
	copy(categories, in.XAxis)

	series := make([]ChartSeries, 0, len(in.Series))
	legend := make([]string, 0, len(in.Series))
	for _, s := range in.Series {
		sk := s.Type
		if sk != ChartLine && sk != ChartBar {
			sk = kind
		}
		data := make([]*float64, len(categories))
		for i := range data {
			if i < len(s.Data) && s.Data[i] != nil {
				v := *s.Data[i]
				data[i] = &v
			}
		}
		name := strings.TrimSpace(s.Name)
		series = append(series, ChartSeries{Name: name, Type: sk, Data: data})
		legend = append(legend, name)
	}

	if len(in.LegendData) > 0 {
		legend = append([]string(nil), in.LegendData...)
	}

	return ChartOption{
		Title:   ChartTitle{Text: strings.TrimSpace(in.Title)},
		Tooltip: ChartTooltip{Trigger: "axis"},
		Legend:  ChartLegend{Data: legend},
		Grid:    ChartGrid{Left: "3%", Right: "4%", Bottom: "3%", ContainLabel: true},
		XAxis:   ChartAxis{Type: "category", Data: categories},
		YAxis:   ChartAxis{Type: "value"},
		Series:  series,
	}
}
