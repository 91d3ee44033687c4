package chatclient

import (
	"encoding/json"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/tools"
)

// RenderMode is how a single part is shown.
type RenderMode string

const (
	ModeText        RenderMode = "text"
	ModeToolLoading RenderMode = "tool-loading"
	ModeToolSuccess RenderMode = "tool-success"
	ModeToolError   RenderMode = "tool-error"
	ModeChart       RenderMode = "chart"
)

const (
	ToolErrorText   = "Error: failed to get data, please try again."
	ErrorBannerText = "Sorry, something went wrong, please try again."
	SubmittedText   = "Thinking..."
)

// toolLabels holds the loading and complete text for each tool.
var toolLabels = map[string][2]string{
	tools.KindAvailableRegions.String():   {"Loading regions...", "Loaded available regions"},
	tools.KindHousePrices.String():        {"Loading house prices...", "Loaded house prices"},
	tools.KindHousePricesByMonth.String(): {"Loading monthly prices...", "Loaded monthly prices"},
	tools.KindRentPrices.String():         {"Loading rent prices...", "Loaded rent prices"},
	tools.KindAffordableRegions.String():  {"Searching affordable regions...", "Found affordable regions"},
	tools.KindMatchRegion.String():        {"Matching region...", "Matched region"},
	tools.KindGenerateChart.String():      {"Loading charts...", "Chart ready"},
}

// View is what to draw for one part.
type View struct {
	Mode RenderMode
	// Text is the message text, the loading or summary line, or the error.
	Text string
	// Raw is the tool output for inspection.
	Raw   json.RawMessage
	Chart *tools.ChartOption
}

// Render derives the view of p from its current state alone.
func Render(p Part) View {
	if p.Kind == PartText {
		return View{Mode: ModeText, Text: p.Text}
	}

	loading, complete := labels(p.ToolName)
	switch p.State {
	case domain.ToolStateOutputAvailable:
		if p.ToolName == tools.KindGenerateChart.String() {
			var opt tools.ChartOption
			if err := json.Unmarshal(p.Output, &opt); err == nil {
				return View{Mode: ModeChart, Text: opt.Title.Text, Raw: p.Output, Chart: &opt}
			}
		}
		return View{Mode: ModeToolSuccess, Text: complete, Raw: p.Output}
	case domain.ToolStateOutputError:
		return View{Mode: ModeToolError, Text: ToolErrorText}
	default:
		return View{Mode: ModeToolLoading, Text: loading}
	}
}

// LoadingText returns the indicator shown while a tool runs.
func LoadingText(toolName string) string {
	loading, _ := labels(toolName)
	return loading
}

func labels(toolName string) (string, string) {
	if l, ok := toolLabels[toolName]; ok {
		return l[0], l[1]
	}
	return "Loading data...", "Loaded data"
}

// TurnView is the top-level state of a turn.
type TurnView struct {
	Submitted   bool
	ErrorBanner string
	Views       []View
}

// RenderTurn renders every part of s plus the turn-level indicators. An
// aborted turn shows no banner.
func RenderTurn(s Snapshot) TurnView {
	tv := TurnView{Submitted: s.Status == StatusSubmitted}
	if s.Status == StatusError {
		tv.ErrorBanner = ErrorBannerText
	}
	for _, p := range s.Parts {
		tv.Views = append(tv.Views, Render(p))
	}
	return tv
}
