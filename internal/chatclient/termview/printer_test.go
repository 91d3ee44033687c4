package termview

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tjfontaine/propertychat/internal/chatclient"
	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/tools"
)

func f(v float64) *float64 { return &v }

func newPrinter(t *testing.T, buf *bytes.Buffer) *Printer {
	t.Helper()
	p, err := New(buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestPrinter_StreamsTextOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(t, &buf)

	p.Update(chatclient.Snapshot{Status: chatclient.StatusSubmitted})
	p.Update(chatclient.Snapshot{Status: chatclient.StatusStreaming, Parts: []chatclient.Part{
		{Kind: chatclient.PartText, ID: "t1", Text: "About "},
	}})
	final := chatclient.Snapshot{Status: chatclient.StatusReady, Parts: []chatclient.Part{
		{Kind: chatclient.PartText, ID: "t1", Text: "About £550,000.", Done: true},
	}}
	p.Update(final)
	p.Finish(final)

	want := chatclient.SubmittedText + "\nAbout £550,000.\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPrinter_ToolStatusLines(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(t, &buf)

	call := chatclient.Part{Kind: chatclient.PartTool, ID: "c1", ToolName: "getHousePrices", State: domain.ToolStateInputStreaming}
	p.Update(chatclient.Snapshot{Status: chatclient.StatusStreaming, Parts: []chatclient.Part{call}})
	call.State = domain.ToolStateInputAvailable
	p.Update(chatclient.Snapshot{Status: chatclient.StatusStreaming, Parts: []chatclient.Part{call}})
	call.State = domain.ToolStateOutputError
	p.Finish(chatclient.Snapshot{Status: chatclient.StatusError, Parts: []chatclient.Part{call}})

	out := buf.String()
	if n := strings.Count(out, chatclient.LoadingText("getHousePrices")); n != 1 {
		t.Errorf("loading line printed %d times in %q", n, out)
	}
	for _, want := range []string{chatclient.ToolErrorText, chatclient.ErrorBannerText} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q is missing %q", out, want)
		}
	}
}

func TestPrinter_Aborted(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(t, &buf)
	p.Finish(chatclient.Snapshot{Status: chatclient.StatusAborted, Parts: []chatclient.Part{
		{Kind: chatclient.PartText, ID: "t1", Text: "Prices in"},
	}})
	if got := buf.String(); got != "Prices in\n(stopped)\n" {
		t.Errorf("output = %q", got)
	}
}

func TestPrinter_Chart(t *testing.T) {
	opt := tools.BuildChart(tools.ChartInput{
		Title: "Average price",
		XAxis: []string{"2024-01", "2024-02"},
		Series: []tools.SeriesInput{
			{Name: "London", Data: []*float64{f(550000), nil}},
		},
	})
	raw, err := json.Marshal(opt)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	p := newPrinter(t, &buf)
	p.Update(chatclient.Snapshot{Status: chatclient.StatusStreaming, Parts: []chatclient.Part{
		{Kind: chatclient.PartTool, ID: "c1", ToolName: tools.KindGenerateChart.String(), State: domain.ToolStateOutputAvailable, Output: raw},
	}})

	out := buf.String()
	for _, want := range []string{"Average price", "London", "2024-01", "550000", "2024-02"} {
		if !strings.Contains(out, want) {
			t.Errorf("chart output is missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_ChartNil(t *testing.T) {
	var buf bytes.Buffer
	if got := newPrinter(t, &buf).Chart(nil); got != "" {
		t.Errorf("Chart(nil) = %q", got)
	}
}
