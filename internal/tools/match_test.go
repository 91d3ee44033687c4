package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tjfontaine/propertychat/internal/storage"
)

var regionNames = []string{
	"Camden", "City of London", "City of Westminster", "Kensington and Chelsea",
	"Leeds", "Leicester", "London", "Manchester", "Newcastle upon Tyne",
}

func TestMatchRegions(t *testing.T) {
	tests := []struct {
		query string
		first string
		none  bool
	}{
		{query: "london", first: "London"},
		{query: "  LONDON ", first: "London"},
		{query: "Manchestr", first: "Manchester"},
		{query: "westminster", first: "City of Westminster"},
		{query: "Kensington & Chelsea", first: "Kensington and Chelsea"},
		{query: "newcastle-upon-tyne", first: "Newcastle upon Tyne"},
		{query: "Zzyzx", none: true},
		{query: "", none: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := MatchRegions(tt.query, regionNames)
			if tt.none {
				if len(got) != 0 {
					t.Errorf("MatchRegions() = %v, want none", got)
				}
				return
			}
			if len(got) == 0 || got[0].RegionName != tt.first {
				t.Fatalf("MatchRegions() = %v, want %s first", got, tt.first)
			}
			for i, c := range got {
				if c.Score < MatchThreshold {
					t.Errorf("candidate %v below threshold", c)
				}
				if i > 0 && got[i-1].Score < c.Score {
					t.Errorf("not sorted at %d: %v", i, got)
				}
			}
		})
	}
}

func TestMatchRegions_Cap(t *testing.T) {
	names := []string{"Aa", "Ab", "Ac", "Ad", "Ae", "Af", "Ag"}
	got := MatchRegions("a", names)
	if len(got) > MatchLimit {
		t.Errorf("got %d candidates, want at most %d", len(got), MatchLimit)
	}

	same := []string{"Barb", "Bard", "Barc", "Barn", "Bare", "Bark", "Barf"}
	got = MatchRegions("bar", same)
	if len(got) != MatchLimit {
		t.Fatalf("got %d candidates, want %d", len(got), MatchLimit)
	}
	if got[0].RegionName != "Barb" || got[1].RegionName != "Barc" {
		t.Errorf("ties should sort by name: %v", got)
	}
}

func TestMatchRegionTool(t *testing.T) {
	store := &fakeStore{regions: map[storage.Dataset][]string{storage.DatasetSale: regionNames}}
	r := newTestRegistry(t, store)

	res := r.Execute(context.Background(), "matchRegion", json.RawMessage(`{"query":"Leicster"}`))
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.ErrorText)
	}
	var out struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(res.Output, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Candidates) == 0 || out.Candidates[0].RegionName != "Leicester" {
		t.Errorf("candidates = %v", out.Candidates)
	}
}
