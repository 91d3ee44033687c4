package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/storage"
)

type fakeStore struct {
	calls      atomic.Int32
	regions    map[storage.Dataset][]string
	lastBeds   storage.Bedrooms
	lastRange  storage.DateRange
	lastYears  []int
	lastRegion []string
	err        error
}

func (f *fakeStore) Regions(_ context.Context, d storage.Dataset) ([]string, error) {
	f.calls.Add(1)
	return f.regions[d], f.err
}

func (f *fakeStore) HousePrices(_ context.Context, r storage.DateRange, regions []string) ([]storage.PriceRow, error) {
	f.calls.Add(1)
	f.lastRange, f.lastRegion = r, regions
	if f.err != nil {
		return nil, f.err
	}
	return []storage.PriceRow{{Month: r.StartString(), RegionName: regions[0], AvgPrice: 1}}, nil
}

func (f *fakeStore) HousePricesByMonth(_ context.Context, years, _ []int, regions []string) ([]storage.PriceRow, error) {
	f.calls.Add(1)
	f.lastYears, f.lastRegion = years, regions
	return []storage.PriceRow{}, f.err
}

func (f *fakeStore) Rents(_ context.Context, r storage.DateRange, _ string, b storage.Bedrooms) ([]storage.RentRow, error) {
	f.calls.Add(1)
	f.lastRange, f.lastBeds = r, b
	return []storage.RentRow{{Date: r.StartString(), Rent: 1000}}, f.err
}

func (f *fakeStore) Affordable(_ context.Context, r storage.DateRange, _ float64) ([]storage.AffordableRow, error) {
	f.calls.Add(1)
	f.lastRange = r
	return []storage.AffordableRow{}, f.err
}

func newTestRegistry(t *testing.T, store *fakeStore) *Registry {
	t.Helper()
	r, err := New(Deps{Prices: store})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNew_CoversEveryKind(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})

	if r.Len() != int(kindCount) {
		t.Fatalf("Len() = %d, want %d", r.Len(), kindCount)
	}
	for _, k := range Kinds() {
		def, ok := r.Lookup(k.String())
		if !ok {
			t.Errorf("kind %s not registered", k)
			continue
		}
		if def.Kind != k {
			t.Errorf("%s registered with kind %v", k, def.Kind)
		}
		if def.Description == "" || def.Schema == nil {
			t.Errorf("%s lacks description or schema", k)
		}
		if _, err := json.Marshal(def.Schema); err != nil {
			t.Errorf("%s schema does not marshal: %v", k, err)
		}
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	if _, err := build(kindCount, Deps{Prices: &fakeStore{}}); err == nil {
		t.Fatal("build(kindCount) should fail")
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("lookup tools without a store should fail")
	}

	r, err := New(Deps{}, WithKinds(KindGenerateChart))
	if err != nil {
		t.Fatalf("chart-only registry error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestDefinitions_StableOrder(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	defs := r.Definitions()
	for i, k := range Kinds() {
		if defs[i].Name != k.String() {
			t.Errorf("Definitions()[%d] = %s, want %s", i, defs[i].Name, k)
		}
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := Empty()
	def := &Definition{Name: "x", execute: func(context.Context, map[string]any) (any, error) { return nil, nil }}
	if err := r.register(def); err != nil {
		t.Fatal(err)
	}
	if err := r.register(&Definition{Name: "x"}); err == nil {
		t.Fatal("duplicate name should fail")
	}
}

func TestExecute_ValidationGatesExecution(t *testing.T) {
	store := &fakeStore{}
	r := newTestRegistry(t, store)

	bad := []struct {
		tool string
		args string
	}{
		{"getHousePrices", `{"start":"2025-01-01","end":"2025-03-01"}`},
		{"getHousePrices", `{"start":"2025/01/01","end":"2025-03-01","regions":["London"]}`},
		{"getHousePrices", `{"start":"2025-01-01","end":"2025-03-01","regions":[]}`},
		{"getHousePrices", `{"start":"2025-01-01","end":"2025-03-01","regions":"London"}`},
		{"getHousePrices", `{"start":"2025-01-01","end":"2025-03-01","regions":["London"],"extra":1}`},
		{"getHousePrices", `{"start":"2025-01-01",`},
		{"getHousePricesByMonth", `{"year":["2025"],"month":[13],"region":["London"]}`},
		{"getHousePricesByMonth", `{"year":["2025"],"month":[1.5],"region":["London"]}`},
		{"getRentPrices", `{"start":"2025-01-01","end":"2025-03-01","region":"London","bedrooms":"5"}`},
		{"findAffordableRegions", `{"start":"2025-01-01","end":"2025-06-01","maxPrice":0}`},
		{"findAffordableRegions", `{"start":"2025-01-01","end":"2025-06-01","maxPrice":"300000"}`},
		{"getAvailableRegions", `{"dataset":"commercial"}`},
		{"matchRegion", `{}`},
		{"generateChart", `{"title":"t","type":"pie","xAxis":["a"],"series":[{"name":"s","data":[1]}]}`},
		{"generateChart", `{"title":"t","type":"line","xAxis":["a"],"series":[{"name":"s","data":["1"]}]}`},
		{"noSuchTool", `{}`},
	}

	for _, tt := range bad {
		t.Run(tt.tool+" "+tt.args, func(t *testing.T) {
			before := store.calls.Load()
			res := r.Execute(context.Background(), tt.tool, json.RawMessage(tt.args))
			if !res.IsError() {
				t.Fatalf("Execute() = %s, want error outcome", res.Output)
			}
			var verr *domain.ValidationError
			if !errors.As(res.Err, &verr) {
				t.Errorf("Err = %T %v, want *domain.ValidationError", res.Err, res.Err)
			}
			if store.calls.Load() != before {
				t.Error("store was called despite invalid input")
			}
		})
	}
}

func TestExecute_SemanticValidationBeforeStore(t *testing.T) {
	store := &fakeStore{}
	r := newTestRegistry(t, store)

	res := r.Execute(context.Background(), "getHousePrices",
		json.RawMessage(`{"start":"2025-03-01","end":"2025-01-01","regions":["London"]}`))
	if !res.IsError() || !strings.Contains(res.ErrorText, "before start") {
		t.Fatalf("ErrorText = %q, want range error", res.ErrorText)
	}
	if store.calls.Load() != 0 {
		t.Error("store should not be called for an inverted range")
	}
}

func TestExecute_ExecutionErrorIsGeneric(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	r := newTestRegistry(t, store)

	res := r.Execute(context.Background(), "getAvailableRegions", nil)
	if res.ErrorText != GenericToolError {
		t.Errorf("ErrorText = %q, want generic message", res.ErrorText)
	}
	var terr *domain.ToolExecutionError
	if !errors.As(res.Err, &terr) {
		t.Fatalf("Err = %T, want *domain.ToolExecutionError", res.Err)
	}
	if !strings.Contains(terr.Err.Error(), "connection refused") {
		t.Errorf("cause lost: %v", terr.Err)
	}
}

func TestExecute_PanicBecomesError(t *testing.T) {
	r := Empty()
	_ = r.register(&Definition{Name: "boom", execute: func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}})

	res := r.Execute(context.Background(), "boom", nil)
	if res.ErrorText != GenericToolError {
		t.Errorf("ErrorText = %q", res.ErrorText)
	}
}

func TestExecute_Timeout(t *testing.T) {
	r := newRegistry(WithTimeout(20 * time.Millisecond))
	_ = r.register(&Definition{Name: "slow", execute: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	start := time.Now()
	res := r.Execute(context.Background(), "slow", nil)
	if !res.IsError() {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not applied")
	}
}

func TestExecute_RentDefaultsToAll(t *testing.T) {
	store := &fakeStore{}
	r := newTestRegistry(t, store)

	res := r.Execute(context.Background(), "getRentPrices",
		json.RawMessage(`{"start":"2025-01-01","end":"2025-03-01","region":"London"}`))
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.ErrorText)
	}
	if store.lastBeds != storage.BedroomsAll {
		t.Errorf("bedrooms = %q, want all", store.lastBeds)
	}

	var out struct {
		Bedrooms string `json:"bedrooms"`
	}
	if err := json.Unmarshal(res.Output, &out); err != nil {
		t.Fatal(err)
	}
	if out.Bedrooms != "all" {
		t.Errorf("output bedrooms = %q", out.Bedrooms)
	}
}

func TestExecute_HousePricesPassesRange(t *testing.T) {
	store := &fakeStore{}
	r := newTestRegistry(t, store)

	res := r.Execute(context.Background(), "getHousePrices",
		json.RawMessage(`{"start":"2025-01-01","end":"2025-03-01","regions":["London"]}`))
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.ErrorText)
	}
	if store.lastRange.StartString() != "2025-01-01" || store.lastRange.EndString() != "2025-03-01" {
		t.Errorf("range = %s..%s", store.lastRange.StartString(), store.lastRange.EndString())
	}
	if len(store.lastRegion) != 1 || store.lastRegion[0] != "London" {
		t.Errorf("regions = %v", store.lastRegion)
	}
}

func TestExecute_YearsParsed(t *testing.T) {
	store := &fakeStore{}
	r := newTestRegistry(t, store)

	res := r.Execute(context.Background(), "getHousePricesByMonth",
		json.RawMessage(`{"year":["2024","2025"],"month":[1,2],"region":["London"]}`))
	if res.IsError() {
		t.Fatalf("Execute() error = %s", res.ErrorText)
	}
	if len(store.lastYears) != 2 || store.lastYears[1] != 2025 {
		t.Errorf("years = %v", store.lastYears)
	}

	res = r.Execute(context.Background(), "getHousePricesByMonth",
		json.RawMessage(`{"year":["twenty"],"month":[1],"region":["London"]}`))
	var verr *domain.ValidationError
	if !errors.As(res.Err, &verr) || verr.Field != "year" {
		t.Errorf("Err = %v, want year validation error", res.Err)
	}
}

func TestExecute_RegionsDefaultDataset(t *testing.T) {
	store := &fakeStore{regions: map[storage.Dataset][]string{
		storage.DatasetSale:   {"Leeds", "London"},
		storage.DatasetRental: {"London"},
	}}
	r := newTestRegistry(t, store)

	for _, tt := range []struct {
		args string
		want int
	}{
		{``, 2},
		{`{}`, 2},
		{`{"dataset":"rental"}`, 1},
	} {
		res := r.Execute(context.Background(), "getAvailableRegions", json.RawMessage(tt.args))
		if res.IsError() {
			t.Fatalf("%q: %s", tt.args, res.ErrorText)
		}
		var out struct {
			RegionNames []string `json:"region_names"`
		}
		if err := json.Unmarshal(res.Output, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.RegionNames) != tt.want {
			t.Errorf("%q: regions = %v, want %d", tt.args, out.RegionNames, tt.want)
		}
	}
}
