package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/X0IVY/prompt-injection-detector/internal/features"
)

type fakeBackend struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saves   int
	failErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{blobs: make(map[string][]byte)}
}

func (f *fakeBackend) Load(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[key], nil
}

func (f *fakeBackend) Save(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.saves++
	f.blobs[key] = append([]byte(nil), data...)
	return nil
}

func openStore(t *testing.T, b Backend, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), b, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func rec(id string, ts int64, domain string, score float64) Record {
	return Record{
		ID:             id,
		Text:           "text " + id,
		Timestamp:      ts,
		Domain:         domain,
		Features:       features.Vector{MatchedKeywords: []string{}},
		SuspicionScore: score,
	}
}

func ids(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestAppend_EvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})

	for i := 1; i <= 1050; i++ {
		score := 0.0
		if i%2 == 0 {
			score = 0.99
		}
		if err := s.Append(ctx, rec(fmt.Sprint(i), int64(i), "general", score)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if s.Len() != DefaultMaxRecords {
		t.Fatalf("expected %d records, got %d", DefaultMaxRecords, s.Len())
	}
	got := s.Export()
	if got[0].ID != "51" || got[len(got)-1].ID != "1050" {
		t.Errorf("expected ids 51..1050, got %s..%s", got[0].ID, got[len(got)-1].ID)
	}
	for i, r := range got {
		if r.ID != fmt.Sprint(i+51) {
			t.Fatalf("order broken at %d: %s", i, r.ID)
		}
	}
}

func TestAppend_SmallCapacity(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{MaxRecords: 3})

	for i := 1; i <= 5; i++ {
		if err := s.Append(ctx, rec(fmt.Sprint(i), int64(i), "", 0)); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]string{"3", "4", "5"}, ids(s.Export())); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestAppend_BackendFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := openStore(t, b, Options{})

	if err := s.Append(ctx, rec("a", 1, "", 0)); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("disk full")
	b.failErr = boom

	if err := s.Append(ctx, rec("b", 2, "", 0)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if _, err := s.DeleteByID(ctx, "a"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error on delete, got %v", err)
	}
	if err := s.Clear(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error on clear, got %v", err)
	}
	if _, err := s.Import(ctx, []byte(`[{"id":"c","text":"x","timestamp":3}]`)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error on import, got %v", err)
	}

	if diff := cmp.Diff([]string{"a"}, ids(s.Export())); diff != "" {
		t.Errorf("state mutated after failed writes (-want +got):\n%s", diff)
	}
}

func TestAppend_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := openStore(t, b, Options{})

	if err := s.Append(ctx, rec("a", 1, "", 0.1)); err != nil {
		t.Fatal(err)
	}
	err := s.Append(ctx, rec("a", 2, "", 0.9))
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if s.Len() != 1 || b.saves != 1 {
		t.Errorf("store mutated: len %d saves %d", s.Len(), b.saves)
	}
	if r, _ := s.Get("a"); r.Timestamp != 1 {
		t.Errorf("expected original record kept, got %+v", r)
	}
}

func TestReadsDoNotShareCachedSlices(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})
	r := rec("a", 1, "", 0.8)
	r.Features.MatchedKeywords = []string{"ignore previous"}
	if err := s.Append(ctx, r); err != nil {
		t.Fatal(err)
	}

	exported := s.Export()
	exported[0].Features.MatchedKeywords[0] = "changed"
	got, _ := s.Get("a")
	got.Features.MatchedKeywords[0] = "changed"
	s.QuerySuspicious(0)[0].Features.MatchedKeywords[0] = "changed"

	again, ok := s.Get("a")
	if !ok {
		t.Fatal("record missing")
	}
	if diff := cmp.Diff([]string{"ignore previous"}, again.Features.MatchedKeywords); diff != "" {
		t.Errorf("cached record mutated through a read (-want +got):\n%s", diff)
	}
}

func TestOpen_ReloadsPersistedCollection(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := openStore(t, b, Options{Collection: "c1"})
	for i := 1; i <= 3; i++ {
		if err := s.Append(ctx, rec(fmt.Sprint(i), int64(i), "d", 0.1)); err != nil {
			t.Fatal(err)
		}
	}

	reopened := openStore(t, b, Options{Collection: "c1"})
	if diff := cmp.Diff(s.Export(), reopened.Export()); diff != "" {
		t.Errorf("reloaded collection differs (-want +got):\n%s", diff)
	}

	other := openStore(t, b, Options{Collection: "c2"})
	if other.Len() != 0 {
		t.Errorf("expected empty collection for unknown key, got %d", other.Len())
	}
}

func TestOpen_CorruptBlob(t *testing.T) {
	b := newFakeBackend()
	b.blobs[DefaultCollection] = []byte("{not json")
	if _, err := Open(context.Background(), b, Options{}); err == nil {
		t.Fatal("expected error for corrupt collection")
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})
	for _, r := range []Record{
		rec("1", 100, "coding", 0.1),
		rec("2", 200, "writing", 0.5),
		rec("3", 300, "coding", 0.9),
		rec("4", 400, "general", 0.49),
	} {
		if err := s.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		got  []Record
		want []string
	}{
		{"by domain", s.QueryByDomain("coding"), []string{"1", "3"}},
		{"by unknown domain", s.QueryByDomain("legal"), []string{}},
		{"time range inclusive", s.QueryByTimeRange(200, 300), []string{"2", "3"}},
		{"time range empty", s.QueryByTimeRange(301, 399), []string{}},
		{"suspicious default", s.QuerySuspicious(0), []string{"2", "3"}},
		{"suspicious custom", s.QuerySuspicious(0.8), []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(tt.got)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, rec(id, 1, "", 0)); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.DeleteByID(ctx, "b")
	if err != nil || !removed {
		t.Fatalf("DeleteByID(b) = %v, %v", removed, err)
	}
	removed, err = s.DeleteByID(ctx, "b")
	if err != nil || removed {
		t.Fatalf("second DeleteByID(b) = %v, %v", removed, err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ids(s.Export())); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := openStore(t, b, Options{})
	if err := s.Append(ctx, rec("a", 1, "", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
	data, _ := s.ExportJSON()
	if string(data) != "[]" {
		t.Errorf("expected [] export, got %s", data)
	}
	if string(b.blobs[DefaultCollection]) != "[]" {
		t.Errorf("expected persisted [], got %s", b.blobs[DefaultCollection])
	}
}

func TestImport_RoundTripIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := openStore(t, newFakeBackend(), Options{})
	for i := 1; i <= 5; i++ {
		if err := src.Append(ctx, rec(fmt.Sprint(i), int64(i), "d", 0.2)); err != nil {
			t.Fatal(err)
		}
	}
	data, err := src.ExportJSON()
	if err != nil {
		t.Fatal(err)
	}

	dst := openStore(t, newFakeBackend(), Options{})
	n, err := dst.Import(ctx, data)
	if err != nil || n != 5 {
		t.Fatalf("first Import = %d, %v", n, err)
	}
	n, err = dst.Import(ctx, data)
	if err != nil || n != 0 {
		t.Fatalf("second Import = %d, %v", n, err)
	}
	if diff := cmp.Diff(src.Export(), dst.Export()); diff != "" {
		t.Errorf("imported collection differs (-want +got):\n%s", diff)
	}
}

func TestImport_DuplicatesInBatchKeepFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})
	n, err := s.Import(ctx, []byte(`[
		{"id":"x","text":"first","timestamp":1},
		{"id":"x","text":"second","timestamp":2}
	]`))
	if err != nil || n != 1 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	r, ok := s.Get("x")
	if !ok || r.Text != "first" {
		t.Errorf("expected first occurrence kept, got %+v", r)
	}
}

func TestImport_ReappliesCapacity(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{MaxRecords: 2})
	if err := s.Append(ctx, rec("old", 1, "", 0)); err != nil {
		t.Fatal(err)
	}
	n, err := s.Import(ctx, []byte(`[{"id":"n1","text":"a","timestamp":2},{"id":"n2","text":"b","timestamp":3}]`))
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	if diff := cmp.Diff([]string{"n1", "n2"}, ids(s.Export())); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_CountsOnlySurvivingRecords(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})
	if err := s.Append(ctx, rec("old", 1, "", 0)); err != nil {
		t.Fatal(err)
	}

	batch := make([]Record, 1500)
	for i := range batch {
		batch[i] = rec(fmt.Sprintf("n%d", i), int64(i+2), "", 0)
	}
	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.Import(ctx, data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != DefaultMaxRecords {
		t.Errorf("Import reported %d, want %d", n, DefaultMaxRecords)
	}
	if s.Len() != DefaultMaxRecords {
		t.Errorf("Len = %d, want %d", s.Len(), DefaultMaxRecords)
	}
	if _, ok := s.Get("old"); ok {
		t.Error("expected pre-existing record to be evicted")
	}
}

func TestImport_EmptyArray(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := openStore(t, b, Options{})
	n, err := s.Import(ctx, []byte(`[]`))
	if err != nil || n != 0 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	if b.saves != 0 {
		t.Errorf("expected no write for an empty batch, got %d saves", b.saves)
	}
}

func TestImport_RejectsWholeBatch(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		index int
		field string
	}{
		{"not an array", `{"id":"a"}`, -1, ""},
		{"null", `null`, -1, ""},
		{"garbage", `nope`, -1, ""},
		{"element not object", `[{"id":"a","text":"t","timestamp":1}, 5]`, 1, ""},
		{"missing id", `[{"id":"a","text":"t","timestamp":1},{"text":"t","timestamp":1}]`, 1, "id"},
		{"empty id", `[{"id":"","text":"t","timestamp":1}]`, 0, "id"},
		{"missing text", `[{"id":"a","timestamp":1}]`, 0, "text"},
		{"numeric text", `[{"id":"a","text":7,"timestamp":1}]`, 0, "text"},
		{"missing timestamp", `[{"id":"a","text":"t"}]`, 0, "timestamp"},
		{"string timestamp", `[{"id":"a","text":"t","timestamp":"yesterday"}]`, 0, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := newFakeBackend()
			s := openStore(t, b, Options{})

			n, err := s.Import(ctx, []byte(tt.data))
			if n != 0 {
				t.Errorf("expected 0 imported, got %d", n)
			}
			if !errors.Is(err, ErrInvalidImport) {
				t.Fatalf("expected ErrInvalidImport, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if ve.Index != tt.index || ve.Field != tt.field {
				t.Errorf("got index %d field %q, want %d %q", ve.Index, ve.Field, tt.index, tt.field)
			}
			if s.Len() != 0 || b.saves != 0 {
				t.Errorf("store mutated: len %d saves %d", s.Len(), b.saves)
			}
		})
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newFakeBackend(), Options{})

	empty := s.Stats()
	if empty.Count != 0 || empty.SizeBytes != len("[]") {
		t.Errorf("unexpected empty stats: %+v", empty)
	}

	for _, r := range []Record{rec("a", 300, "", 0.7), rec("b", 100, "", 0.2), rec("c", 200, "", 0.5)} {
		if err := s.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	st := s.Stats()
	data, _ := json.Marshal(s.Export())
	want := Stats{Count: 3, Suspicious: 2, OldestTimestamp: 100, NewestTimestamp: 300, SizeBytes: len(data)}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	s := openStore(t, b, Options{MaxRecords: 50})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, rec(fmt.Sprint(i), int64(i), "", 0))
			_ = s.QuerySuspicious(0)
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Fatalf("expected 50 records, got %d", s.Len())
	}
	reopened := openStore(t, b, Options{MaxRecords: 50})
	if diff := cmp.Diff(s.Export(), reopened.Export()); diff != "" {
		t.Errorf("durable copy diverged from memory (-want +got):\n%s", diff)
	}
}
