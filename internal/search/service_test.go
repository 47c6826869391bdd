package search

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEngine struct {
	healthy bool
	results []Result
	err     error
	queries []Query
	indexed []FileRecord
	deleted []string
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(q Query) ([]Result, int, error) {
	f.queries = append(f.queries, q)
	return f.results, len(f.results), f.err
}

func (f *fakeEngine) IndexFile(r FileRecord) error {
	f.indexed = append(f.indexed, r)
	return nil
}

func (f *fakeEngine) DeleteFile(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeEngine) IndexFiles(files []FileRecord) error {
	f.indexed = append(f.indexed, files...)
	return nil
}

type fakeDatabaseSearcher struct {
	results []Result
	err     error
	queries []Query
	records []FileRecord
}

func (f *fakeDatabaseSearcher) Healthy() bool { return true }

func (f *fakeDatabaseSearcher) Search(q Query) ([]Result, int, error) {
	f.queries = append(f.queries, q)
	return f.results, len(f.results), f.err
}

func (f *fakeDatabaseSearcher) LoadAllRecords(ctx context.Context) ([]FileRecord, error) {
	return f.records, f.err
}

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeEngine{healthy: true, results: []Result{{ID: "file_1", FileNumber: "F-1"}}}
	fallback := &fakeDatabaseSearcher{results: []Result{{ID: "file_2"}}}
	service := &Service{primary: primary, fallback: fallback}

	q := Query{Text: "dossier", ActorID: "usr_a", IsAdmin: false, Limit: 5}
	resp := service.Search(q)

	if len(resp.Results) != 1 || resp.Results[0].ID != "file_1" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if len(fallback.queries) != 0 {
		t.Fatalf("fallback consulted while primary healthy: %+v", fallback.queries)
	}
	// The actor scope must reach the backend untouched.
	if len(primary.queries) != 1 || primary.queries[0] != q {
		t.Fatalf("primary got %+v, want %+v", primary.queries, q)
	}
}

func TestSearchFallsBackWhenPrimaryErrors(t *testing.T) {
	primary := &fakeEngine{healthy: true, err: errors.New("index gone")}
	fallback := &fakeDatabaseSearcher{results: []Result{{ID: "file_2", FileNumber: "F-2"}}}
	service := &Service{primary: primary, fallback: fallback}

	q := Query{Text: "dossier", ActorID: "usr_a"}
	resp := service.Search(q)

	if len(resp.Results) != 1 || resp.Results[0].ID != "file_2" {
		t.Fatalf("fallback results not returned: %+v", resp.Results)
	}
	if len(fallback.queries) != 1 || fallback.queries[0].ActorID != "usr_a" {
		t.Fatalf("fallback query lost the actor scope: %+v", fallback.queries)
	}
}

func TestSearchSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeEngine{healthy: false, results: []Result{{ID: "file_1"}}}
	fallback := &fakeDatabaseSearcher{results: []Result{{ID: "file_2"}}}
	service := &Service{primary: primary, fallback: fallback}

	resp := service.Search(Query{Text: "dossier"})

	if len(primary.queries) != 0 {
		t.Fatalf("unhealthy primary was queried: %+v", primary.queries)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "file_2" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
}

func TestSearchEmptyWithoutBackends(t *testing.T) {
	service := NewService(nil, nil)
	resp := service.Search(Query{Text: "dossier"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}

func TestReindexAllPushesEveryRecord(t *testing.T) {
	primary := &fakeEngine{healthy: true}
	fallback := &fakeDatabaseSearcher{records: []FileRecord{
		{ID: "file_1", FileNumber: "F-1"},
		{ID: "file_2", FileNumber: "F-2"},
	}}
	service := &Service{primary: primary, fallback: fallback}

	service.ReindexAllFromPG(context.Background())

	if len(primary.indexed) != 2 || primary.indexed[1].FileNumber != "F-2" {
		t.Fatalf("unexpected indexed records: %+v", primary.indexed)
	}
}

func TestScopeFilter(t *testing.T) {
	if got := scopeFilter(Query{IsAdmin: true, ActorID: "usr_adm"}); got != "" {
		t.Fatalf("admin filter = %q, want empty", got)
	}

	got := scopeFilter(Query{IsAdmin: false, ActorID: "usr_a"})
	want := `assignedTo = "usr_a" OR uploadedBy = "usr_a"`
	if got != want {
		t.Fatalf("user filter = %q, want %q", got, want)
	}
}

func TestFtsPredicate(t *testing.T) {
	where, args := ftsPredicate(Query{Text: "dossier", IsAdmin: true, ActorID: "usr_adm"})
	if strings.Contains(where, "assigned_to") || len(args) != 1 {
		t.Fatalf("admin predicate scoped: %q args=%v", where, args)
	}

	where, args = ftsPredicate(Query{Text: "dossier", IsAdmin: false, ActorID: "usr_a"})
	if !strings.Contains(where, "(f.assigned_to = $2 OR f.uploaded_by = $2)") {
		t.Fatalf("user predicate missing ownership scope: %q", where)
	}
	if len(args) != 2 || args[1] != "usr_a" {
		t.Fatalf("user predicate args = %v, want actor id bound", args)
	}
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, 20, 0},
		{-1, -3, 20, 0},
		{7, 4, 7, 4},
		{100, 0, 100, 0},
	}
	for _, tc := range cases {
		limit, offset := normalizePage(Query{Limit: tc.limit, Offset: tc.offset})
		if limit != tc.wantLimit || offset != tc.wantOffset {
			t.Errorf("normalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				tc.limit, tc.offset, limit, offset, tc.wantLimit, tc.wantOffset)
		}
	}
}
