package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finanzas/internal/core"
)

func sampleSummary() core.MonthlySummary {
	return core.MonthlySummary{
		Year: 2025, Month: 10, Currency: "COP",
		TotalIncome:   decimal.RequireFromString("500000.4"),
		TotalExpenses: decimal.RequireFromString("200000"),
		NetBalance:    decimal.RequireFromString("300000.4"),
		Goal: &core.GoalProgress{
			Target:          decimal.NewFromInt(1000000),
			Remaining:       decimal.RequireFromString("699999.6"),
			PercentComplete: decimal.RequireFromString("30.00004"),
		},
		ComputedAt: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestSummaryRow(t *testing.T) {
	row := toStrings(summaryRow(sampleSummary()))
	// COP has no minor units
	want := []string{"2025-10-15T12:00:00Z", "2025-10", "COP", "500000", "200000", "300000", "1000000", "700000", "30.0", "FALSE", "FALSE"}
	if len(row) != len(header) {
		t.Fatalf("row width %d, header width %d", len(row), len(header))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d (%v) = %q, want %q", i, header[i], row[i], want[i])
		}
	}

	noGoal := sampleSummary()
	noGoal.Goal = nil
	noGoal.Currency = "USD"
	noGoal.Degraded = true
	row = toStrings(summaryRow(noGoal))
	if row[3] != "500000.40" || row[6] != "" || row[10] != "TRUE" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestInspectRows(t *testing.T) {
	data := summaryRow(sampleSummary())
	tests := []struct {
		name       string
		values     [][]any
		wantHeader bool
		wantKey    string
	}{
		{"empty sheet", nil, false, ""},
		{"header only", [][]any{header}, true, ""},
		{"header and data", [][]any{header, data}, true, rowKey(toStrings(data))},
		{"trailing cells dropped", [][]any{header, data[:9]}, true, rowKey(normalize(toStrings(data[:9])))},
		{"no header", [][]any{data}, false, rowKey(toStrings(data))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotHeader, gotKey := inspectRows(tt.values)
			if gotHeader != tt.wantHeader || gotKey != tt.wantKey {
				t.Errorf("inspectRows() = (%v, %q), want (%v, %q)", gotHeader, gotKey, tt.wantHeader, tt.wantKey)
			}
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := loadCredentials(Config{}); err == nil {
		t.Error("expected error without credentials")
	}

	got, err := loadCredentials(Config{CredentialsJSON: ` {"type":"service_account"} `})
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Errorf("inline json = %q, %v", got, err)
	}

	file := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", file)
	got, err = loadCredentials(Config{})
	if err != nil || !strings.Contains(string(got), "file") {
		t.Errorf("env file = %q, %v", got, err)
	}

	if _, err := loadCredentials(Config{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestExportSummary_NilService(t *testing.T) {
	e := newExporter(nil, Config{SpreadsheetID: "x"})
	if err := e.ExportSummary(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected error without service")
	}
}

type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	gets    int
	appends int
	updates int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		f.gets++
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.rows})
	case r.Method == http.MethodPut:
		f.updates++
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(vr.Values, f.rows...)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		f.appends++
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values...)
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func TestExportSummary_WritesHeaderAndSkipsDuplicates(t *testing.T) {
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	e := newExporter(svc, Config{SpreadsheetID: "sheet-id"})
	ctx := context.Background()

	s := sampleSummary()
	if err := e.ExportSummary(ctx, s); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := e.ExportSummary(ctx, s); err != nil {
		t.Fatalf("second export: %v", err)
	}
	s.NetBalance = decimal.NewFromInt(1)
	if err := e.ExportSummary(ctx, s); err != nil {
		t.Fatalf("third export: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.updates != 1 {
		t.Errorf("header should be written once, got %d", fake.updates)
	}
	if fake.appends != 2 {
		t.Errorf("expected 2 appends, got %d", fake.appends)
	}
	if fake.gets != 1 {
		t.Errorf("sheet state should be read once, got %d", fake.gets)
	}
	if len(fake.rows) != 3 {
		t.Errorf("expected header plus 2 rows, got %d", len(fake.rows))
	}
}
