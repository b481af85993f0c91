// Package google appends applied dashboard summaries to a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
)

const DefaultSheetName = "Resumen"

var header = []any{
	"Computed at", "Period", "Currency", "Income", "Expenses", "Net",
	"Goal target", "Goal remaining", "Goal %", "Approximate", "Degraded",
}

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	// StateTTL bounds how long the header check and last exported row are
	// trusted before the sheet is read again (default 10m).
	StateTTL time.Duration
}

// Exporter appends one row per applied summary. Consecutive summaries with
// the same figures are written once.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *applog.Logger

	mu             sync.Mutex
	stateTTL       time.Duration
	stateExpiresAt time.Time
	headerOK       bool
	lastKey        string
}

func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newExporter(svc, cfg), nil
}

func newExporter(svc *gsheet.Service, cfg Config) *Exporter {
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.SheetName,
		stateTTL:      cfg.StateTTL,
		logger:        applog.Default(applog.ComponentSheets),
	}
}

// loadCredentials resolves service account credentials from inline JSON, a
// file, or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func loadCredentials(cfg Config) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// ExportSummary appends the summary unless it matches the last exported row.
func (e *Exporter) ExportSummary(ctx context.Context, s core.MonthlySummary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	row := summaryRow(s)
	key := rowKey(toStrings(row))

	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().After(e.stateExpiresAt) {
		if err := e.refreshState(ctx); err != nil {
			return err
		}
	}
	if key == e.lastKey {
		e.logger.DebugContext(ctx, "Summary unchanged, skipping export")
		return nil
	}

	if !e.headerOK {
		rng := fmt.Sprintf("%s!A1", e.sheet)
		_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header to %s: %w", e.sheet, err)
		}
		e.headerOK = true
	}

	rng := fmt.Sprintf("%s!A:K", e.sheet)
	_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append summary to %s: %w", e.sheet, err)
	}
	e.lastKey = key

	e.logger.InfoContext(ctx, "Summary exported",
		applog.FieldYear, s.Year,
		applog.FieldMonth, s.Month,
		applog.FieldCurrency, s.Currency)
	return nil
}

// refreshState reads the sheet to learn whether the header exists and what
// the last exported row was. Callers hold e.mu.
func (e *Exporter) refreshState(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A:K", e.sheet)
	resp, err := e.svc.Spreadsheets.Values.Get(e.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	e.headerOK, e.lastKey = inspectRows(resp.Values)
	e.stateExpiresAt = time.Now().Add(e.stateTTL)
	return nil
}

// InvalidateState forces the next export to read the sheet again.
func (e *Exporter) InvalidateState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateExpiresAt = time.Time{}
}
