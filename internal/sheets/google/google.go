// Package google exports ledger entries to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ucontrol/internal/amqp"
	"ucontrol/internal/core"
	"ucontrol/internal/log"
	"ucontrol/internal/ports"
)

const (
	StatusBooked   = "booked"
	StatusReversal = "reversal"
)

// Header is the column layout of the ledger sheet.
var Header = []any{"Period", "Date", "Kind", "ID", "Account", "Category", "Description", "Amount", "Status"}

type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

// Client appends rows to one sheet. Rows are only ever added, so the sheet
// is an append-only journal of the ledger.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ ports.LedgerExporter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
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
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Movimientos"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheet,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// EnsureHeader writes the header row when the sheet's first row is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:I1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{Header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	c.logger.InfoContext(ctx, "Ledger header written", "sheet", c.sheetName)
	return nil
}

// AppendEntry appends one row for ev and returns the updated range.
func (c *Client) AppendEntry(ctx context.Context, ev *amqp.TransactionEvent) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	row, err := Row(ev)
	if err != nil {
		return "", err
	}
	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}
	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// EntryState scans the ID and Status columns for rows of id.
func (c *Client) EntryState(ctx context.Context, id string) (ports.LedgerEntryState, error) {
	var state ports.LedgerEntryState
	if c.svc == nil {
		return state, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!D:I", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return state, fmt.Errorf("read %s: %w", rng, err)
	}
	for _, row := range resp.Values {
		if len(row) < 6 || fmt.Sprint(row[0]) != id {
			continue
		}
		switch fmt.Sprint(row[5]) {
		case StatusBooked:
			state.Booked = true
		case StatusReversal:
			state.Reversed = true
		}
	}
	return state, nil
}

// Row renders ev as a sheet row. Amounts are signed from the account's point
// of view: incomes positive, expenses negative. A reversal flips the sign of
// the original booking.
func Row(ev *amqp.TransactionEvent) ([]any, error) {
	var sign int64
	switch ev.Kind {
	case core.KindIncome:
		sign = 1
	case core.KindExpense:
		sign = -1
	default:
		return nil, fmt.Errorf("unknown transaction kind %q", ev.Kind)
	}

	status := StatusBooked
	switch ev.Type {
	case amqp.EventTransactionCreated:
	case amqp.EventTransactionDeleted:
		status = StatusReversal
		sign = -sign
	default:
		return nil, fmt.Errorf("unsupported event type %q", ev.Type)
	}

	amount := core.Money{Cents: sign * ev.Amount.Cents}
	return []any{
		ev.PeriodKey,
		ev.Date.String(),
		string(ev.Kind),
		ev.ID,
		ev.AccountID,
		ev.Category,
		ev.Description,
		amount.String(),
		status,
	}, nil
}
