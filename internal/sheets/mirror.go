package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mtbar/concerts/pkg/models"
)

// Header is the first row of the dashboard sheet
var Header = []any{"№", "Название", "Дата", "Время", "Афиша", "Билеты", "Текст", "Яндекс", "Прогресс", "Статус"}

// valuesAPI is the subset of the Sheets values API the mirror needs
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, row []any) error
	Append(ctx context.Context, spreadsheetID, rng string, row []any) error
}

// Config selects the target spreadsheet
type Config struct {
	SpreadsheetID   string
	Range           string
	CredentialsPath string
}

// Mirror keeps one spreadsheet row per event. A mirror without a spreadsheet does nothing.
type Mirror struct {
	api           valuesAPI
	spreadsheetID string
	sheetRange    string
	logger        *slog.Logger
}

// New connects to the Sheets API with a service account. Empty config yields a disabled mirror.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Mirror, error) {
	m := &Mirror{
		spreadsheetID: cfg.SpreadsheetID,
		sheetRange:    cfg.Range,
		logger:        logger.WithGroup("sheets"),
	}
	if cfg.SpreadsheetID == "" || cfg.CredentialsPath == "" {
		m.logger.WarnContext(ctx, "Spreadsheet mirror disabled")
		return m, nil
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	m.api = &serviceAPI{svc: svc}
	return m, nil
}

// Enabled reports whether rows are written anywhere
func (m *Mirror) Enabled() bool {
	return m.api != nil
}

// Sync writes the row of ev in place, or appends it when the id is not in column A yet
func (m *Mirror) Sync(ctx context.Context, ev models.Event) error {
	if !m.Enabled() {
		return nil
	}

	row := Row(ev)

	rows, err := m.api.Get(ctx, m.spreadsheetID, m.onSheet("A:A"))
	if err != nil {
		return fmt.Errorf("failed to read id column: %w", err)
	}

	id := strconv.FormatInt(ev.ID, 10)
	for i, r := range rows {
		if len(r) > 0 && fmt.Sprint(r[0]) == id {
			rng := m.onSheet(fmt.Sprintf("A%d:J%d", i+1, i+1))
			if err := m.api.Update(ctx, m.spreadsheetID, rng, row); err != nil {
				return fmt.Errorf("failed to update row %d: %w", i+1, err)
			}
			m.logger.InfoContext(ctx, "Row updated", slog.Int64("event_id", ev.ID), slog.Int("row", i+1))
			return nil
		}
	}

	if len(rows) == 0 {
		if err := m.api.Append(ctx, m.spreadsheetID, m.sheetRange, Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := m.api.Append(ctx, m.spreadsheetID, m.sheetRange, row); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	m.logger.InfoContext(ctx, "Row appended", slog.Int64("event_id", ev.ID))
	return nil
}

// onSheet qualifies cells with the sheet named in the configured range, if any
func (m *Mirror) onSheet(cells string) string {
	if i := strings.LastIndex(m.sheetRange, "!"); i >= 0 {
		return m.sheetRange[:i+1] + cells
	}
	return cells
}

// Row formats the dashboard row of an event
func Row(ev models.Event) []any {
	mark := func(v string) string {
		if v == "" {
			return "❌"
		}
		return "✅"
	}

	progress := ev.ComputeCompleteness()
	return []any{
		strconv.FormatInt(ev.ID, 10),
		ev.Title,
		ev.Date,
		ev.Time,
		mark(ev.ImageURL),
		mark(ev.TicketsURL),
		mark(ev.Description),
		mark(ev.MusicURL),
		strconv.Itoa(progress) + "%",
		StatusLabel(ev.Status, progress),
	}
}

// StatusLabel is the last column of a row
func StatusLabel(status models.Status, progress int) string {
	switch {
	case status == models.StatusPublished:
		return "🟢 ОПУБЛ"
	case status == models.StatusCancelled:
		return "⚫ ОТМЕНА"
	case progress == 100:
		return "🟡 ГОТОВ"
	case progress >= 80:
		return "🟠 ПОЧТИ"
	default:
		return "🔴 " + strconv.Itoa(progress) + "%"
	}
}

type serviceAPI struct {
	svc *sheets.Service
}

func (a *serviceAPI) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *serviceAPI) Update(ctx context.Context, spreadsheetID, rng string, row []any) error {
	_, err := a.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (a *serviceAPI) Append(ctx context.Context, spreadsheetID, rng string, row []any) error {
	_, err := a.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
