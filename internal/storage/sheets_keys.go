package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
)

// SheetsKeyStore serves authorized keys from column A of a Google Sheet.
// A first row reading "key" or "license_key" is treated as a header.
type SheetsKeyStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	readOnly      bool
	logger        *slog.Logger
	tracer        trace.Tracer
}

var _ KeyStore = (*SheetsKeyStore)(nil)

// NewSheetsKeyStore connects to the configured spreadsheet. A credentials
// file gives read-write access; an API key alone is read-only. Extra client
// options are appended, which tests use to point at a fake endpoint.
func NewSheetsKeyStore(ctx context.Context, cfg config.SheetsConfig, logger *slog.Logger, extra ...option.ClientOption) (*SheetsKeyStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	readOnly := false
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		readOnly = true
	}
	opts = append(opts, extra...)

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to create sheets service", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Keys"
	}

	logger = logger.With(slog.String("component", "sheets_key_store"))
	logger.InfoContext(ctx, "sheets key backend ready",
		slog.String("sheet", sheetName),
		slog.Bool("read_only", readOnly))

	return &SheetsKeyStore{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		readOnly:      readOnly,
		logger:        logger,
		tracer:        otel.Tracer(infrastructure.InstrumentationName),
	}, nil
}

// ReadOnly reports whether mutations are rejected
func (s *SheetsKeyStore) ReadOnly() bool {
	return s.readOnly
}

// HasKey implements KeyStore
func (s *SheetsKeyStore) HasKey(ctx context.Context, key string) (bool, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return false, err
	}
	return findRow(rows, key) > 0, nil
}

// AddKey implements KeyStore
func (s *SheetsKeyStore) AddKey(ctx context.Context, key string) (bool, error) {
	if s.readOnly {
		return false, apperrors.ErrReadOnlyBackend
	}
	rows, err := s.rows(ctx)
	if err != nil {
		return false, err
	}
	if findRow(rows, key) > 0 {
		return false, nil
	}

	err = s.traced(ctx, "append", func(ctx context.Context) error {
		_, err := s.svc.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.columnRange(),
			&sheets.ValueRange{Values: [][]interface{}{{key}}},
		).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveKey implements KeyStore. The cell is cleared rather than the row
// deleted, so row numbers of other keys stay stable.
func (s *SheetsKeyStore) RemoveKey(ctx context.Context, key string) (bool, error) {
	if s.readOnly {
		return false, apperrors.ErrReadOnlyBackend
	}
	rows, err := s.rows(ctx)
	if err != nil {
		return false, err
	}
	row := findRow(rows, key)
	if row == 0 {
		return false, nil
	}

	err = s.traced(ctx, "clear", func(ctx context.Context) error {
		_, err := s.svc.Spreadsheets.Values.Clear(
			s.spreadsheetID,
			fmt.Sprintf("%s!A%d", s.sheetName, row),
			&sheets.ClearValuesRequest{},
		).Context(ctx).Do()
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListKeys implements KeyStore
func (s *SheetsKeyStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for i, v := range rows {
		if v == "" || (i == 0 && isHeader(v)) {
			continue
		}
		keys = append(keys, v)
	}
	return keys, nil
}

// rows returns column A, one entry per sheet row
func (s *SheetsKeyStore) rows(ctx context.Context) ([]string, error) {
	var resp *sheets.ValueRange
	err := s.traced(ctx, "get", func(ctx context.Context) error {
		var err error
		resp, err = s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.columnRange()).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	rows := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		rows[i] = strings.TrimSpace(fmt.Sprint(row[0]))
	}
	return rows, nil
}

func (s *SheetsKeyStore) columnRange() string {
	return s.sheetName + "!A:A"
}

// traced runs a Sheets call inside a span and maps failures to storage errors
func (s *SheetsKeyStore) traced(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "storage.sheets."+operation,
		trace.WithAttributes(attribute.String("sheets.operation", operation)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int64("sheets.duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "sheets request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError("sheets "+operation+" failed", err)
	}
	return nil
}

// findRow returns the 1-based sheet row holding key, or 0
func findRow(rows []string, key string) int {
	for i, v := range rows {
		if i == 0 && isHeader(v) {
			continue
		}
		if v == key {
			return i + 1
		}
	}
	return 0
}

func isHeader(v string) bool {
	switch strings.ToLower(v) {
	case "key", "license_key", "licensekey":
		return true
	}
	return false
}
