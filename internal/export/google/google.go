// Package google exports finished leak reports to a Google Sheets
// spreadsheet, one row per leak, for users who track their finances there.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"leakwatch/internal/core"
	"leakwatch/internal/log"
	"leakwatch/internal/service"
)

// Config carries the spreadsheet target and OAuth material. Either the file
// or inline JSON variant may be set for client and token.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	OAuthClientFile string
	OAuthTokenFile  string
	OAuthClientJSON string
	OAuthTokenJSON  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ service.ReportExporter = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Leaks"
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentExport)
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	clientJSON, err := readMaterial(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	tokenJSON, err := readMaterial(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if clientJSON == nil || tokenJSON == nil {
		return nil, errors.New("missing oauth client or token material")
	}

	oauthCfg, err := googleoauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func readMaterial(inline, file string) ([]byte, error) {
	if inline = strings.TrimSpace(inline); inline != "" {
		return []byte(inline), nil
	}
	if file = strings.TrimSpace(file); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return b, nil
	}
	return nil, nil
}

// ExportReport appends one row per leak plus a totals row.
func (c *Client) ExportReport(ctx context.Context, userID string, report core.Report, analysisAt time.Time) error {
	if len(report.Leaks) == 0 {
		return nil
	}

	vr := &gsheet.ValueRange{Values: reportRows(userID, report, analysisAt)}
	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!A:H", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append report rows: %w", err)
	}

	c.logger.InfoContext(ctx, "Report exported to sheet",
		log.FieldUserID, userID,
		log.FieldLeakCount, len(report.Leaks),
		log.FieldSheetsRef, resp.Updates.UpdatedRange)
	return nil
}

// reportRows renders the report into sheet rows: timestamp, user, merchant,
// category, probability, annual saving, reasoning, step.
func reportRows(userID string, report core.Report, analysisAt time.Time) [][]any {
	ts := analysisAt.UTC().Format("2006-01-02 15:04")
	rows := make([][]any, 0, len(report.Leaks)+1)
	for _, l := range report.Leaks {
		rows = append(rows, []any{
			ts,
			userID,
			string(l.PatternKey),
			string(l.Category),
			l.Probability,
			l.EstimatedAnnualSaving.Units(),
			l.Reasoning,
			l.ActionableStep,
		})
	}
	rows = append(rows, []any{
		ts,
		userID,
		"TOTAL",
		string(report.ConfidenceLevel),
		"",
		report.TotalEstimatedAnnualSaving.Units(),
		"",
		"",
	})
	return rows
}
