package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"reswatch/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const historySheet = "History"

// SheetsService mirrors the booking history into a spreadsheet. History
// records are immutable, so the sync is append-only.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetsService{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads the header cell to verify access and sharing.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, historySheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail extracts the account email to share the
// spreadsheet with.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendHistoryRecord appends one row to the history sheet.
func (s *SheetsService) AppendHistoryRecord(rec *models.BookingHistoryRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobID := ""
	if rec.WatchJobID != nil {
		jobID = *rec.WatchJobID
	}
	row := []interface{}{
		rec.ID,
		jobID,
		rec.Restaurant,
		rec.Date,
		rec.Time,
		rec.PartySize,
		rec.Platform,
		rec.Status,
		rec.ConfirmationCode,
		rec.ErrorDetails,
		rec.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, historySheet+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// WriteHeader sets up the column headers on a fresh spreadsheet.
func (s *SheetsService) WriteHeader(ctx context.Context) error {
	headers := []interface{}{
		"ID", "Watch Job", "Restaurant", "Date", "Time", "Party Size",
		"Platform", "Status", "Confirmation", "Error", "Created At",
	}
	valueRange := &sheets.ValueRange{Values: [][]interface{}{headers}}
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, historySheet+"!A1:K1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
