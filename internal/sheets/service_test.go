package sheets

import (
	"testing"
	"time"

	"github.com/R1cK-ChaN/doc-parser/internal/storage"
	"github.com/R1cK-ChaN/doc-parser/pkg/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "full edit url",
			url:  "https://docs.google.com/spreadsheets/d/1AbC-dEf_123/edit#gid=0",
			want: "1AbC-dEf_123",
		},
		{
			name: "bare share url",
			url:  "https://docs.google.com/spreadsheets/d/xyz789",
			want: "xyz789",
		},
		{
			name:    "not a sheets url",
			url:     "https://example.com/some/path",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractSpreadsheetID(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("extractSpreadsheetID: %v", err)
			}
			if got != tt.want {
				t.Errorf("id = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummaryToValues(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	summary := storage.RunSummary{
		SHA256:     "ab12f00d",
		RunID:      2,
		SourceFile: "report.pdf",
		Status:     "completed",
		ChartCount: 3,
		TableCount: 1,
		Meta: models.ReportMeta{
			Title:       "Quarterly Review",
			Broker:      "Acme Securities",
			PublishDate: "2026-03-01",
		},
		CreatedAt: created,
	}

	row := summaryToValues(summary)
	if len(row) != columnSpan {
		t.Fatalf("row length = %d, want %d", len(row), columnSpan)
	}
	if row[0] != "ab12f00d" || row[1] != 2 || row[2] != "completed" {
		t.Errorf("identity columns = %v", row[:3])
	}
	if row[4] != 3 || row[5] != 1 {
		t.Errorf("count columns = %v", row[4:6])
	}
	if row[6] != "Quarterly Review" || row[7] != "Acme Securities" {
		t.Errorf("meta columns = %v", row[6:8])
	}
	if row[11] != "2026-03-14T09:30:00Z" {
		t.Errorf("created at = %v", row[11])
	}
}

func TestSummaryToValuesZeroTime(t *testing.T) {
	row := summaryToValues(storage.RunSummary{SHA256: "cd34"})
	if row[11] != "" {
		t.Errorf("created at for zero time = %q, want empty", row[11])
	}
}
