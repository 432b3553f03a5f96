package store_test

import (
	"testing"
	"time"

	"github.com/R1cK-ChaN/doc-parser/internal/store"
)

func TestEpochFromDate(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  string // expected date rendered back, when valid
	}{
		{"2024-03-01", true, "2024-03-01"},
		{"2024/03/01", true, "2024-03-01"},
		{"January 2, 2024", true, "2024-01-02"},
		{"2 January 2024", true, "2024-01-02"},
		{"", false, ""},
		{"sometime in Q4", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := store.EpochFromDate(tt.in)
			if got.Valid != tt.valid {
				t.Fatalf("EpochFromDate(%q).Valid = %v, want %v", tt.in, got.Valid, tt.valid)
			}
			if !tt.valid {
				return
			}
			if rendered := time.Unix(got.Int64, 0).UTC().Format("2006-01-02"); rendered != tt.want {
				t.Errorf("EpochFromDate(%q) = %s, want %s", tt.in, rendered, tt.want)
			}
		})
	}
}
