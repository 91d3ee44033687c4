package storage

import "testing"

func TestDateRange_MonthBounds(t *testing.T) {
	tests := []struct {
		start, end  string
		from, until string
	}{
		{"2025-01-01", "2025-03-01", "2025-01-01", "2025-04-01"},
		{"2025-01-15", "2025-02-15", "2025-01-01", "2025-03-01"},
		{"2024-11-01", "2024-12-31", "2024-11-01", "2025-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.start+".."+tt.end, func(t *testing.T) {
			r, err := ParseDateRange(tt.start, tt.end)
			if err != nil {
				t.Fatalf("ParseDateRange() error = %v", err)
			}
			if got := r.FromString(); got != tt.from {
				t.Errorf("FromString() = %s, want %s", got, tt.from)
			}
			if got := r.UntilString(); got != tt.until {
				t.Errorf("UntilString() = %s, want %s", got, tt.until)
			}
		})
	}
}

func TestParseDateRange_RejectsReversed(t *testing.T) {
	if _, err := ParseDateRange("2025-03-01", "2025-01-01"); err == nil {
		t.Fatal("reversed range should fail")
	}
}
