package domain

import (
	"errors"
	"testing"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "08:00", want: 480},
		{in: " 23:59 ", want: 1439},
		{in: "08:30:00", want: 510},
		{in: "08:30:59", want: 510},
		{in: "08:00:zz", wantErr: true},
		{in: "08:00:60", wantErr: true},
		{in: "08:00:", wantErr: true},
		{in: "08:00:-1", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "08:60", wantErr: true},
		{in: "08", wantErr: true},
		{in: "08:00:00:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidClock) {
				t.Fatalf("ParseClock(%q) error = %v, want ErrInvalidClock", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
