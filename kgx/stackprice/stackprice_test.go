package stackprice

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{"0", 0, false},
		{"1st", 64, false},
		{"1lc", 3456, false},
		{"1.5st", 96, false},
		{"0.5lc", 1728, false},
		{"2lc+3st+12", 7116, false},
		{"2lc + 3.5st + 12", 7148, false},
		{"2LC + 3ST", 7104, false},
		{"3.5st", 224, false},
		{"3.5", 0, true},
		{"", 0, true},
		{"abc", 0, true},
		{"1st+", 0, true},
		{"+1st", 0, true},
		{"-5", 0, true},
		{"st", 0, true},
		{"1stlc", 0, true},
		{"1.st", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{12, "12"},
		{63, "63"},
		{64, "1st"},
		{96, "1st 32"},
		{3456, "1lc"},
		{3520, "1lc 1st"},
		{7148, "2lc 3st 44"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Format(tt.n); got != tt.want {
				t.Errorf("Format(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatWithCount(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{12, "12"},
		{64, "1st (64)"},
		{7148, "2lc 3st 44 (7148)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatWithCount(tt.n); got != tt.want {
				t.Errorf("FormatWithCount(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, n := range []int64{64, 100, 3456, 7148, 10000} {
		got, err := Parse(Format(n))
		if err != nil {
			t.Fatalf("Parse(Format(%d)) error = %v", n, err)
		}
		if got != n {
			t.Errorf("Parse(Format(%d)) = %d", n, got)
		}
	}
}
