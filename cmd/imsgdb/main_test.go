package main

import "testing"

func TestParseReference(t *testing.T) {
	tests := []struct {
		in      string
		target  string
		id      int64
		wantErr bool
	}{
		{"+15551234567#42", "+15551234567", 42, false},
		{"+15551234567", "+15551234567", 0, false},
		{"42", "", 42, false},
		{" 7 ", "", 7, false},
		{"", "", 0, true},
		{"15551234567#4", "", 0, true},
		{"+15551234567#x", "", 0, true},
		{"0", "", 0, true},
		{"abc", "", 0, true},
	}
	for _, tt := range tests {
		target, id, err := parseReference(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if target != tt.target || id != tt.id {
			t.Errorf("%q: got (%q, %d), want (%q, %d)", tt.in, target, id, tt.target, tt.id)
		}
	}
}
