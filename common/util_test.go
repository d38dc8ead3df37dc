package common

import (
	"testing"
)

func TestGetSortingCondition(t *testing.T) {
	tests := []struct {
		sort                   string
		expectedOrderBy        string
		expectedOrderDirection string
	}{
		{"", "created_at", "DESC"},
		{"created_at", "created_at", "ASC"},
		{"-created_at", "created_at", "DESC"},
		{"+created_at", "created_at", "ASC"},
		{"non_exist", "created_at", "DESC"},
		{"-non_exist", "created_at", "DESC"},
		{"block_height", "block_height", "ASC"},
		{"-block_height", "block_height", "DESC"},
		{"id", "id", "ASC"},
		{"-id", "id", "DESC"},
	}

	for _, tt := range tests {
		orderBy, orderDirection := GetSortingCondition(tt.sort)

		if orderBy != tt.expectedOrderBy {
			t.Errorf("sort: %s -> orderBy: %s, expected: %s", tt.sort, orderBy, tt.expectedOrderBy)
		}

		if orderDirection != tt.expectedOrderDirection {
			t.Errorf("sort: %s -> orderDirection: %s, expected: %s", tt.sort, orderDirection, tt.expectedOrderDirection)
		}
	}
}

func TestGetPairID(t *testing.T) {
	tests := []struct {
		a, b     string
		expected string
	}{
		{"untrn", "uusdc", "untrn<>uusdc"},
		{"uusdc", "untrn", "untrn<>uusdc"},
		{"ibc/B559", "untrn", "ibc/B559<>untrn"},
		{"same", "same", "same<>same"},
	}

	for _, tt := range tests {
		if got := GetPairID(tt.a, tt.b); got != tt.expected {
			t.Errorf("GetPairID(%s, %s) = %s, expected: %s", tt.a, tt.b, got, tt.expected)
		}
		if GetPairID(tt.a, tt.b) != GetPairID(tt.b, tt.a) {
			t.Errorf("GetPairID(%s, %s) is not symmetric", tt.a, tt.b)
		}
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{" 0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED ", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"0x1234", "", true},
		{"neutron1qyqszqgpqyqszqgpqyqszqgpqyqszqgp", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeAddress(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeAddress(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeAddress(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("NormalizeAddress(%q) = %s, expected: %s", tt.input, got, tt.expected)
		}
	}
}
