package repository

import (
	"strings"
	"testing"
)

func TestListParams_Normalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		in           ListParams
		wantPage     int
		wantPageSize int
	}{
		{name: "zero values", in: ListParams{}, wantPage: 1, wantPageSize: DefaultPageSize},
		{name: "negative page", in: ListParams{Page: -3, PageSize: 10}, wantPage: 1, wantPageSize: 10},
		{name: "page size capped", in: ListParams{Page: 2, PageSize: 1000}, wantPage: 2, wantPageSize: MaxPageSize},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.in.Normalize()
			if got.Page != tc.wantPage || got.PageSize != tc.wantPageSize {
				t.Fatalf("Normalize() = page %d size %d, want %d/%d", got.Page, got.PageSize, tc.wantPage, tc.wantPageSize)
			}
		})
	}
}

func TestClaimSQL_SingleRowConditionalUpdate(t *testing.T) {
	t.Parallel()

	normalized := strings.Join(strings.Fields(claimSQL), " ")
	for _, fragment := range []string{
		"UPDATE notes SET status = ?, locked_at = ?, updated_at = ?",
		"WHERE status = ? AND release_at <= ?",
		"ORDER BY release_at ASC, seq ASC",
		"FOR UPDATE SKIP LOCKED LIMIT 1",
		"RETURNING *",
	} {
		if !strings.Contains(normalized, fragment) {
			t.Fatalf("claim statement missing %q:\n%s", fragment, normalized)
		}
	}
	if strings.Count(normalized, "LIMIT 1") != 1 {
		t.Fatalf("claim statement must pick exactly one row:\n%s", normalized)
	}
}
