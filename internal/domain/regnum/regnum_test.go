package regnum

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeFoldsWidthCaseAndPunctuation(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"gxzz 20240001", "GXZZ20240001"},
		{"GXZZ-2024/0001", "GXZZ20240001"},
		{"ＧＸＺＺ２０２４０００１", "GXZZ20240001"},
		{"国械注准20243400123", "国械注准20243400123"},
		{"国械注准（2024）3400123", "国械注准20243400123"},
		{" gx-zz.2024_0001 ", "GXZZ20240001"},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "-()（）"} {
		if _, err := Normalize(raw); !errors.Is(err, ErrEmpty) {
			t.Fatalf("Normalize(%q) err = %v, want ErrEmpty", raw, err)
		}
	}
}

func TestNormalizeRejectsTooLong(t *testing.T) {
	raw := strings.Repeat("A", MaxLength+1)
	if _, err := Normalize(raw); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Normalize long err = %v, want ErrTooLong", err)
	}

	// exactly at the limit passes
	if _, err := Normalize(strings.Repeat("A", MaxLength)); err != nil {
		t.Fatalf("Normalize at limit: %v", err)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("gxzz-20240001", "GXZZ 2024 0001") {
		t.Fatalf("variants should normalize equal")
	}
	if Equal("GXZZ20240001", "GXZZ20240002") {
		t.Fatalf("distinct numbers must not compare equal")
	}
	if Equal("", "GXZZ20240001") {
		t.Fatalf("failed normalization must compare unequal")
	}
}
