package calculator

import (
	"context"
	"testing"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{expr: "1 + 2 * 3", want: "7"},
		{expr: "600000 / 1500000 * 100", want: "40"},
		{expr: "1,250,000 - 250,000", want: "1000000"},
		{expr: "-400000 + 1000000", want: "600000"},
		{expr: "10 / 4", want: "2.5"},
		{expr: "(1,250,000 - 250,000) / 1,000", want: "1000"},
		{expr: "max(1,250)", want: "250"},
		{expr: "max(1,250 + 1, 10)", want: "251"},
	}
	calc := New()
	for _, tc := range cases {
		got, err := calc.Evaluate(context.Background(), tc.expr)
		if err != nil {
			t.Fatalf("Evaluate(%q) error = %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("Evaluate(%q) = %q, want %q", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	calc := New()
	for _, input := range []string{"", "1/0", "revenue * 2", "\"abc\""} {
		if _, err := calc.Evaluate(context.Background(), input); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Evaluate(%q) expected invalid input, got %v", input, err)
		}
	}
}
