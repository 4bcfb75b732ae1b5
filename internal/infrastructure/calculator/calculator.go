package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

const maxExpressionLen = 512

// Calculator evaluates arithmetic for the agent. Expressions run without an
// environment, so only literals, operators and expr builtins are reachable.
type Calculator struct{}

func New() *Calculator {
	return &Calculator{}
}

func (c *Calculator) Evaluate(ctx context.Context, expression string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	input := normalize(expression)
	if input == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "calculate", errors.New("expression is empty"))
	}
	if len(input) > maxExpressionLen {
		return "", domain.WrapError(domain.ErrInvalidInput, "calculate", errors.New("expression is too long"))
	}

	out, err := expr.Eval(input, nil)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "calculate", err)
	}
	return format(out)
}

// normalize drops grouping commas from numbers such as 1,250,000. Commas
// inside a call's argument list or an array literal are separators and are
// kept, so max(1,250) still has two arguments.
func normalize(expression string) string {
	s := strings.TrimSpace(expression)
	var b strings.Builder
	b.Grow(len(s))
	var argLists []bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(':
			argLists = append(argLists, opensCall(s, i))
		case '[':
			argLists = append(argLists, true)
		case ')', ']':
			if len(argLists) > 0 {
				argLists = argLists[:len(argLists)-1]
			}
		case ',':
			inArgs := len(argLists) > 0 && argLists[len(argLists)-1]
			if !inArgs && isGroupingComma(s, i) {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// opensCall reports whether the parenthesis at i follows a function name.
func opensCall(s string, i int) bool {
	j := i
	for j > 0 && s[j-1] == ' ' {
		j--
	}
	start := j
	for start > 0 && isIdentByte(s[start-1]) {
		start--
	}
	return start < j && !isDigit(s[start])
}

func isGroupingComma(s string, i int) bool {
	if i == 0 || i+3 >= len(s) || !isDigit(s[i-1]) {
		return false
	}
	for k := i + 1; k <= i+3; k++ {
		if !isDigit(s[k]) {
			return false
		}
	}
	return i+4 == len(s) || !isDigit(s[i+4])
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func format(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", domain.WrapError(domain.ErrInvalidInput, "calculate", errors.New("result is not a finite number"))
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(n), nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "calculate", fmt.Errorf("unsupported result type %T", v))
	}
}
