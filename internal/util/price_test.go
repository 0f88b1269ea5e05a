package util

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		locale string
		want   string
	}{
		{name: "plain integer", input: "1500", locale: "ru", want: "1500"},
		{name: "currency suffix", input: "1 500 ₽", locale: "ru", want: "1500"},
		{name: "both separators dot last", input: "1,234.56", locale: "en", want: "1234.56"},
		{name: "both separators comma last", input: "1.234,56", locale: "ru", want: "1234.56"},
		{name: "repeated dots are grouping", input: "1.234.567", locale: "en", want: "1234567"},
		{name: "repeated commas are grouping", input: "1,234,567", locale: "ru", want: "1234567"},
		{name: "ru comma is decimal", input: "12,345", locale: "ru", want: "12.345"},
		{name: "ru dot groups thousands", input: "12.345", locale: "ru", want: "12345"},
		{name: "en dot is decimal", input: "12.345", locale: "en", want: "12.345"},
		{name: "en comma groups thousands", input: "12,345", locale: "en", want: "12345"},
		{name: "short tail is always decimal", input: "12,34", locale: "en", want: "12.34"},
		{name: "cny marker", input: "¥ 58.90", locale: "en", want: "58.9"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePrice(tc.input, tc.locale)
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tc.want {
				t.Fatalf("got %s want %s", got.String(), tc.want)
			}
		})
	}
}

func TestParsePriceRejectsNonNumeric(t *testing.T) {
	if _, err := ParsePrice("по запросу", "ru"); err == nil {
		t.Fatal("expected error for text without digits")
	}
	if _, err := ParsePrice("", "en"); err == nil {
		t.Fatal("expected error for empty input")
	}
}
