package i18n_test

import (
	"testing"

	"github.com/stockflow/stockflow-backend/pkg/i18n"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

type translateInput struct {
	locale string
	key    string
	params map[string]string
}

func TestLocalizer_T(t *testing.T) {
	cases := []testutil.TestCase[translateInput, string]{
		{
			Name:     "vietnamese resource message",
			Input:    translateInput{locale: i18n.LocaleVietnamese, key: "errors.not_found", params: map[string]string{"resource": "sản phẩm"}},
			Expected: "Không tìm thấy sản phẩm",
		},
		{
			Name:     "english message with params",
			Input:    translateInput{locale: i18n.LocaleEnglish, key: "stock.insufficient_stock", params: map[string]string{"product": "Gạch men", "remaining": "3"}},
			Expected: "product Gạch men has insufficient stock (3 remaining)",
		},
		{
			Name:     "unsupported locale falls back to vietnamese",
			Input:    translateInput{locale: "fr", key: "errors.conflict"},
			Expected: "Dữ liệu bị xung đột",
		},
		{
			Name:     "missing key returns the key itself",
			Input:    translateInput{locale: i18n.LocaleVietnamese, key: "stock.nonexistent_key"},
			Expected: "stock.nonexistent_key",
		},
	}

	testutil.RunTestCases(t, cases, func(in translateInput) (string, error) {
		if in.params != nil {
			return i18n.TWithLocale(in.locale, in.key, in.params), nil
		}
		return i18n.TWithLocale(in.locale, in.key), nil
	})
}

func TestParseAcceptLanguage(t *testing.T) {
	cases := []testutil.TestCase[string, string]{
		{Name: "empty header defaults to vietnamese", Input: "", Expected: i18n.LocaleVietnamese},
		{Name: "english variants", Input: "en-US,en;q=0.9", Expected: i18n.LocaleEnglish},
		{Name: "vietnamese", Input: "vi-VN", Expected: i18n.LocaleVietnamese},
	}

	testutil.RunTestCases(t, cases, func(header string) (string, error) {
		return i18n.ParseAcceptLanguage(header), nil
	})
}
