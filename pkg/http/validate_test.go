package http

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type priceQuery struct {
	Symbol   string `query:"symbol" validate:"required"`
	Category string `query:"category" default:"crypto" validate:"oneof=crypto forex"`
}

func bindContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest("GET", target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	c := bindContext("/api/price?symbol=BTC/USD")

	req := &priceQuery{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		t.Fatalf("unexpected validation failure: %v", verr)
	}
	if req.Category != "crypto" {
		t.Fatalf("default category not applied, got %q", req.Category)
	}
}

func TestReadAndValidateRequestMissingRequired(t *testing.T) {
	c := bindContext("/api/price")

	verr := ReadAndValidateRequest(c, &priceQuery{})
	if verr == nil {
		t.Fatal("expected validation failure for missing symbol")
	}
	errs, ok := verr.([]ValidationError)
	if !ok || len(errs) == 0 {
		t.Fatalf("unexpected failure shape: %#v", verr)
	}
	if errs[0].Code != "ERR_REQUIRED" || errs[0].Field != "Symbol" {
		t.Fatalf("got %+v", errs[0])
	}
}

func TestReadAndValidateRequestRejectsUnknownCategory(t *testing.T) {
	c := bindContext("/api/price?symbol=BTC/USD&category=bonds")

	verr := ReadAndValidateRequest(c, &priceQuery{})
	errs, ok := verr.([]ValidationError)
	if !ok || len(errs) == 0 {
		t.Fatalf("expected oneof failure, got %#v", verr)
	}
	if errs[0].Code != "ERR_ONEOF" {
		t.Fatalf("got %+v", errs[0])
	}
}
