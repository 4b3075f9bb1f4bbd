package shop

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		cents int
		want  string
	}{
		{129999, "1.299,99 €"},
		{34900, "349,00 €"},
		{100005, "1.000,05 €"},
		{105, "1,05 €"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p := &product{Cents: tt.cents}
			if got := p.Price(); got != tt.want {
				t.Errorf("Price() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleProduct(t *testing.T) {
	s := New(slog.New(slog.DiscardHandler))
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/gpu", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`<h1 class="title">GPU</h1>`, `<span class="price">`, `<div id="stock">`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/toaster", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown product status = %d, want 404", rec.Code)
	}
}
