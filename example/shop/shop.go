// Package shop is a mock web shop for trying tripwire locally. Product
// prices drift and stock flips every 20-60 seconds.
package shop

import (
	"fmt"
	"html/template"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

type product struct {
	Name    string
	Cents   int
	InStock bool

	nextChangeAt time.Time
}

// Price renders the price the way many European shops do: "1.299,99 €".
func (p *product) Price() string {
	euros, cents := p.Cents/100, p.Cents%100
	whole := fmt.Sprintf("%d", euros)
	if euros >= 1000 {
		whole = fmt.Sprintf("%d.%03d", euros/1000, euros%1000)
	}
	return fmt.Sprintf("%s,%02d €", whole, cents)
}

var page = template.Must(template.New("product").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Name}}</title></head>
<body>
  <h1 class="title">{{.Name}}</h1>
  <span class="price">{{.Price}}</span>
  <div id="stock">{{if .InStock}}In stock{{else}}Sold out{{end}}</div>
</body>
</html>
`))

// Shop serves /product/{slug} for a fixed catalogue.
type Shop struct {
	mu       sync.Mutex
	products map[string]*product
	logger   *slog.Logger
}

// New creates a shop with a GPU, a monitor and a keyboard.
func New(logger *slog.Logger) *Shop {
	now := time.Now()
	return &Shop{
		products: map[string]*product{
			"gpu":      {Name: "GPU", Cents: 129999, InStock: true, nextChangeAt: nextChange(now)},
			"monitor":  {Name: "Monitor", Cents: 34900, InStock: false, nextChangeAt: nextChange(now)},
			"keyboard": {Name: "Keyboard", Cents: 8999, InStock: true, nextChangeAt: nextChange(now)},
		},
		logger: logger,
	}
}

// Handler returns the shop's routes.
func (s *Shop) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/product/{slug}", s.handleProduct)
	return r
}

func (s *Shop) handleProduct(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	// simulate small latency variance
	time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

	s.mu.Lock()
	p, ok := s.products[slug]
	if !ok {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	s.drift(slug, p, time.Now())
	view := *p
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, &view); err != nil {
		s.logger.Error("failed to render product", "product", slug, "error", err)
	}
}

// drift changes p once its scheduled change time has passed. Caller holds s.mu.
func (s *Shop) drift(slug string, p *product, now time.Time) {
	if now.Before(p.nextChangeAt) {
		return
	}
	old := p.Price()

	// up to 10% either way, never below one euro
	delta := p.Cents * (rand.Intn(21) - 10) / 100
	p.Cents = max(p.Cents+delta, 100)
	if rand.Intn(3) == 0 {
		p.InStock = !p.InStock
	}
	p.nextChangeAt = nextChange(now)

	s.logger.Info("product changed", "product", slug, "from", old, "to", p.Price(), "in_stock", p.InStock)
}

func nextChange(now time.Time) time.Time {
	return now.Add(time.Duration(20+rand.Intn(41)) * time.Second)
}
