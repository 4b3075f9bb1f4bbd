package tripwire

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"text/template"
)

// gridConfig holds configuration during site grid construction.
type gridConfig struct {
	urlTemplate string
	dimensions  map[string][]string
	siteOpts    []SiteOption
}

// GridOption configures [NewSiteGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template for site generation. The template
// uses text/template syntax with dimension keys as variables.
//
//	WithURLTemplate("https://shop.example.com/product/{{.item}}?region={{.region}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the values expanded into the URL template. Each key
// becomes a template variable and every combination of values yields one
// site.
//
// Returns an error if the map is empty, any dimension has no values, or
// any value is empty.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension %q has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension %q contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridSiteOptions applies opts to every generated site. Can be called
// multiple times; options accumulate in order.
func WithGridSiteOptions(opts ...SiteOption) GridOption {
	return func(cfg *gridConfig) error {
		cfg.siteOpts = append(cfg.siteOpts, opts...)
		return nil
	}
}

// NewSiteGrid creates one [Site] per combination of dimension values, all
// sharing selector and the options given with [WithGridSiteOptions].
//
// Dimension values are URL-encoded before interpolation and a template key
// with no dimension is an error. Site names have the form
// "Base Name (v1/v2)" with values ordered by sorted key.
//
//	sites, err := tripwire.NewSiteGrid("Price", "span.price",
//	    tripwire.WithURLTemplate("https://shop.example.com/product/{{.item}}"),
//	    tripwire.WithDimensions(map[string][]string{"item": {"gpu", "keyboard"}}),
//	    tripwire.WithGridSiteOptions(tripwire.WithRules(tripwire.OnDecrease())),
//	)
//	// "Price (gpu)" and "Price (keyboard)", usable with WithSites(sites...)
func NewSiteGrid(baseName, selector string, opts ...GridOption) ([]Site, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	sites := make([]Site, 0, len(combinations))
	for _, combo := range combinations {
		var buf strings.Builder
		if err := tmpl.Execute(&buf, urlEncodeMap(combo)); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := gridSiteName(baseName, combo)
		s, err := NewSite(name, buf.String(), selector, cfg.siteOpts...)
		if err != nil {
			return nil, fmt.Errorf("site %q: %w", name, err)
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// cartesianProduct generates all combinations of dimension values. Keys
// are iterated in sorted order and values keep their slice order.
//
//	{"x": ["a","b"], "y": ["1","2"]} -> [{a 1} {a 2} {b 1} {b 2}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	keys := slices.Sorted(maps.Keys(dims))
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	var result []map[string]string
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		// rightmost index advances first
		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

func gridSiteName(baseName string, combo map[string]string) string {
	keys := slices.Sorted(maps.Keys(combo))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}
