package tax

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultCategory is used when a product or rate names no category
const DefaultCategory = "default"

// Rate is a percentage tax rate
type Rate struct {
	Title    string          `json:"title"`
	Rate     decimal.Decimal `json:"rate"`
	Country  string          `json:"country"`
	State    string          `json:"state,omitempty"`
	City     string          `json:"city,omitempty"`
	Category string          `json:"category"`
}

func (r Rate) specificity() int {
	s := 0
	if r.State != "" {
		s++
	}
	if r.City != "" {
		s += 2
	}
	return s
}

func (r Rate) matches(country, category, state, city string) bool {
	if !strings.EqualFold(r.Country, country) {
		return false
	}
	if !strings.EqualFold(r.Category, category) {
		return false
	}
	if r.State != "" && !strings.EqualFold(r.State, state) {
		return false
	}
	if r.City != "" && !strings.EqualFold(r.City, city) {
		return false
	}
	return true
}

// Resolver returns the rates applicable to a location and tax category
type Resolver interface {
	ApplicableTaxRates(ctx context.Context, country, category, state, city string) ([]Rate, error)
}

type rateFile struct {
	Rates []struct {
		Title    string  `yaml:"title"`
		Country  string  `yaml:"country"`
		State    string  `yaml:"state"`
		City     string  `yaml:"city"`
		Category string  `yaml:"category"`
		Rate     float64 `yaml:"rate"`
	} `yaml:"rates"`
}

// StaticResolver serves a fixed rate table
type StaticResolver struct {
	mu    sync.RWMutex
	rates []Rate
}

// NewStaticResolver creates a resolver over the given rates
func NewStaticResolver(rates []Rate) *StaticResolver {
	r := &StaticResolver{}
	r.set(rates)
	return r
}

func (r *StaticResolver) set(rates []Rate) {
	normalised := make([]Rate, len(rates))
	for i, rate := range rates {
		if rate.Category == "" {
			rate.Category = DefaultCategory
		}
		normalised[i] = rate
	}
	sort.SliceStable(normalised, func(i, j int) bool {
		return normalised[i].specificity() > normalised[j].specificity()
	})

	r.mu.Lock()
	r.rates = normalised
	r.mu.Unlock()
}

// ApplicableTaxRates returns matching rates, most specific first.
func (r *StaticResolver) ApplicableTaxRates(ctx context.Context, country, category, state, city string) ([]Rate, error) {
	if country == "" {
		return nil, nil
	}
	if category == "" {
		category = DefaultCategory
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Rate
	for _, rate := range r.rates {
		if rate.matches(country, category, state, city) {
			out = append(out, rate)
		}
	}
	return out, nil
}

// ParseRates decodes a YAML rate table
func ParseRates(data []byte) ([]Rate, error) {
	var f rateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tax rates: %w", err)
	}

	rates := make([]Rate, 0, len(f.Rates))
	for i, r := range f.Rates {
		if r.Country == "" {
			return nil, fmt.Errorf("tax rate %d: country is required", i)
		}
		if r.Rate < 0 {
			return nil, fmt.Errorf("tax rate %d: rate must not be negative", i)
		}
		rates = append(rates, Rate{
			Title:    r.Title,
			Rate:     decimal.NewFromFloat(r.Rate),
			Country:  strings.ToUpper(r.Country),
			State:    r.State,
			City:     r.City,
			Category: r.Category,
		})
	}
	return rates, nil
}

// LoadRates reads a YAML rate table from disk
func LoadRates(path string) ([]Rate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tax rates: %w", err)
	}
	return ParseRates(data)
}
