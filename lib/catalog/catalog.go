// Package catalog serves the labeled items image-grid challenges are
// built from. The engine only needs stable item IDs and category labels;
// serving the actual image bytes belongs to the asset pipeline in front
// of it.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

var (
	ErrNoSuchCategory = errors.New("catalog: no such category")
	ErrNotEnoughItems = errors.New("catalog: not enough items")
)

// Item is one candidate cell for an image grid.
type Item struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// Interface is the challenge content source. Implementations must be safe
// for concurrent use.
type Interface interface {
	// RandomCategory picks the prompt category for a new grid.
	RandomCategory() string

	// CategoryItems returns every item in a category.
	CategoryItems(category string) ([]Item, error)

	// RandomItems draws n distinct items from one category.
	RandomItems(category string, n int) ([]Item, error)

	// RandomDistractors draws n distinct items from any category except
	// the one given.
	RandomDistractors(category string, n int) ([]Item, error)
}

// Memory is the built-in in-process catalog. The zero value is not
// usable; construct with New.
type Memory struct {
	mu         sync.Mutex
	rng        *rand.Rand
	categories []string
	items      map[string][]Item
}

var _ Interface = &Memory{}

// New builds a Memory catalog over the given items. The seed fixes the
// draw order, which tests rely on; production callers should seed from
// crypto randomness.
func New(seed uint64, items []Item) (*Memory, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrNotEnoughItems)
	}

	byCategory := map[string][]Item{}
	var categories []string

	for _, item := range items {
		if _, ok := byCategory[item.Category]; !ok {
			categories = append(categories, item.Category)
		}
		byCategory[item.Category] = append(byCategory[item.Category], item)
	}

	return &Memory{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		categories: categories,
		items:      byCategory,
	}, nil
}

func (m *Memory) RandomCategory() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.categories[m.rng.IntN(len(m.categories))]
}

func (m *Memory) CategoryItems(category string) ([]Item, error) {
	items, ok := m.items[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchCategory, category)
	}

	result := make([]Item, len(items))
	copy(result, items)
	return result, nil
}

func (m *Memory) RandomItems(category string, n int) ([]Item, error) {
	items, ok := m.items[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchCategory, category)
	}

	return m.draw(items, n)
}

func (m *Memory) RandomDistractors(category string, n int) ([]Item, error) {
	var pool []Item
	for cat, items := range m.items {
		if cat == category {
			continue
		}
		pool = append(pool, items...)
	}

	return m.draw(pool, n)
}

func (m *Memory) draw(pool []Item, n int) ([]Item, error) {
	if len(pool) < n {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnoughItems, n, len(pool))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	shuffled := make([]Item, len(pool))
	copy(shuffled, pool)
	m.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:n], nil
}
