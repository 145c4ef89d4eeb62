package catalog

import "fmt"

// defaultCategories are the stock challenge categories. Twelve items per
// category keeps every draw the grid builder makes satisfiable with room
// to spare.
var defaultCategories = []string{
	"traffic-light",
	"bicycle",
	"crosswalk",
	"bus",
	"fire-hydrant",
	"bridge",
}

const defaultItemsPerCategory = 12

// NewDefault builds a Memory catalog over the stock categories.
func NewDefault(seed uint64) (*Memory, error) {
	var items []Item
	for _, category := range defaultCategories {
		for i := range defaultItemsPerCategory {
			items = append(items, Item{
				ID:       fmt.Sprintf("%s/%03d", category, i),
				Category: category,
			})
		}
	}

	return New(seed, items)
}
