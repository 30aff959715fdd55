// Package catalog generates deterministic product catalogs for seeding the
// in-memory backend and search indices.
package catalog

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/google/uuid"

	"github.com/utafrali/search-gateway/internal/domain"
)

// idNamespace scopes generated product IDs so re-runs produce the same IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("search-gateway/catalog"))

// category is a facet value together with its share of the catalog and the
// product types sold under it.
type category struct {
	Name   string
	Weight float64 // share of total products (sums to 1.0)
	Types  []string
}

var categories = []category{
	{Name: "electronics", Weight: 0.30, Types: []string{"Laptop", "Gaming Laptop", "Tablet", "Phone", "Monitor", "Headphones"}},
	{Name: "books", Weight: 0.25, Types: []string{"Laptop Repair Guide", "Cookbook", "Novel", "Travel Guide", "Programming Handbook"}},
	{Name: "home", Weight: 0.20, Types: []string{"Desk Lamp", "Laptop Stand", "Armchair", "Rug", "Bookshelf"}},
	{Name: "clothing", Weight: 0.15, Types: []string{"Jacket", "Sweatshirt", "Trousers", "Scarf"}},
	{Name: "bags", Weight: 0.10, Types: []string{"Laptop Bag", "Backpack", "Tote Bag", "Shoulder Bag"}},
}

var brands = []string{"acme", "globex", "initech", "umbrella", "hooli", "stark", "wayne", "tyrell"}

var adjectives = []string{
	"Compact", "Classic", "Premium", "Everyday", "Lightweight",
	"Pro", "Slim", "Vintage", "Modern", "Rugged",
}

var colors = []string{"Black", "Navy", "Grey", "Beige", "Red", "Green", "White", "Silver"}

// Generate returns n products. The same n and seed always yield the same
// catalog.
func Generate(n int, seed int64) []domain.ProductHit {
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	products := make([]domain.ProductHit, 0, n)

	remaining := n
	idx := 0
	for i, c := range categories {
		count := int(float64(n) * c.Weight)
		if i == len(categories)-1 {
			count = remaining
		}
		remaining -= count

		for j := 0; j < count; j++ {
			productType := c.Types[j%len(c.Types)]
			adjective := adjectives[rng.Intn(len(adjectives))]
			color := colors[rng.Intn(len(colors))]

			products = append(products, domain.ProductHit{
				ID:       ProductID(idx),
				Title:    fmt.Sprintf("%s %s - %s", adjective, productType, color),
				Category: c.Name,
				Entity:   brands[idx%len(brands)],
			})
			idx++
		}
	}
	return products
}

// ProductID returns the stable ID of the idx-th generated product.
func ProductID(idx int) string {
	return uuid.NewSHA1(idNamespace, []byte(strconv.Itoa(idx))).String()
}
