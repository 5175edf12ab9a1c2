package cache

import (
	"fmt"
	"strings"
)

const (
	CategoriesKey      = "categories:all"
	ProductListPattern = "products:*"
)

// ProductListKey identifies one listing. Search is trimmed and lower-cased so
// equivalent queries share an entry.
func ProductListKey(category, search string) string {
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf("products:%s:%s", category, NormalizeSearch(search))
}

func NormalizeSearch(search string) string {
	return strings.ToLower(strings.TrimSpace(search))
}

func ProductKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func CartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}
