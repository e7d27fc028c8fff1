package repository

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var storeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ValidateStoreID enforces the slug contract: alphanumeric only, so the id
// is URL-safe and collides case-insensitively with nothing but itself.
func ValidateStoreID(storeID string) error {
	if !storeIDPattern.MatchString(storeID) {
		return ErrBadStoreID
	}
	return nil
}

// storeIDFilter matches a store id ignoring case; "TejaShop2024" and
// "tejashop2024" hit the same document.
func storeIDFilter(storeID string) bson.M {
	return bson.M{"_id": primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(storeID) + "$",
		Options: "i",
	}}
}

// suggestStoreID derives a candidate slug from a display name and walks
// numeric suffixes until taken reports a free one. "Teja's Shop" becomes
// tejasshop, then tejasshop2 and so on.
func suggestStoreID(name string, taken func(candidate string) (bool, error)) (string, error) {
	base := strings.ReplaceAll(slug.Make(name), "-", "")
	if base == "" {
		base = "store"
	}

	candidate := base
	for i := 2; ; i++ {
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}
