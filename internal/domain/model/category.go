package model

import "fmt"

// Category is the closed set of welfare spending categories. The numeric
// value is the category id the ledger contract stores.
type Category uint8

const (
	CategoryEducation Category = iota
	CategoryHealthcare
	CategoryFoodDistribution
	CategoryShelter
	CategoryDisasterRelief
	CategoryElderlyCare
	CategoryChildWelfare
	CategorySkillDevelopment
	CategorySanitation
	CategoryOther
)

// Categories lists every category in ledger id order.
func Categories() []Category {
	return []Category{
		CategoryEducation,
		CategoryHealthcare,
		CategoryFoodDistribution,
		CategoryShelter,
		CategoryDisasterRelief,
		CategoryElderlyCare,
		CategoryChildWelfare,
		CategorySkillDevelopment,
		CategorySanitation,
		CategoryOther,
	}
}

// String returns the stable storage name of the category.
func (c Category) String() string {
	switch c {
	case CategoryEducation:
		return "education"
	case CategoryHealthcare:
		return "healthcare"
	case CategoryFoodDistribution:
		return "food_distribution"
	case CategoryShelter:
		return "shelter"
	case CategoryDisasterRelief:
		return "disaster_relief"
	case CategoryElderlyCare:
		return "elderly_care"
	case CategoryChildWelfare:
		return "child_welfare"
	case CategorySkillDevelopment:
		return "skill_development"
	case CategorySanitation:
		return "sanitation"
	case CategoryOther:
		return "other"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c <= CategoryOther
}

// LedgerID returns the on-chain category id.
func (c Category) LedgerID() uint8 {
	return uint8(c)
}

// ParseCategory maps a storage name back to its Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}
