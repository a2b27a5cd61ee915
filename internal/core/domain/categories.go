package domain

// Category labels the knowledge-base area a page or query belongs to.
type Category string

const (
	CategoryGeneral      Category = "GENERAL"
	CategoryPayroll      Category = "PAYROLL"
	CategoryHiring       Category = "HIRING"
	CategoryOnboarding   Category = "ONBOARDING"
	CategoryCompliance   Category = "COMPLIANCE"
	CategoryScheduling   Category = "SCHEDULING"
	CategoryIntegrations Category = "INTEGRATIONS"
	CategoryPricing      Category = "PRICING"
	CategorySales        Category = "SALES"
	CategoryCaseStudies  Category = "CASE_STUDIES"
)

// salesCategories bias retrieval toward marketing and deal content. A query
// without sales intent should not be pinned to one of these.
var salesCategories = map[Category]struct{}{
	CategoryPricing:     {},
	CategorySales:       {},
	CategoryCaseStudies: {},
}

func IsSalesCategory(c Category) bool {
	_, ok := salesCategories[c]
	return ok
}

// NormalizeCategory maps free-form classifier output onto a known category,
// falling back to GENERAL.
func NormalizeCategory(raw string) Category {
	switch Category(normalizeCategoryKey(raw)) {
	case CategoryPayroll:
		return CategoryPayroll
	case CategoryHiring:
		return CategoryHiring
	case CategoryOnboarding:
		return CategoryOnboarding
	case CategoryCompliance:
		return CategoryCompliance
	case CategoryScheduling:
		return CategoryScheduling
	case CategoryIntegrations:
		return CategoryIntegrations
	case CategoryPricing:
		return CategoryPricing
	case CategorySales:
		return CategorySales
	case CategoryCaseStudies:
		return CategoryCaseStudies
	default:
		return CategoryGeneral
	}
}

func normalizeCategoryKey(raw string) string {
	out := make([]rune, 0, len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-('a'-'A'))
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '_')
		}
	}
	return string(out)
}
