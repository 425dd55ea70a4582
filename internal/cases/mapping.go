package cases

import "github.com/mixelka/clarify/pkg/models"

// Case categories used by specialists and the case UI
const (
	CaseCategoryBilling        = "billing"
	CaseCategoryMetering       = "metering"
	CaseCategoryContract       = "contract"
	CaseCategorySupplierSwitch = "supplier_switch"
	CaseCategoryGridUsage      = "grid_usage"
	CaseCategoryMasterData     = "master_data"
	CaseCategoryTechnical      = "technical"
	CaseCategoryGeneral        = "general"
)

var categoryMap = map[string]string{
	models.CategoryBilling:    CaseCategoryBilling,
	models.CategoryMetering:   CaseCategoryMetering,
	models.CategoryContract:   CaseCategoryContract,
	models.CategorySwitching:  CaseCategorySupplierSwitch,
	models.CategoryGridUsage:  CaseCategoryGridUsage,
	models.CategoryMasterData: CaseCategoryMasterData,
	models.CategoryTechnical:  CaseCategoryTechnical,
}

var priorityMap = map[string]string{
	"low":      "low",
	"medium":   "medium",
	"high":     "high",
	"critical": "urgent",
}

var effortMap = map[string]string{
	"small":  "quick",
	"medium": "standard",
	"large":  "extended",
}

func mapCategory(c string) string {
	if v, ok := categoryMap[c]; ok {
		return v
	}
	return CaseCategoryGeneral
}

func mapPriority(p string) string {
	if v, ok := priorityMap[p]; ok {
		return v
	}
	return "medium"
}

func mapEffort(e string) string {
	if v, ok := effortMap[e]; ok {
		return v
	}
	return "standard"
}
