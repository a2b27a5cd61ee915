package usecase

import (
	"context"
	"regexp"

	"github.com/hrstream/knowledge-retrieval/internal/core/domain"
)

// Keyword rules used when the analysis capability is unavailable. Order
// matters: the first matching category becomes primary, later matches
// become secondary.
var categoryRules = []struct {
	category domain.Category
	pattern  *regexp.Regexp
}{
	{domain.CategoryPayroll, regexp.MustCompile(`(?i)\b(payroll|pay(check|stub)?|wages?|salar(y|ies)|tips?|taxes|w-?2|1099|direct deposit)\b`)},
	{domain.CategoryHiring, regexp.MustCompile(`(?i)\b(hir(e|ing)|applicants?|candidates?|job post(ing)?s?|recruit(ing|ment)?|interviews?)\b`)},
	{domain.CategoryOnboarding, regexp.MustCompile(`(?i)\b(onboard(ing)?|i-?9|e-?verify|new hire paperwork|background checks?)\b`)},
	{domain.CategoryCompliance, regexp.MustCompile(`(?i)\b(complian(ce|t)|regulations?|labor law|overtime|minimum wage)\b`)},
	{domain.CategoryScheduling, regexp.MustCompile(`(?i)\b(schedul(e|ing)|shifts?|clock (in|out)|time track(ing)?|attendance)\b`)},
	{domain.CategoryIntegrations, regexp.MustCompile(`(?i)\b(integrat(e|ion|ions)|api|webhooks?|sync(ing)?|sso)\b`)},
	{domain.CategoryPricing, regexp.MustCompile(`(?i)\b(pricing|prices?|costs?|plans?|quotes?|subscriptions?)\b`)},
	{domain.CategorySales, regexp.MustCompile(`(?i)\b(demo|sales|buy|purchas(e|ing)|upgrade|contact sales)\b`)},
}

var (
	salesIntentPattern     = regexp.MustCompile(`(?i)\b(buy|purchase|demo|quote|how much|pricing|upgrade|contact sales)\b`)
	technicalIntentPattern = regexp.MustCompile(`(?i)\b(api|webhooks?|endpoints?|configur(e|ation)|integrat(e|ion)|csv|export|sso|oauth|error code)\b`)
	navigationalPattern    = regexp.MustCompile(`(?i)\b(where (is|can i find)|link to|page for|go to)\b`)
)

const heuristicConfidence = 0.3

// analyzeQuery runs the analysis capability and substitutes the keyword
// heuristic when it fails, so the pipeline never stops at this stage.
func (uc *RetrieveUseCase) analyzeQuery(ctx context.Context, text string) domain.QueryAnalysis {
	analysis, err := uc.analyzer.Analyze(ctx, text)
	if err != nil {
		uc.logger.Warn("analysis_fallback", "error", err)
		uc.metrics.IncAnalysisFallback()
		return heuristicAnalysis(text)
	}
	return normalizeAnalysis(analysis)
}

// heuristicAnalysis is the rule-based substitute for the classifier. Its
// confidence is deliberately low so downstream stages treat it loosely.
func heuristicAnalysis(text string) domain.QueryAnalysis {
	analysis := domain.QueryAnalysis{
		PrimaryCategory: domain.CategoryGeneral,
		TechnicalLevel:  2,
		Intent:          domain.IntentInformational,
		Confidence:      heuristicConfidence,
	}

	for _, rule := range categoryRules {
		if !rule.pattern.MatchString(text) {
			continue
		}
		if analysis.PrimaryCategory == domain.CategoryGeneral {
			analysis.PrimaryCategory = rule.category
		} else {
			analysis.SecondaryCategories = append(analysis.SecondaryCategories, rule.category)
		}
	}

	switch {
	case technicalIntentPattern.MatchString(text):
		analysis.Intent = domain.IntentTechnical
		analysis.TechnicalLevel = 4
	case salesIntentPattern.MatchString(text):
		analysis.Intent = domain.IntentSales
	case navigationalPattern.MatchString(text):
		analysis.Intent = domain.IntentNavigational
	}

	return analysis
}

// normalizeAnalysis bounds capability output so the rest of the pipeline
// can rely on its shape.
func normalizeAnalysis(a domain.QueryAnalysis) domain.QueryAnalysis {
	if a.PrimaryCategory == "" {
		a.PrimaryCategory = domain.CategoryGeneral
	}
	if a.TechnicalLevel != 0 {
		a.TechnicalLevel = domain.ClampTechnicalLevel(a.TechnicalLevel)
	}
	if a.Intent == "" {
		a.Intent = domain.IntentInformational
	}
	a.Confidence = domain.ClampScore(a.Confidence)
	for i := range a.Entities {
		a.Entities[i].Confidence = domain.ClampScore(a.Entities[i].Confidence)
	}
	return a
}
