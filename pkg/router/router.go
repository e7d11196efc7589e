// Package router classifies requests and turns a category into an ordered
// provider plan.
package router

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/workyterm/workyterm/pkg/models"
	"github.com/workyterm/workyterm/pkg/registry"
)

// ErrNoProviders is returned when no enabled provider can serve a plan.
var ErrNoProviders = errors.New("no providers available")

// Catalog is the view of the registry the router needs.
type Catalog interface {
	Enabled() []models.ProviderDescriptor
}

// Router builds fallback plans from per-category defaults.
type Router struct {
	providers Catalog
	routes    map[models.TaskCategory]models.ProviderID
}

// New creates a Router. routes maps a category to its preferred provider;
// nil uses DefaultRoutes.
func New(providers Catalog, routes map[models.TaskCategory]models.ProviderID) *Router {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Router{providers: providers, routes: routes}
}

// DefaultRoutes returns the built-in category preferences.
func DefaultRoutes() map[models.TaskCategory]models.ProviderID {
	return map[models.TaskCategory]models.ProviderID{
		models.TaskResearch: models.ProviderGeminiCLI,
		models.TaskAnalysis: models.ProviderCodexCLI,
		models.TaskWriting:  models.ProviderClaudeCLI,
		models.TaskCreative: models.ProviderClaudeCLI,
		models.TaskEditing:  models.ProviderClaudeCLI,
		models.TaskGeneral:  models.ProviderClaudeCLI,
	}
}

// Default returns the configured default provider for a category.
func (r *Router) Default(cat models.TaskCategory) (models.ProviderID, bool) {
	id, ok := r.routes[cat]
	return id, ok
}

// Plan returns the providers to try, in order. An override yields exactly
// that provider. Otherwise the category default comes first (when enabled),
// followed by the remaining enabled providers in registry order.
func (r *Router) Plan(cat models.TaskCategory, override models.ProviderID) ([]models.ProviderID, error) {
	enabled := r.providers.Enabled()

	if override != "" {
		for _, d := range enabled {
			if d.ID == override {
				return []models.ProviderID{override}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownProvider, override)
	}

	if len(enabled) == 0 {
		return nil, ErrNoProviders
	}

	plan := make([]models.ProviderID, 0, len(enabled))
	head, hasHead := r.routes[cat]
	if hasHead {
		for _, d := range enabled {
			if d.ID == head {
				plan = append(plan, head)
				break
			}
		}
	}
	for _, d := range enabled {
		if len(plan) > 0 && d.ID == plan[0] {
			continue
		}
		plan = append(plan, d.ID)
	}
	return plan, nil
}

type keywordSet struct {
	category models.TaskCategory
	phrases  []string
}

// keywordTable is checked in order; the first category with a match wins.
// Editing precedes writing so "rewrite this email" is an edit, and writing
// precedes creative so "write a story" is writing.
var keywordTable = []keywordSet{
	{models.TaskResearch, []string{
		"research", "find", "search", "look up", "discover", "learn about",
		"what is", "who is", "where is", "when did", "how many",
		"statistics", "facts", "information", "sources", "reference",
	}},
	{models.TaskAnalysis, []string{
		"analyze", "analyse", "analysis", "review", "examine", "inspect",
		"assess", "evaluate", "code", "debug", "data", "compare", "contrast",
		"check", "audit", "test", "verify", "validate", "diagnose",
		"troubleshoot", "solve",
	}},
	{models.TaskEditing, []string{
		"edit", "proofread", "improve", "fix", "rewrite", "polish", "refine",
		"revise", "correct", "enhance", "clean up", "format", "restructure",
		"reorganize",
	}},
	{models.TaskWriting, []string{
		"write", "draft", "compose", "author", "blog", "article", "email",
		"letter", "document", "report", "essay", "story", "script", "copy",
		"content", "post", "message",
	}},
	{models.TaskCreative, []string{
		"create", "brainstorm", "ideas", "design", "imagine", "invent",
		"generate", "come up with", "think of", "suggest", "propose",
		"innovate", "concept", "vision", "plan",
	}},
}

// Classify maps free text to a category. Keywords match whole words (with
// simple inflections) on the lower-cased text; no match yields general.
func Classify(text string) models.TaskCategory {
	words := tokenize(text)
	if len(words) == 0 {
		return models.TaskGeneral
	}
	for _, set := range keywordTable {
		for _, phrase := range set.phrases {
			if containsPhrase(words, strings.Fields(phrase)) {
				return set.category
			}
		}
	}
	return models.TaskGeneral
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		matched := true
		for j, p := range phrase {
			if !wordMatches(words[i+j], p) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

var inflections = []string{"s", "es", "d", "ed", "ing"}

func wordMatches(word, keyword string) bool {
	if word == keyword {
		return true
	}
	rest, ok := strings.CutPrefix(word, keyword)
	if !ok {
		// "write" -> "writing", "analyze" -> "analyzing"
		stem := strings.TrimSuffix(keyword, "e")
		if stem == keyword || !strings.HasPrefix(word, stem) {
			return false
		}
		rest = strings.TrimPrefix(word, stem)
		return rest == "ing"
	}
	for _, suffix := range inflections {
		if rest == suffix {
			return true
		}
	}
	return false
}
