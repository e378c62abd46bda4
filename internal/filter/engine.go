// Package filter decides which listings match a user's notification rules.
package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"hollowscan/internal/model"
)

// Item is the text of a listing that rules match against.
type Item struct {
	Title   string
	Content string
}

// FromListing extracts the matchable text of l. Content holds the
// category, the country code and any description the payload carries.
func FromListing(l model.Listing) Item {
	var extra struct {
		Description string `json:"description"`
	}
	if len(l.Payload) > 0 {
		_ = json.Unmarshal(l.Payload, &extra)
	}
	parts := make([]string, 0, 3)
	for _, s := range []string{l.Category, l.CountryCode, extra.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return Item{
		Title:   l.Product().Title,
		Content: strings.Join(parts, " "),
	}
}

// Match checks whether an item passes the given set of rules.
// If no rules are provided, the item always passes.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func Match(item Item, rules []model.Rule) bool {
	if len(rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, r := range rules {
		switch r.Kind {
		case model.RuleInclude, model.RuleIncludeRe:
			hasIncludes = true
			if matchesRule(item, r) {
				anyIncludeMatched = true
			}
		case model.RuleExclude, model.RuleExcludeRe:
			if matchesRule(item, r) {
				return false
			}
		}
	}

	return !hasIncludes || anyIncludeMatched
}

func matchesRule(item Item, r model.Rule) bool {
	text := textForScope(item, r.Scope)
	switch r.Kind {
	case model.RuleInclude, model.RuleExclude:
		return strings.Contains(text, strings.ToLower(r.Value))
	case model.RuleIncludeRe, model.RuleExcludeRe:
		re, err := regexp.Compile("(?i)" + r.Value)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

func textForScope(item Item, scope model.RuleScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(item.Title)
	case model.ScopeContent:
		return strings.ToLower(item.Content)
	default:
		return strings.ToLower(item.Title + " " + item.Content)
	}
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
