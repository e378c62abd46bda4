package bot

import (
	"fmt"
	"strconv"
	"strings"

	"hollowscan/internal/model"
)

// RuleArgs holds the parsed arguments of a rule command.
type RuleArgs struct {
	Scope model.RuleScope
	Value string
}

// ParseRuleCommand parses arguments for /include, /exclude, etc.
// Format: [-s title|content|all] <value...>
func ParseRuleCommand(args string) (RuleArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return RuleArgs{}, fmt.Errorf("usage: [-s title|content|all] <value>")
	}

	scope := model.ScopeAll
	rest := parts

	if len(rest) >= 2 && rest[0] == "-s" {
		switch rest[1] {
		case "title":
			scope = model.ScopeTitle
		case "content":
			scope = model.ScopeContent
		case "all":
			scope = model.ScopeAll
		default:
			return RuleArgs{}, fmt.Errorf("invalid scope %q, use: title, content, all", rest[1])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return RuleArgs{}, fmt.Errorf("rule value is required")
	}

	return RuleArgs{
		Scope: scope,
		Value: strings.Join(rest, " "),
	}, nil
}

// ParseRuleID extracts a rule ID, with or without its R prefix.
func ParseRuleID(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("rule ID is required")
	}
	s = strings.TrimPrefix(strings.TrimPrefix(strings.Fields(s)[0], "R"), "r")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rule ID %q", args)
	}
	return id, nil
}

// ParseListingID extracts a listing ID from a command argument string.
func ParseListingID(args string) (model.ListingID, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", fmt.Errorf("listing ID is required")
	}
	return model.ListingID(fields[0]), nil
}

// ParsePage extracts a 1-based page number; empty means the first page.
func ParsePage(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page must be a positive number")
	}
	return page, nil
}

// MatchName finds name in options case-insensitively and returns the
// canonical spelling.
func MatchName(name string, options []string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, o := range options {
		if strings.EqualFold(o, name) {
			return o, true
		}
	}
	return "", false
}
