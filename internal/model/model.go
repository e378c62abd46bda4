// Package model defines the domain types used across the application.
package model

import (
	"math"
	"time"
)

// CategoryAll selects every category of a region.
const CategoryAll = "ALL"

// FreeProductLimit is the number of distinct products a free user may open per day.
const FreeProductLimit = 4

// Unlimited is the remaining-views value reported for premium users.
const Unlimited = math.MaxInt

// Regions are the store regions the feed is partitioned by.
var Regions = []string{"USA Stores", "UK Stores", "Canada Stores"}

// FeedFilter scopes the feed to a region and a category.
type FeedFilter struct {
	Region   string
	Category string
}

// Key returns the composite region+category key of the filter.
func (f FeedFilter) Key() string {
	cat := f.Category
	if cat == "" {
		cat = CategoryAll
	}
	return f.Region + "|" + cat
}

// DailyViewRecord holds the products a free user opened on a calendar day.
type DailyViewRecord struct {
	Date     string   `json:"date"`
	Products []string `json:"products"`
}

// Contains reports whether the product was already viewed on the record's day.
func (r DailyViewRecord) Contains(productID string) bool {
	for _, id := range r.Products {
		if id == productID {
			return true
		}
	}
	return false
}

// ViewResult is the outcome of a product view attempt.
type ViewResult struct {
	Allowed   bool
	Remaining int
}

// IsUnlimited reports whether the result belongs to a premium user.
func (r ViewResult) IsUnlimited() bool {
	return r.Remaining == Unlimited
}

// User is the local device user.
type User struct {
	ID              string     `json:"id"`
	IsPremium       bool       `json:"isPremium"`
	SubscriptionEnd *time.Time `json:"subscriptionEnd"`
}

// UserStatus is the server-side quota summary of a user.
type UserStatus struct {
	ViewsUsed  int `json:"views_used"`
	ViewsLimit int `json:"views_limit"`
}

// Categories maps a region name to its ordered category names.
type Categories map[string][]string

// LinkKey is the response of the Telegram link key endpoint.
type LinkKey struct {
	Success bool   `json:"success"`
	Key     string `json:"link_key"`
	Detail  string `json:"detail"`
}

// LinkStatus is the response of the Telegram link status endpoint.
type LinkStatus struct {
	Success      bool       `json:"success"`
	Linked       bool       `json:"linked"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *Timestamp `json:"premium_until"`
}

// RuleKind defines the type of notification rule.
type RuleKind string

// Supported rule kinds.
const (
	RuleInclude   RuleKind = "include"
	RuleExclude   RuleKind = "exclude"
	RuleIncludeRe RuleKind = "include_re"
	RuleExcludeRe RuleKind = "exclude_re"
)

// RuleScope defines which part of a listing a rule matches against.
type RuleScope string

// Supported rule scopes.
const (
	ScopeTitle   RuleScope = "title"
	ScopeContent RuleScope = "content"
	ScopeAll     RuleScope = "all"
)

// Rule is a keyword or regex rule deciding which new listings trigger a notification.
type Rule struct {
	ID    int64     `json:"id"`
	Kind  RuleKind  `json:"kind"`
	Scope RuleScope `json:"scope"`
	Value string    `json:"value"`
}
