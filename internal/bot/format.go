package bot

import (
	"fmt"
	"strings"
	"time"

	"hollowscan/internal/model"
)

// FormatFeedPage formats one page of the feed for display.
func FormatFeedPage(f model.FeedFilter, page int, items []model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s / %s, page %d\n", f.Region, categoryLabel(f.Category), page)
	if len(items) == 0 {
		b.WriteString("\nNo deals on this page.")
		return b.String()
	}
	for i, l := range items {
		p := l.Product()
		fmt.Fprintf(&b, "\n%d. %s", i+1, titleOf(p))
		switch {
		case l.IsLocked:
			b.WriteString("  [premium]")
		case p.Price.IsSet():
			fmt.Fprintf(&b, "  %s", model.FormatMoney(p.Price.Float()))
		}
		fmt.Fprintf(&b, "\n   /view %s", l.ID)
	}
	return b.String()
}

// FormatDetail formats the detail screen of a listing after a view was
// allowed.
func FormatDetail(l model.Listing, res model.ViewResult, saved bool) string {
	p := l.Product()
	var b strings.Builder
	b.WriteString(titleOf(p))
	if l.Category != "" {
		fmt.Fprintf(&b, "\nCategory: %s", l.Category)
	}
	if l.CountryCode != "" {
		fmt.Fprintf(&b, "\nCountry: %s", l.CountryCode)
	}
	if !l.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\nFound: %s", l.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}

	b.WriteString("\n")
	if p.Price.IsSet() {
		fmt.Fprintf(&b, "\nBuy price: %s", model.FormatMoney(p.Price.Float()))
	}
	if p.Resell.IsSet() {
		fmt.Fprintf(&b, "\nResell price: %s", model.FormatMoney(p.Resell.Float()))
	}
	if p.Price.IsSet() && p.Resell.IsSet() {
		fmt.Fprintf(&b, "\nProfit after %d%% fees: %s", model.DefaultFeePercent,
			model.FormatMoney(p.Profit(model.DefaultFeePercent)))
		fmt.Fprintf(&b, "\nROI: %.1f%%", p.ReturnOnInvestment(model.DefaultFeePercent))
	} else if p.ROI.IsSet() {
		fmt.Fprintf(&b, "\nROI: %s%%", strings.TrimSuffix(string(p.ROI), "%"))
	}

	links := collectLinks(p)
	if len(links) > 0 {
		b.WriteString("\n\nLinks:")
		for _, ln := range links {
			fmt.Fprintf(&b, "\n%s: %s", ln.Label, ln.URL)
		}
	}

	fmt.Fprintf(&b, "\n\nShare: %s", l.DeepLink())
	if saved {
		b.WriteString("\nSaved. /save " + string(l.ID) + " to remove.")
	} else {
		b.WriteString("\n/save " + string(l.ID) + " to bookmark.")
	}
	if !res.IsUnlimited() {
		fmt.Fprintf(&b, "\n\nViews left today: %d", res.Remaining)
	}
	return b.String()
}

// FormatLimitReached is shown when a free user runs out of views.
func FormatLimitReached(limit int) string {
	return fmt.Sprintf("Daily limit reached: you have opened %d products today.\n"+
		"The limit resets at midnight. Upgrade to premium for unlimited views (/link).", limit)
}

// FormatSavedList formats the bookmarked listings.
func FormatSavedList(items []model.Listing) string {
	if len(items) == 0 {
		return "No saved products yet. Use /save <id> to bookmark one."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Saved products (%d):\n", len(items))
	for _, l := range items {
		fmt.Fprintf(&b, "\n%s\n   /view %s", titleOf(l.Product()), l.ID)
	}
	return b.String()
}

// FormatCategories lists the categories of the current region.
func FormatCategories(cats model.Categories, f model.FeedFilter) string {
	names := cats[f.Region]
	var b strings.Builder
	fmt.Fprintf(&b, "Categories in %s:\n", f.Region)
	all := "ALL"
	if f.Category == "" || f.Category == model.CategoryAll {
		all += " (current)"
	}
	fmt.Fprintf(&b, "\n%s", all)
	for _, n := range names {
		if n == f.Category {
			fmt.Fprintf(&b, "\n%s (current)", n)
			continue
		}
		fmt.Fprintf(&b, "\n%s", n)
	}
	b.WriteString("\n\nUse /category <name> to switch.")
	return b.String()
}

// FormatQuota formats the local allowance and, when known, the server counters.
func FormatQuota(remaining, limit int, status *model.UserStatus) string {
	var b strings.Builder
	if remaining == model.Unlimited {
		b.WriteString("Premium: unlimited product views.")
	} else {
		fmt.Fprintf(&b, "Product views left today: %d of %d.", remaining, limit)
	}
	if status != nil {
		fmt.Fprintf(&b, "\nServer count: %d of %d used.", status.ViewsUsed, status.ViewsLimit)
	}
	return b.String()
}

// FormatLinkStatus formats the Telegram link state of the account.
func FormatLinkStatus(st model.LinkStatus) string {
	if !st.Linked {
		return "Telegram is not linked yet. Use /link to get a link key."
	}
	if !st.IsPremium {
		return "Telegram linked. Plan: free."
	}
	if st.PremiumUntil != nil && !st.PremiumUntil.IsZero() {
		return fmt.Sprintf("Telegram linked. Plan: premium until %s.", st.PremiumUntil.Format(time.DateOnly))
	}
	return "Telegram linked. Plan: premium."
}

// FormatLiveStatus describes the state of the new-listing poller.
func FormatLiveStatus(running bool, f model.FeedFilter, watermark *time.Time, chatID int64) string {
	var b strings.Builder
	if running {
		fmt.Fprintf(&b, "Live updates: on for %s / %s.", f.Region, categoryLabel(f.Category))
	} else {
		b.WriteString("Live updates: off.")
	}
	if watermark != nil {
		fmt.Fprintf(&b, "\nNewest seen: %s", watermark.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if chatID == 0 {
		b.WriteString("\nNo notification chat. Send /start to receive alerts here.")
	}
	return b.String()
}

// FormatRuleList formats the notification rules grouped by kind.
func FormatRuleList(list []model.Rule) string {
	if len(list) == 0 {
		return "No notification rules. Every new deal is sent.\nUse /include, /exclude, /include_re, /exclude_re to add rules."
	}

	groups := map[string][]model.Rule{}
	for _, r := range list {
		var g string
		switch r.Kind {
		case model.RuleInclude:
			g = "Include (word)"
		case model.RuleIncludeRe:
			g = "Include (regex)"
		case model.RuleExclude:
			g = "Exclude (word)"
		case model.RuleExcludeRe:
			g = "Exclude (regex)"
		default:
			continue
		}
		groups[g] = append(groups[g], r)
	}

	var b strings.Builder
	b.WriteString("Notification rules:\n")
	for _, name := range []string{"Include (word)", "Include (regex)", "Exclude (word)", "Exclude (regex)"} {
		rs := groups[name]
		if len(rs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", name)
		for _, r := range rs {
			fmt.Fprintf(&b, "  R%d: %s (%s)\n", r.ID, r.Value, scopeLabel(r.Scope))
		}
	}
	return b.String()
}

func scopeLabel(s model.RuleScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeContent:
		return "category only"
	default:
		return "title+category"
	}
}

func categoryLabel(c string) string {
	if c == "" {
		return model.CategoryAll
	}
	return c
}

func titleOf(p model.ProductData) string {
	if p.Title == "" {
		return "Untitled product"
	}
	return p.Title
}

func collectLinks(p model.ProductData) []model.ProductLink {
	var out []model.ProductLink
	if p.BuyURL != "" {
		out = append(out, model.ProductLink{Label: "Buy", URL: p.BuyURL})
	}
	groups := []struct {
		name  string
		links []model.ProductLink
	}{
		{"Buy", p.Links.Buy},
		{"eBay", p.Links.Ebay},
		{"Amazon FBA", p.Links.FBA},
		{"Other", p.Links.Other},
	}
	for _, g := range groups {
		for _, ln := range g.links {
			if ln.URL == "" || ln.URL == p.BuyURL {
				continue
			}
			label := ln.Label
			if label == "" {
				label = g.name
			}
			out = append(out, model.ProductLink{Label: label, URL: ln.URL})
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
