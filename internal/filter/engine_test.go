package filter

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"hollowscan/internal/model"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		item  Item
		rules []model.Rule
		want  bool
	}{
		{
			name:  "no rules passes everything",
			item:  Item{Title: "anything", Content: "whatever"},
			rules: nil,
			want:  true,
		},
		{
			name: "include word matches",
			item: Item{Title: "Pokemon Booster Box", Content: "Pokemon US"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "booster"},
			},
			want: true,
		},
		{
			name: "include word no match",
			item: Item{Title: "Lego Technic", Content: "Lego US"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "booster"},
			},
			want: false,
		},
		{
			name: "include is case insensitive",
			item: Item{Title: "POKEMON ETB"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "pokemon"},
			},
			want: true,
		},
		{
			name: "exclude word blocks match",
			item: Item{Title: "Damaged box Lego set", Content: "Lego"},
			rules: []model.Rule{
				{Kind: model.RuleExclude, Scope: model.ScopeAll, Value: "damaged"},
			},
			want: false,
		},
		{
			name: "include and exclude both match, exclude wins",
			item: Item{Title: "Pokemon box damaged"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "pokemon"},
				{Kind: model.RuleExclude, Scope: model.ScopeAll, Value: "damaged"},
			},
			want: false,
		},
		{
			name: "multiple includes OR logic",
			item: Item{Title: "Lego Star Wars"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "pokemon"},
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "lego"},
			},
			want: true,
		},
		{
			name: "regex include matches",
			item: Item{Title: "PS5 Slim Console"},
			rules: []model.Rule{
				{Kind: model.RuleIncludeRe, Scope: model.ScopeAll, Value: `ps[45]\b`},
			},
			want: true,
		},
		{
			name: "regex exclude blocks",
			item: Item{Title: "Refurbished iPhone 13"},
			rules: []model.Rule{
				{Kind: model.RuleExcludeRe, Scope: model.ScopeAll, Value: "refurb(ished)?"},
			},
			want: false,
		},
		{
			name: "invalid regex in rule is skipped (no match)",
			item: Item{Title: "anything"},
			rules: []model.Rule{
				{Kind: model.RuleIncludeRe, Scope: model.ScopeAll, Value: "[invalid"},
			},
			want: false,
		},
		{
			name: "scope title ignores content",
			item: Item{Title: "Booster Box", Content: "Pokemon"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeTitle, Value: "pokemon"},
			},
			want: false,
		},
		{
			name: "scope content matches category",
			item: Item{Title: "Booster Box", Content: "Pokemon"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeContent, Value: "pokemon"},
			},
			want: true,
		},
		{
			name: "title include with content exclude",
			item: Item{Title: "Lego Technic", Content: "Lego CA"},
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeTitle, Value: "lego"},
				{Kind: model.RuleExclude, Scope: model.ScopeContent, Value: "ca"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.item, tt.rules)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromListing(t *testing.T) {
	raw := `{"id": 7, "created_at": "2026-10-16T10:00:00Z", "category_name": "Pokemon",
		"country_code": "US", "description": "restock",
		"product_data": {"title": "Booster Box"}}`
	var l model.Listing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := Item{Title: "Booster Box", Content: "Pokemon US restock"}
	if diff := cmp.Diff(want, FromListing(l)); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "valid simple", pattern: "hello", wantErr: false},
		{name: "valid alternation", pattern: "lego|pokemon|ps5", wantErr: false},
		{name: "valid group", pattern: `(?i)box.*v\d+`, wantErr: false},
		{name: "invalid unclosed bracket", pattern: "[invalid", wantErr: true},
		{name: "invalid bad repetition", pattern: "*bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			gotErr := err != nil
			if diff := cmp.Diff(tt.wantErr, gotErr); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
