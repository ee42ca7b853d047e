// Package actions provides the built-in action set the agent core dispatches
// on: entity resolution, POI facts, transport matrices, day optimization,
// feasibility validation and web browsing.
package actions

import (
	"strings"

	"github.com/xudanli/tripnaraht-sub002/internal/agent/state"
)

// catalogEntry is one known POI with its lookup aliases.
type catalogEntry struct {
	Node    state.Node
	Aliases []string
	Facts   map[string]any
}

// builtinCatalog is the offline POI knowledge base used when no external
// places service is wired. Coordinates are real; opening windows and wait
// estimates are typical values.
var builtinCatalog = []catalogEntry{
	{
		Node: state.Node{
			ID: "poi_kiyomizu", Name: "清水寺", Lat: 34.9949, Lng: 135.7850,
			Open:       []state.Window{{Start: "06:00", End: "18:00"}},
			ServiceMin: 90, WaitMin: 20, Tags: []string{"temple", "kyoto"},
		},
		Aliases: []string{"清水寺", "kiyomizu", "kiyomizu-dera"},
		Facts: map[string]any{
			"opening_hours": "06:00-18:00",
			"price":         "成人 400 日元",
			"city":          "京都",
		},
	},
	{
		Node: state.Node{
			ID: "poi_kinkaku", Name: "金阁寺", Lat: 35.0394, Lng: 135.7292,
			Open:       []state.Window{{Start: "09:00", End: "17:00"}},
			ServiceMin: 60, WaitMin: 15, Tags: []string{"temple", "kyoto"},
		},
		Aliases: []string{"金阁寺", "kinkaku", "kinkakuji", "golden pavilion"},
		Facts: map[string]any{
			"opening_hours": "09:00-17:00",
			"price":         "成人 500 日元",
			"city":          "京都",
		},
	},
	{
		Node: state.Node{
			ID: "poi_fushimi", Name: "伏见稻荷大社", Lat: 34.9671, Lng: 135.7727,
			Open:       []state.Window{{Start: "00:00", End: "23:59"}},
			ServiceMin: 120, WaitMin: 10, Tags: []string{"shrine", "kyoto"},
		},
		Aliases: []string{"伏见稻荷", "伏見稲荷", "fushimi", "fushimi inari"},
		Facts: map[string]any{
			"opening_hours": "全天开放",
			"price":         "免费",
			"city":          "京都",
		},
	},
	{
		Node: state.Node{
			ID: "poi_sensoji", Name: "浅草寺", Lat: 35.7148, Lng: 139.7967,
			Open:       []state.Window{{Start: "06:00", End: "17:00"}},
			ServiceMin: 60, WaitMin: 10, Tags: []string{"temple", "tokyo"},
		},
		Aliases: []string{"浅草寺", "浅草", "sensoji", "senso-ji", "asakusa"},
		Facts: map[string]any{
			"opening_hours": "06:00-17:00",
			"price":         "免费",
			"city":          "东京",
		},
	},
	{
		Node: state.Node{
			ID: "poi_tokyo_tower", Name: "东京塔", Lat: 35.6586, Lng: 139.7454,
			Open:       []state.Window{{Start: "09:00", End: "22:30"}},
			ServiceMin: 90, WaitMin: 25, Tags: []string{"landmark", "tokyo"},
		},
		Aliases: []string{"东京塔", "tokyo tower"},
		Facts: map[string]any{
			"opening_hours": "09:00-22:30",
			"price":         "成人 1200 日元",
			"city":          "东京",
		},
	},
	{
		Node: state.Node{
			ID: "poi_meiji", Name: "明治神宫", Lat: 35.6764, Lng: 139.6993,
			Open:       []state.Window{{Start: "05:00", End: "18:00"}},
			ServiceMin: 75, WaitMin: 5, Tags: []string{"shrine", "tokyo"},
		},
		Aliases: []string{"明治神宫", "明治神宮", "meiji", "meiji jingu"},
		Facts: map[string]any{
			"opening_hours": "05:00-18:00",
			"price":         "免费",
			"city":          "东京",
		},
	},
	{
		Node: state.Node{
			ID: "poi_osaka_castle", Name: "大阪城", Lat: 34.6873, Lng: 135.5262,
			Open:       []state.Window{{Start: "09:00", End: "17:00"}},
			ServiceMin: 90, WaitMin: 20, Tags: []string{"castle", "osaka"},
		},
		Aliases: []string{"大阪城", "osaka castle"},
		Facts: map[string]any{
			"opening_hours": "09:00-17:00",
			"price":         "成人 600 日元",
			"city":          "大阪",
		},
	},
	{
		Node: state.Node{
			ID: "poi_dotonbori", Name: "道顿堀", Lat: 34.6687, Lng: 135.5013,
			Open:       []state.Window{{Start: "10:00", End: "23:00"}},
			ServiceMin: 120, WaitMin: 0, Tags: []string{"food", "osaka"},
		},
		Aliases: []string{"道顿堀", "道頓堀", "dotonbori"},
		Facts: map[string]any{
			"opening_hours": "店铺各异，约 10:00-23:00",
			"price":         "免费进入",
			"city":          "大阪",
		},
	},
	{
		Node: state.Node{
			ID: "poi_usj", Name: "日本环球影城", Lat: 34.6654, Lng: 135.4323,
			Open:       []state.Window{{Start: "09:00", End: "21:00"}},
			ServiceMin: 480, WaitMin: 45, Tags: []string{"theme_park", "osaka"},
		},
		Aliases: []string{"环球影城", "usj", "universal studios"},
		Facts: map[string]any{
			"opening_hours": "09:00-21:00",
			"price":         "成人 8600 日元起",
			"city":          "大阪",
		},
	},
	{
		Node: state.Node{
			ID: "poi_nara_park", Name: "奈良公园", Lat: 34.6851, Lng: 135.8430,
			Open:       []state.Window{{Start: "00:00", End: "23:59"}},
			ServiceMin: 150, WaitMin: 0, Tags: []string{"park", "nara"},
		},
		Aliases: []string{"奈良公园", "奈良", "nara", "nara park"},
		Facts: map[string]any{
			"opening_hours": "全天开放",
			"price":         "免费",
			"city":          "奈良",
		},
	},
}

// cityAliases lets a bare city name resolve to that city's catalog entries.
var cityAliases = map[string][]string{
	"东京": {"tokyo"}, "東京": {"tokyo"}, "tokyo": {"tokyo"},
	"京都": {"kyoto"}, "kyoto": {"kyoto"},
	"大阪": {"osaka"}, "osaka": {"osaka"},
	"奈良": {"nara"}, "nara": {"nara"},
}

// LookupPOIs matches query text against aliases and city names.
func LookupPOIs(query string, limit int) []state.Node {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}

	seen := make(map[string]bool)
	var out []state.Node

	add := func(n state.Node) {
		if !seen[n.ID] && len(out) < limit {
			seen[n.ID] = true
			out = append(out, n)
		}
	}

	for _, entry := range builtinCatalog {
		for _, alias := range entry.Aliases {
			if strings.Contains(query, strings.ToLower(alias)) {
				add(entry.Node)
				break
			}
		}
	}

	// City mentions pull in the whole city's entries.
	for cityName, tags := range cityAliases {
		if !strings.Contains(query, strings.ToLower(cityName)) {
			continue
		}
		for _, entry := range builtinCatalog {
			for _, tag := range entry.Node.Tags {
				if tag == tags[0] {
					add(entry.Node)
				}
			}
		}
	}

	return out
}

// CatalogDocuments renders each catalog entry as one retrievable text
// document, keyed by POI id.
func CatalogDocuments() map[string]string {
	docs := make(map[string]string, len(builtinCatalog))
	for _, entry := range builtinCatalog {
		var b strings.Builder
		b.WriteString(entry.Node.Name)
		if city, ok := entry.Facts["city"].(string); ok {
			b.WriteString("（" + city + "）")
		}
		if hours, ok := entry.Facts["opening_hours"].(string); ok {
			b.WriteString("：营业时间 " + hours)
		}
		if price, ok := entry.Facts["price"].(string); ok {
			b.WriteString("；门票 " + price)
		}
		b.WriteString("。别名：" + strings.Join(entry.Aliases, "、"))
		docs[entry.Node.ID] = b.String()
	}
	return docs
}

// FactsFor returns the fact sheet for one POI id, nil when unknown.
func FactsFor(poiID string) map[string]any {
	for _, entry := range builtinCatalog {
		if entry.Node.ID == poiID {
			return entry.Facts
		}
	}
	return nil
}
