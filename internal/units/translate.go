package units

import (
	"strings"

	"github.com/eppchris/recettes/internal/catalog"
)

// displayNames maps technical unit codes to their display translations.
// This table is display-only: internal computation always works on
// technical codes.
var displayNames = map[string]catalog.Translation{
	"g":      {Fr: "g", Jp: "g"},
	"kg":     {Fr: "kg", Jp: "kg"},
	"ml":     {Fr: "ml", Jp: "ml"},
	"l":      {Fr: "L", Jp: "L"},
	"cs":     {Fr: "c. à soupe", Jp: "大さじ"},
	"cc":     {Fr: "c. à café", Jp: "小さじ"},
	"tasse":  {Fr: "tasse", Jp: "カップ"},
	"piece":  {Fr: "pièce", Jp: "個"},
	"pincee": {Fr: "pincée", Jp: "ひとつまみ"},
}

// DisplayUnit translates a technical unit code for the requested display
// language. Unknown codes pass through unchanged.
func DisplayUnit(code, lang string) string {
	if tr, ok := displayNames[strings.ToLower(code)]; ok {
		return tr.Select(lang)
	}
	return code
}
