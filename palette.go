package latexeditor

// PaletteEntry is a math-symbol insert button: Symbol is the markup appended
// to the document and Label is what the button shows.
type PaletteEntry struct {
	Symbol string `json:"symbol"`
	Label  string `json:"label"`
}

// Palette is the fixed, ordered set of insert buttons.
var Palette = []PaletteEntry{
	{Symbol: `\alpha`, Label: "α"},
	{Symbol: `\beta`, Label: "β"},
	{Symbol: `\gamma`, Label: "γ"},
	{Symbol: `\sum`, Label: "∑"},
	{Symbol: `\int`, Label: "∫"},
	{Symbol: `\sqrt{}`, Label: "√"},
	{Symbol: `\frac{}{}`, Label: "a/b"},
	{Symbol: `\infty`, Label: "∞"},
}

// LookupSymbol returns the palette entry for symbol.
func LookupSymbol(symbol string) (PaletteEntry, bool) {
	for _, entry := range Palette {
		if entry.Symbol == symbol {
			return entry, true
		}
	}
	return PaletteEntry{}, false
}
