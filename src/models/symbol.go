package models

// MSymbol is one tradable instrument from the upstream catalogue.
type MSymbol struct {
	Symbol      string  `json:"symbol"`
	DisplayName string  `json:"display_name"`
	Market      string  `json:"market"`
	Submarket   string  `json:"submarket"`
	IsOpen      bool    `json:"is_open"`
	Suspended   bool    `json:"suspended"`
	Pip         float64 `json:"pip"`
}
