package model

// PortfolioStock is one holding in the actor's portfolio blob.
type PortfolioStock struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
}

// Portfolio is the single JSON-serializable blob of UI-level state kept
// alongside (not inside) the chat sessions.
type Portfolio struct {
	Stocks []PortfolioStock `json:"stocks"`
}
