package responder

import "strings"

// Fallback reply texts, fixed so the conversation continues seamlessly
// when the advisor endpoint is unreachable.
const (
	fallbackChartText = "Here is a chart based on your portfolio data. " +
		"For advanced charting and real-time data, consider upgrading to FinSight Pro!"
	fallbackGenericText = "I understand you're asking about portfolio optimization. " +
		"Let me analyze your current holdings and market conditions to provide personalized advice. " +
		"Based on your risk profile and investment goals, I recommend focusing on tax-efficient strategies. " +
		"Unlock advanced features with FinSight Pro!"
)

// Fallback produces a deterministic canned reply for the given user
// text. It never fails and touches no network.
func Fallback(message string) *Reply {
	if strings.Contains(strings.ToLower(message), "chart") {
		return &Reply{
			Response:  fallbackChartText,
			ShowChart: true,
		}
	}
	return &Reply{
		Response:    fallbackGenericText,
		Suggestions: defaultSuggestions(),
	}
}
