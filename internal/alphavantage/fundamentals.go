package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ResponseClass classifies an AlphaVantage response envelope. The API always
// answers 200, so the body alone says whether there is data.
type ResponseClass int

const (
	// ClassData means the payload carries dataset content.
	ClassData ResponseClass = iota
	// ClassEmpty means the API definitively has nothing for the symbol.
	ClassEmpty
	// ClassRateLimited means the request hit the call budget ("Note" or
	// "Information" envelope) and should be retried later.
	ClassRateLimited
	// ClassError means the API rejected the request ("Error Message").
	ClassError
	// ClassUnauthenticated means the key itself was rejected.
	ClassUnauthenticated
)

// Envelope is one raw API response plus its classification.
type Envelope struct {
	Class   ResponseClass
	Message string // vendor text for non-data classes
	Payload []byte // raw body, stored verbatim in the landing table
}

// GetFundamentals fetches a fundamentals endpoint (BALANCE_SHEET,
// INCOME_STATEMENT, CASH_FLOW, OVERVIEW) for a symbol. The raw payload is
// returned alongside its classification; parsing is left to downstream
// transforms.
func (c *Client) GetFundamentals(ctx context.Context, function, symbol string) (*Envelope, error) {
	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s for %s: %w", function, symbol, err)
	}
	return classify(body), nil
}

// GetDailyAdjusted fetches the adjusted daily time series for a symbol.
// outputSize is "compact" or "full".
func (c *Client) GetDailyAdjusted(ctx context.Context, symbol, outputSize string) (*Envelope, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
	params.Set("symbol", symbol)
	params.Set("outputsize", outputSize)

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily series for %s: %w", symbol, err)
	}
	return classify(body), nil
}

// classify inspects the response body for the API's envelope markers:
// "Error Message" rejects the request, "Note"/"Information" signals rate
// limiting, an empty object means no data exists for the symbol.
func classify(body []byte) *Envelope {
	env := &Envelope{Payload: body}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		// Not a JSON object (CSV endpoints land here); treat as data.
		env.Class = ClassData
		return env
	}

	if raw, ok := fields["Error Message"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		env.Message = msg
		if strings.Contains(strings.ToLower(msg), "apikey") {
			env.Class = ClassUnauthenticated
		} else {
			env.Class = ClassError
		}
		return env
	}

	for _, key := range []string{"Note", "Information"} {
		if raw, ok := fields[key]; ok {
			var msg string
			_ = json.Unmarshal(raw, &msg)
			env.Message = msg
			env.Class = ClassRateLimited
			return env
		}
	}

	if len(fields) == 0 {
		env.Class = ClassEmpty
		return env
	}

	env.Class = ClassData
	return env
}
