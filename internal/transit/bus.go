package transit

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// busResponse is the Bus Tracker getpredictions JSON wrapper.
type busResponse struct {
	BustimeResponse struct {
		Prd []struct {
			Route     string `json:"rt"`
			Countdown string `json:"prdctdn"`
			StopID    string `json:"stpid"`
		} `json:"prd"`
		Error []struct {
			Msg string `json:"msg"`
		} `json:"error"`
	} `json:"bustime-response"`
}

// busPredictions fetches bus arrivals for a stop. Any fetch or parse
// failure degrades to an empty list.
func (c *Client) busPredictions(ctx context.Context, stopID string) ([]Prediction, error) {
	if c.busKey == "" {
		return nil, ErrMissingAPIKey
	}

	key := cacheKey(KindBus, stopID)
	if cached, ok := c.cacheGet(key); ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("key", c.busKey)
	params.Set("stpid", stopID)
	params.Set("format", "json")

	body, err := c.get(ctx, encodeQuery(c.busBaseURL, "/getpredictions", params))
	if err != nil {
		c.logger.Warn("bus predictions fetch failed", "stop_id", stopID, "error", err)
		return []Prediction{}, nil
	}

	var resp busResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("bus predictions parse failed", "stop_id", stopID, "error", err)
		return []Prediction{}, nil
	}
	if len(resp.BustimeResponse.Error) > 0 {
		c.logger.Warn("bus predictions API error",
			"stop_id", stopID, "msg", resp.BustimeResponse.Error[0].Msg)
		return []Prediction{}, nil
	}

	preds := make([]Prediction, 0, len(resp.BustimeResponse.Prd))
	for _, p := range resp.BustimeResponse.Prd {
		preds = append(preds, Prediction{
			Line:           p.Route,
			ArrivalMinutes: parseCountdown(p.Countdown),
			StopID:         stopID,
		})
	}

	c.cacheSet(key, preds)
	return preds, nil
}

// parseCountdown maps the prdctdn field to minutes. "DUE" means the bus is
// at the stop; anything unparsable (including "DLY" for delayed) is
// treated as never arriving.
func parseCountdown(s string) int {
	if s == "DUE" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return NeverMinutes
	}
	return n
}
