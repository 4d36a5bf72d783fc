package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses {
		require.True(t, s.Valid(), s)
	}
	require.False(t, Status("").Valid())
	require.False(t, Status("in stock").Valid())
}

func TestNormalizeDefaultsToLinkBroken(t *testing.T) {
	r := &ScrapeResult{}
	r.Normalize()
	require.Equal(t, StatusLinkBroken, r.Status)

	r = &ScrapeResult{Status: StatusInStock}
	r.Normalize()
	require.Equal(t, StatusInStock, r.Status)
}

func TestScrapeResultJSONShape(t *testing.T) {
	b, err := json.Marshal(&ScrapeResult{Status: StatusOutOfStock})
	require.NoError(t, err)
	require.JSONEq(t, `{"price":null,"status":"Out of stock","category":null}`, string(b))

	b, err = json.Marshal(BrokenResult())
	require.NoError(t, err)
	require.JSONEq(t, `{"price":"0","status":"Link broken","category":"Link broken"}`, string(b))
}

func TestCrawlerResponseInlinesResult(t *testing.T) {
	price := "199.00"
	resp := CrawlerResponse{
		Success:      true,
		Supported:    true,
		ScrapeResult: &ScrapeResult{Price: &price, Status: StatusInStock},
	}
	b, err := json.Marshal(resp)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "199.00", m["price"])
	require.Equal(t, "In stock", m["status"])
	require.Contains(t, m, "category")
}
