package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricewatch/models"
)

func result(price string) *models.ScrapeResult {
	return &models.ScrapeResult{Price: &price, Status: models.StatusInStock}
}

func TestGetRespectsMaxAge(t *testing.T) {
	c := New(10)
	defer c.Close()

	key := Key("https://www.costco.com.mx/p/1")
	c.Set(key, result("10.00"))

	got, ok := c.Get(key, 60_000)
	require.True(t, ok)
	require.Equal(t, "10.00", *got.Price)

	_, ok = c.Get(key, 0)
	require.False(t, ok, "max age 0 disables the cache")

	time.Sleep(5 * time.Millisecond)
	_, ok = c.Get(key, 1)
	require.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(10)
	defer c.Close()

	key := Key("https://example.com/p")
	c.Set(key, result("1.00"))

	got, _ := c.Get(key, 60_000)
	got.Status = models.StatusOutOfStock

	again, _ := c.Get(key, 60_000)
	require.Equal(t, models.StatusInStock, again.Status)
}

func TestSetEvictsAtCapacity(t *testing.T) {
	c := New(2)
	defer c.Close()

	c.Set(Key("a"), result("1"))
	c.Set(Key("b"), result("2"))
	c.Set(Key("b"), result("3"))
	require.Equal(t, 2, c.Len())

	c.Set(Key("c"), result("4"))
	require.Equal(t, 2, c.Len())
	_, ok := c.Get(Key("c"), 60_000)
	require.True(t, ok)
}

func TestKeyNormalizesURL(t *testing.T) {
	require.Equal(t, Key("https://example.com/p/1"), Key(" https://example.com/p/1/ "))
	require.NotEqual(t, Key("https://example.com/p/1"), Key("https://example.com/p/2"))
}

func TestEvictBefore(t *testing.T) {
	c := New(10)
	defer c.Close()

	c.Set(Key("old"), result("1"))
	c.evictBefore(time.Now().Add(time.Second))
	require.Zero(t, c.Len())
}
