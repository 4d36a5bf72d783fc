package main

import (
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/extract"
	"github.com/use-agent/pricewatch/results"
	"github.com/use-agent/pricewatch/retry"
	"github.com/use-agent/pricewatch/scraper"
)

// newScraper wires both navigators into a scraper. The browser is launched
// lazily by the first browser-engine site scraped.
func newScraper(c *config.Config) (*scraper.Scraper, *engine.RodEngine) {
	rod := engine.NewRodEngine(c.Browser, c.Scraper)
	httpEngine := engine.NewHTTPEngine(c.Engine.HTTPTimeout, c.Browser.UserAgent)

	x := extract.New(retry.Policy{Attempts: c.Scraper.RetryAttempts, Delay: c.Scraper.RetryDelay})
	sc := scraper.New(x, results.NewSink(c.Results.Dir), scraper.Options{
		Strict:   c.Scraper.StrictAvailability,
		DebugDir: c.Scraper.DebugDir,
	}, httpEngine, rod)
	return sc, rod
}
