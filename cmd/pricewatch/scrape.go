package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/pricewatch/crawler"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/registry"
	"github.com/use-agent/pricewatch/site"
	"github.com/use-agent/pricewatch/store"
)

var scrapeSKU string

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url> [--sku <sku>]",
	Short: "Scrape one product URL and print the result as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sc, rod := newScraper(cfg)
		defer rod.Close()

		deps := crawler.Deps{
			Sites:    site.DefaultRegistry(),
			Runner:   sc,
			Sink:     sc.Sink(),
			Registry: registry.New(),
			Timeout:  cfg.Scraper.CrawlTimeout,
		}
		req := &models.CrawlerRequest{URL: args[0]}
		if scrapeSKU != "" {
			st, err := store.Open(ctx, cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()
			deps.Products = st
			req.SKU = &scrapeSKU
		}

		resp, err := crawler.New(deps).Run(ctx, req)
		if err != nil {
			return err
		}
		if !resp.Supported {
			return fmt.Errorf("%s: %s", models.MsgUnsupportedURL, args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resp.ScrapeResult)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeSKU, "sku", "", "store the result as the output of products with this SKU")
	rootCmd.AddCommand(scrapeCmd)
}
