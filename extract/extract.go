// Package extract classifies product pages and pulls fields out of them.
// Every lookup tolerates absence: a missing node yields a nil field or the
// site fallback, never an error.
package extract

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/retry"
	"github.com/use-agent/pricewatch/site"
)

var errNotFound = errors.New("extract: no matching node")

// Extractor runs site rules against a page.
type Extractor struct {
	policy retry.Policy
}

// New returns an Extractor retrying lookups on live pages with policy.
func New(policy retry.Policy) *Extractor {
	return &Extractor{policy: policy}
}

// policyFor drops retries for static documents, which cannot change.
func (x *Extractor) policyFor(p engine.Page) retry.Policy {
	if !p.Live() {
		return retry.Once
	}
	return x.policy
}

// lookup returns the nodes matching selector, retrying while there are none.
func (x *Extractor) lookup(ctx context.Context, p engine.Page, selector string) []engine.Node {
	return retry.Do(ctx, x.policyFor(p), nil, func(ctx context.Context) ([]engine.Node, error) {
		nodes, err := p.Query(ctx, selector)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			return nil, errNotFound
		}
		return nodes, nil
	})
}

// visibleMarker reports whether selector matches a visible node, retrying
// while it does not.
func (x *Extractor) visibleMarker(ctx context.Context, p engine.Page, selector string) bool {
	return retry.Do(ctx, x.policyFor(p), false, func(ctx context.Context) (bool, error) {
		nodes, err := p.Query(ctx, selector)
		if err != nil {
			return false, err
		}
		if !slices.ContainsFunc(nodes, func(n engine.Node) bool { return n.Visible }) {
			return false, errNotFound
		}
		return true, nil
	})
}

// IsBroken reports whether the page shows any signal of rule. Signals are
// checked in order: status code, title, required containers, then visible
// markers. Containers and markers are retried on live pages since either
// may render late.
func (x *Extractor) IsBroken(ctx context.Context, p engine.Page, rule site.BrokenRule) bool {
	if code := p.StatusCode(); code != 0 && slices.Contains(rule.StatusCodes, code) {
		return true
	}
	if len(rule.TitleContains) > 0 {
		title := strings.ToLower(p.Title(ctx))
		for _, marker := range rule.TitleContains {
			if strings.Contains(title, strings.ToLower(marker)) {
				return true
			}
		}
	}
	for _, sel := range rule.Missing {
		if len(x.lookup(ctx, p, sel)) == 0 {
			return true
		}
	}
	for _, sel := range rule.Present {
		if x.visibleMarker(ctx, p, sel) {
			return true
		}
	}
	return false
}

// Category returns the breadcrumb label chosen by rule, or nil.
func (x *Extractor) Category(ctx context.Context, p engine.Page, rule site.BreadcrumbRule) *string {
	if rule.Selector == "" {
		return nil
	}
	var labels []string
	for _, n := range x.lookup(ctx, p, rule.Selector) {
		if n.Text != "" {
			labels = append(labels, n.Text)
		}
	}
	if rule.Reverse {
		slices.Reverse(labels)
	}
	if rule.Index < 0 || rule.Index >= len(labels) {
		return nil
	}
	label := labels[rule.Index]
	return &label
}

// Price returns the normalized price, preferring the after-discount value,
// and the raw discount text. Either may be nil.
//
// Both price selectors are tried on every attempt, so a page without a
// discount costs no retries. The discount is read once after a price is
// found, since it renders with the price block.
func (x *Extractor) Price(ctx context.Context, p engine.Page, rule site.PriceRule) (price, discount *string) {
	v := retry.Do(ctx, x.policyFor(p), "", func(ctx context.Context) (string, error) {
		var lastErr error = errNotFound
		for _, sel := range []string{rule.AfterDiscount, rule.Original} {
			if sel == "" {
				continue
			}
			v, err := firstPrice(ctx, p, sel)
			if err == nil {
				return v, nil
			}
			if !errors.Is(err, errNotFound) {
				lastErr = err
			}
		}
		return "", lastErr
	})
	if v == "" {
		return nil, nil
	}
	price = &v

	if rule.Discount != "" {
		if nodes, err := p.Query(ctx, rule.Discount); err == nil {
			for _, n := range nodes {
				if n.Text != "" {
					discount = &n.Text
					break
				}
			}
		}
	}
	return price, discount
}

// firstPrice returns the first node text under selector that normalizes
// to a price.
func firstPrice(ctx context.Context, p engine.Page, selector string) (string, error) {
	nodes, err := p.Query(ctx, selector)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if v, ok := NormalizePrice(n.Text); ok {
			return v, nil
		}
	}
	return "", errNotFound
}

type verdict struct {
	status   models.Status
	resolved bool
}

// Availability walks rules in priority order and returns the first match.
// The whole checklist is retried; on exhaustion it returns fallback with
// resolved set to false.
func (x *Extractor) Availability(ctx context.Context, p engine.Page, rules []site.AvailabilityRule, fallback models.Status) (models.Status, bool) {
	if len(rules) == 0 {
		return fallback, false
	}
	v := retry.Do(ctx, x.policyFor(p), verdict{status: fallback}, func(ctx context.Context) (verdict, error) {
		for _, r := range rules {
			nodes, err := p.Query(ctx, r.Selector)
			if err != nil {
				return verdict{}, err
			}
			if slices.ContainsFunc(nodes, ruleMatcher(r)) {
				return verdict{status: r.Status, resolved: true}, nil
			}
		}
		return verdict{}, errNotFound
	})
	return v.status, v.resolved
}
