// Package site describes each supported shop as data: which engine loads
// it, which selectors carry its fields, and how availability is decided.
package site

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/pricewatch/models"
)

// Engine names the navigator a site is loaded with.
type Engine string

const (
	EngineHTTP    Engine = "http"
	EngineBrowser Engine = "browser"
)

// Site is the extraction strategy for one shop.
type Site struct {
	// Name identifies the site in logs, routes and result files.
	Name string

	// Hosts are matched case-insensitively as substrings of the URL host.
	Hosts []string

	// ResultFile is the per-site file the latest result is written to.
	ResultFile string

	Engine Engine

	// ReadySelector is awaited after navigation for up to ReadyTimeout.
	ReadySelector string
	ReadyTimeout  time.Duration

	// Stealth injects anti-detection JS before navigation (browser only).
	Stealth bool

	// Actions run in order after the page loads and before extraction.
	Actions []Action

	Broken       BrokenRule
	Breadcrumb   BreadcrumbRule
	Price        PriceRule
	Availability []AvailabilityRule

	// Fallback is reported when no availability rule matches.
	Fallback models.Status
}

// ActionKind is the type of a page interaction.
type ActionKind string

const (
	ActionWait  ActionKind = "wait"
	ActionClick ActionKind = "click"
	ActionType  ActionKind = "type"
)

// Action is one interaction performed before extraction, such as closing
// a consent banner.
type Action struct {
	Kind     ActionKind
	Selector string
	// Text is typed by ActionType.
	Text string
	// Timeout bounds the wait for Selector; zero means 10s.
	Timeout time.Duration
	// Optional actions are skipped when Selector never appears.
	Optional bool
}

// BrokenRule lists the signals that a product page is gone. Any single
// signal is enough.
type BrokenRule struct {
	StatusCodes   []int
	Present       []string // visible markers such as empty search results
	Missing       []string // containers every live product page has
	TitleContains []string // case-insensitive
}

// BreadcrumbRule selects the category label from the breadcrumb trail.
type BreadcrumbRule struct {
	Selector string
	// Index is applied after the optional reversal.
	Index   int
	Reverse bool
}

// PriceRule lists price selectors. AfterDiscount wins over Original.
type PriceRule struct {
	AfterDiscount string
	Original      string
	Discount      string
}

// AvailabilityRule maps a matching element to a status. Rules are checked
// in order and the first match wins.
type AvailabilityRule struct {
	Status   models.Status
	Selector string
	// Text requires an exact match of the collapsed element text.
	Text string
	// Contains requires a case-insensitive substring of the element text.
	Contains string
	// Enabled requires the element not to be disabled.
	Enabled bool
	// Disabled requires the element to be disabled.
	Disabled bool
}

func (s *Site) selectors() []string {
	var out []string
	out = append(out, s.ReadySelector, s.Breadcrumb.Selector)
	out = append(out, s.Price.AfterDiscount, s.Price.Original, s.Price.Discount)
	out = append(out, s.Broken.Present...)
	out = append(out, s.Broken.Missing...)
	for _, r := range s.Availability {
		out = append(out, r.Selector)
	}
	for _, a := range s.Actions {
		out = append(out, a.Selector)
	}
	return out
}

// Validate checks that the site is complete and every selector compiles.
func (s *Site) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("site: missing name")
	}
	if len(s.Hosts) == 0 {
		return fmt.Errorf("site %s: no host patterns", s.Name)
	}
	if s.ResultFile == "" {
		return fmt.Errorf("site %s: no result file", s.Name)
	}
	if s.Engine != EngineHTTP && s.Engine != EngineBrowser {
		return fmt.Errorf("site %s: unknown engine %q", s.Name, s.Engine)
	}
	if !s.Fallback.Valid() {
		return fmt.Errorf("site %s: invalid fallback status %q", s.Name, s.Fallback)
	}
	for _, sel := range s.selectors() {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("site %s: selector %q: %w", s.Name, sel, err)
		}
	}
	for _, a := range s.Actions {
		switch a.Kind {
		case ActionWait, ActionClick, ActionType:
		default:
			return fmt.Errorf("site %s: unknown action %q", s.Name, a.Kind)
		}
		if a.Selector == "" {
			return fmt.Errorf("site %s: %s action has no selector", s.Name, a.Kind)
		}
	}
	for _, r := range s.Availability {
		if !r.Status.Valid() {
			return fmt.Errorf("site %s: invalid rule status %q", s.Name, r.Status)
		}
		if r.Selector == "" {
			return fmt.Errorf("site %s: availability rule %q has no selector", s.Name, r.Status)
		}
		if r.Enabled && r.Disabled {
			return fmt.Errorf("site %s: availability rule %q is both enabled and disabled", s.Name, r.Status)
		}
	}
	return nil
}

// Matches reports whether rawURL belongs to the site.
func (s *Site) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, h := range s.Hosts {
		if strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// Registry resolves URLs to sites.
type Registry struct {
	sites []*Site
}

// NewRegistry validates sites and rejects duplicate names.
func NewRegistry(sites ...*Site) (*Registry, error) {
	seen := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("site %s: registered twice", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return &Registry{sites: sites}, nil
}

// Resolve returns the first site matching rawURL.
func (r *Registry) Resolve(rawURL string) (*Site, bool) {
	for _, s := range r.sites {
		if s.Matches(rawURL) {
			return s, true
		}
	}
	return nil, false
}

// ByName returns the site called name.
func (r *Registry) ByName(name string) (*Site, bool) {
	for _, s := range r.sites {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// All returns the registered sites in registration order.
func (r *Registry) All() []*Site {
	return r.sites
}
