package site

import (
	"net/http"
	"time"

	"github.com/use-agent/pricewatch/models"
)

var notFoundTitles = []string{"página no encontrada", "lo sentimos"}

// Costco renders client-side, so it needs the browser. Its buttons carry
// no stable classes and are told apart by label.
var Costco = &Site{
	Name:          "costco",
	Hosts:         []string{"costco"},
	ResultFile:    "result_costco.json",
	Engine:        EngineBrowser,
	ReadySelector: "body",
	ReadyTimeout:  5 * time.Second,
	Stealth:       true,
	Actions: []Action{
		{Kind: ActionClick, Selector: "#onetrust-accept-btn-handler", Timeout: 2 * time.Second, Optional: true},
	},
	Broken: BrokenRule{
		Missing: []string{"div.product-page-container"},
	},
	Breadcrumb: BreadcrumbRule{Selector: "ol.breadcrumb li a", Index: 1},
	Price: PriceRule{
		AfterDiscount: "div.price-after-discount div.you-pay-value span.you-pay-value",
		Original:      "span.notranslate.ng-star-inserted",
		Discount:      "div.discount span.discount-value sip-format-price span.notranslate",
	},
	Availability: []AvailabilityRule{
		{Status: models.StatusOutOfStock, Selector: `button[type="button"]`, Text: "Agotado"},
		{Status: models.StatusInStock, Selector: `button[type="button"]`, Text: "Agregar al Carrito", Enabled: true},
		{Status: models.StatusInStockZipRequired, Selector: `button[type="button"]`, Text: "Establecer Código Postal"},
		{Status: models.StatusInStockZipRequired, Selector: `form[novalidate] input[name="postalCode"]`},
	},
	Fallback: models.StatusLinkBroken,
}

// Palacio serves complete markup and answers 410 for withdrawn products.
var Palacio = &Site{
	Name:       "palacio",
	Hosts:      []string{"elpalaciodehierro"},
	ResultFile: "result_palacio.json",
	Engine:     EngineHTTP,
	Broken: BrokenRule{
		StatusCodes: []int{http.StatusNotFound, http.StatusGone},
		Missing:     []string{"div.l-pdp-b-content.b-product_main_info.m-pdpv2"},
	},
	Availability: []AvailabilityRule{
		{Status: models.StatusOutOfStock, Selector: "button.b-add_to_cart_v2-btn", Disabled: true},
		{Status: models.StatusInStock, Selector: "button.b-add_to_cart_v2-btn", Enabled: true},
	},
	Fallback: models.StatusLinkBroken,
}

// Liverpool shows an empty search page instead of a 404.
var Liverpool = &Site{
	Name:          "liverpool",
	Hosts:         []string{"liverpool.com.mx"},
	ResultFile:    "result_liverpool.json",
	Engine:        EngineBrowser,
	ReadySelector: "body",
	ReadyTimeout:  10 * time.Second,
	Stealth:       true,
	Broken: BrokenRule{
		Present:       []string{".o-content__noResultsNullSearch"},
		TitleContains: notFoundTitles,
	},
	Availability: []AvailabilityRule{
		{Status: models.StatusInStock, Selector: "#opc_pdp_buyNowButton", Enabled: true},
	},
	Fallback: models.StatusOutOfStock,
}

// MercadoLibre distinguishes its own stock from third-party sellers.
var MercadoLibre = &Site{
	Name:          "mercadolibre",
	Hosts:         []string{"mercadolibre"},
	ResultFile:    "result_mercadolibre.json",
	Engine:        EngineBrowser,
	ReadySelector: "body",
	ReadyTimeout:  10 * time.Second,
	Stealth:       true,
	Broken: BrokenRule{
		Missing:       []string{"div.ui-pdp-container.ui-pdp-container--pdp > #ui-pdp-main-container"},
		TitleContains: notFoundTitles,
	},
	Availability: []AvailabilityRule{
		{Status: models.StatusInStock, Selector: `[id=":R9b9k5l9im:"]`, Enabled: true},
		{Status: models.StatusAvailableExternalVendor, Selector: `[id=":R16qakck4um:"]`},
	},
	Fallback: models.StatusOutOfStock,
}

// Builtin returns the supported shops.
func Builtin() []*Site {
	return []*Site{Costco, Palacio, Liverpool, MercadoLibre}
}

// DefaultRegistry returns a registry of the built-in sites.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}
