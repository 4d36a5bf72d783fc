package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/retry"
	"github.com/use-agent/pricewatch/site"
)

// fakePage serves canned nodes per selector. A selector listed in appearAt
// only matches from that query count on, imitating late rendering.
type fakePage struct {
	live     bool
	status   int
	title    string
	nodes    map[string][]engine.Node
	appearAt map[string]int
	stale    map[string]int
	queries  map[string]int
}

func newFakePage(live bool) *fakePage {
	return &fakePage{
		live:     live,
		nodes:    map[string][]engine.Node{},
		appearAt: map[string]int{},
		stale:    map[string]int{},
		queries:  map[string]int{},
	}
}

func (f *fakePage) add(selector string, nodes ...engine.Node) *fakePage {
	f.nodes[selector] = append(f.nodes[selector], nodes...)
	return f
}

func visible(text string) engine.Node {
	return engine.Node{Text: text, Visible: true, Attrs: map[string]string{}}
}

func disabled(text string) engine.Node {
	n := visible(text)
	n.Attrs["disabled"] = ""
	return n
}

func (f *fakePage) URL() string                  { return "https://shop.test/p/1" }
func (f *fakePage) StatusCode() int              { return f.status }
func (f *fakePage) Partial() bool                { return false }
func (f *fakePage) Live() bool                   { return f.live }
func (f *fakePage) Title(context.Context) string { return f.title }

func (f *fakePage) Query(_ context.Context, selector string) ([]engine.Node, error) {
	f.queries[selector]++
	n := f.queries[selector]
	if n <= f.stale[selector] {
		return nil, errors.New("stale element reference")
	}
	if at, ok := f.appearAt[selector]; ok && n < at {
		return nil, nil
	}
	return f.nodes[selector], nil
}

func (f *fakePage) WaitFor(context.Context, string, time.Duration) bool { return false }
func (f *fakePage) Click(context.Context, string) error                 { return engine.ErrUnsupported }
func (f *fakePage) EnterText(context.Context, string, string) error     { return engine.ErrUnsupported }
func (f *fakePage) Screenshot(context.Context) ([]byte, error)          { return nil, engine.ErrUnsupported }
func (f *fakePage) HTML(context.Context) (string, error)                { return "", nil }
func (f *fakePage) Close() error                                        { return nil }

var fast = retry.Policy{Attempts: 3, Delay: time.Millisecond}

func TestIsBroken(t *testing.T) {
	x := New(fast)
	ctx := context.Background()

	rule := site.BrokenRule{
		StatusCodes:   []int{410},
		Present:       []string{".no-results"},
		Missing:       []string{"div.pdp"},
		TitleContains: []string{"Página no encontrada"},
	}

	healthy := func() *fakePage {
		p := newFakePage(false)
		p.status = 200
		p.title = "Televisión 55"
		return p.add("div.pdp", visible(""))
	}

	require.False(t, x.IsBroken(ctx, healthy(), rule))

	gone := healthy()
	gone.status = 410
	require.True(t, x.IsBroken(ctx, gone, rule))

	empty := healthy().add(".no-results", visible("Sin resultados"))
	require.True(t, x.IsBroken(ctx, empty, rule))

	hiddenMarker := healthy().add(".no-results", engine.Node{Text: "Sin resultados"})
	require.False(t, x.IsBroken(ctx, hiddenMarker, rule))

	titled := healthy()
	titled.title = "Lo sentimos, PÁGINA NO ENCONTRADA"
	require.True(t, x.IsBroken(ctx, titled, rule))

	missing := newFakePage(false)
	require.True(t, x.IsBroken(ctx, missing, rule))
}

func TestIsBrokenWaitsForLateContainer(t *testing.T) {
	x := New(fast)
	p := newFakePage(true).add("div.pdp", visible(""))
	p.appearAt["div.pdp"] = 3

	require.False(t, x.IsBroken(context.Background(), p, site.BrokenRule{Missing: []string{"div.pdp"}}))
	require.Equal(t, 3, p.queries["div.pdp"])
}

func TestIsBrokenWaitsForLateMarker(t *testing.T) {
	x := New(fast)
	p := newFakePage(true).add(".o-content__noResultsNullSearch", visible("No encontramos resultados"))
	p.appearAt[".o-content__noResultsNullSearch"] = 2

	require.True(t, x.IsBroken(context.Background(), p, site.Liverpool.Broken))
	require.Equal(t, 2, p.queries[".o-content__noResultsNullSearch"])
}

func TestIsBrokenLiveProductWithoutMarker(t *testing.T) {
	x := New(fast)
	p := newFakePage(true)

	require.False(t, x.IsBroken(context.Background(), p, site.Liverpool.Broken))
	require.Equal(t, 3, p.queries[".o-content__noResultsNullSearch"])
}

func TestStaticPageIsNotRetried(t *testing.T) {
	x := New(fast)
	p := newFakePage(false)

	require.True(t, x.IsBroken(context.Background(), p, site.BrokenRule{Missing: []string{"div.pdp"}}))
	require.Equal(t, 1, p.queries["div.pdp"])
}

func TestCategory(t *testing.T) {
	x := New(fast)
	ctx := context.Background()
	p := newFakePage(false).add("ol li a", visible("Inicio"), visible("Electrónica"), visible(""), visible("Pantallas"))

	tests := []struct {
		name string
		rule site.BreadcrumbRule
		want *string
	}{
		{"second", site.BreadcrumbRule{Selector: "ol li a", Index: 1}, strPtr("Electrónica")},
		{"reversed", site.BreadcrumbRule{Selector: "ol li a", Index: 0, Reverse: true}, strPtr("Pantallas")},
		{"out of range", site.BreadcrumbRule{Selector: "ol li a", Index: 3}, nil},
		{"missing", site.BreadcrumbRule{Selector: "nav a", Index: 0}, nil},
		{"no selector", site.BreadcrumbRule{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, x.Category(ctx, p, tt.rule))
		})
	}
}

func TestPricePrefersAfterDiscount(t *testing.T) {
	x := New(fast)
	ctx := context.Background()
	rule := site.PriceRule{AfterDiscount: ".after", Original: ".orig", Discount: ".disc"}

	both := newFakePage(false).
		add(".after", visible("$1,499.00")).
		add(".orig", visible("$1,999.00")).
		add(".disc", visible("-$500.00"))
	price, discount := x.Price(ctx, both, rule)
	require.Equal(t, "1499.00", *price)
	require.Equal(t, "-$500.00", *discount)

	onlyOriginal := newFakePage(false).add(".orig", visible("$199.00"))
	price, discount = x.Price(ctx, onlyOriginal, rule)
	require.Equal(t, "199.00", *price)
	require.Nil(t, discount)

	emptyAfter := newFakePage(false).add(".after", visible("")).add(".orig", visible("$5"))
	price, _ = x.Price(ctx, emptyAfter, rule)
	require.Equal(t, "5", *price)

	none := newFakePage(false)
	price, discount = x.Price(ctx, none, rule)
	require.Nil(t, price)
	require.Nil(t, discount)
}

func TestPriceWithoutDiscountSpendsNoRetries(t *testing.T) {
	x := New(fast)
	ctx := context.Background()
	rule := site.PriceRule{AfterDiscount: ".after", Original: ".orig", Discount: ".disc"}

	p := newFakePage(true).add(".orig", visible("$12,999.00"))
	price, discount := x.Price(ctx, p, rule)
	require.Equal(t, "12999.00", *price)
	require.Nil(t, discount)
	require.Equal(t, 1, p.queries[".after"])
	require.Equal(t, 1, p.queries[".orig"])
	require.Equal(t, 1, p.queries[".disc"])
}

func TestPriceRetriesLatePriceBlock(t *testing.T) {
	x := New(fast)
	rule := site.PriceRule{AfterDiscount: ".after", Original: ".orig", Discount: ".disc"}

	p := newFakePage(true).
		add(".after", visible("$899.00")).
		add(".orig", visible("$999.00")).
		add(".disc", visible("-$100.00"))
	p.appearAt[".after"] = 2
	p.appearAt[".orig"] = 2

	price, discount := x.Price(context.Background(), p, rule)
	require.Equal(t, "899.00", *price)
	require.Equal(t, "-$100.00", *discount)
	require.Equal(t, 2, p.queries[".after"])

	never := newFakePage(true).add(".disc", visible("-$100.00"))
	price, discount = x.Price(context.Background(), never, rule)
	require.Nil(t, price)
	require.Nil(t, discount)
	require.Equal(t, 3, never.queries[".orig"])
	require.Zero(t, never.queries[".disc"])
}

func TestAvailabilityPriority(t *testing.T) {
	x := New(fast)
	ctx := context.Background()
	rules := []site.AvailabilityRule{
		{Status: models.StatusOutOfStock, Selector: "button.cart", Disabled: true},
		{Status: models.StatusOutOfStock, Selector: "button", Text: "Agotado"},
		{Status: models.StatusInStock, Selector: "button", Text: "Agregar al Carrito", Enabled: true},
		{Status: models.StatusInStockZipRequired, Selector: "button", Contains: "código postal"},
		{Status: models.StatusInStockZipRequired, Selector: "input[name=postalCode]"},
	}

	tests := []struct {
		name     string
		page     *fakePage
		want     models.Status
		resolved bool
	}{
		{"out of stock wins", newFakePage(false).add("button", visible("Agregar al Carrito"), visible("Agotado")), models.StatusOutOfStock, true},
		{"in stock", newFakePage(false).add("button", visible("Agregar al Carrito")), models.StatusInStock, true},
		{"disabled cart is not in stock", newFakePage(false).add("button", disabled("Agregar al Carrito")), models.StatusLinkBroken, false},
		{"zip button", newFakePage(false).add("button", visible("Establecer Código Postal")), models.StatusInStockZipRequired, true},
		{"zip form", newFakePage(false).add("input[name=postalCode]", visible("")), models.StatusInStockZipRequired, true},
		{"hidden button ignored", newFakePage(false).add("button", engine.Node{Text: "Agotado"}), models.StatusLinkBroken, false},
		{"disabled cart control", newFakePage(false).add("button.cart", disabled("Añadir a la bolsa")), models.StatusOutOfStock, true},
		{"nothing", newFakePage(false), models.StatusLinkBroken, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, resolved := x.Availability(ctx, tt.page, rules, models.StatusLinkBroken)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.resolved, resolved)
		})
	}
}

func TestAvailabilityRetriesLivePage(t *testing.T) {
	x := New(fast)
	rules := []site.AvailabilityRule{{Status: models.StatusInStock, Selector: "#buy"}}

	late := newFakePage(true).add("#buy", visible("Comprar ahora"))
	late.appearAt["#buy"] = 2
	got, resolved := x.Availability(context.Background(), late, rules, models.StatusOutOfStock)
	require.Equal(t, models.StatusInStock, got)
	require.True(t, resolved)

	stale := newFakePage(true).add("#buy", visible("Comprar ahora"))
	stale.stale["#buy"] = 2
	got, _ = x.Availability(context.Background(), stale, rules, models.StatusOutOfStock)
	require.Equal(t, models.StatusInStock, got)
	require.Equal(t, 3, stale.queries["#buy"])

	never := newFakePage(true)
	got, resolved = x.Availability(context.Background(), never, rules, models.StatusOutOfStock)
	require.Equal(t, models.StatusOutOfStock, got)
	require.False(t, resolved)
	require.Equal(t, 3, never.queries["#buy"])
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$199.00", "199.00", true},
		{"$1,299.00", "1299.00", true},
		{"MXN 12,999", "12999", true},
		{"1.299,50 €", "1299.50", true},
		{"$ 3 499.00", "3499.00", true},
		{"12.5", "12.5", true},
		{"199", "199", true},
		{"Precio no disponible", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizePrice(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func strPtr(s string) *string { return &s }
