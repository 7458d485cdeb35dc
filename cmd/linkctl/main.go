// linkctl is a CLI tool for exercising the storefront operations the bot uses.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	linkctl catalog
//	linkctl resolve -url URL | -name NAME
//	linkctl imei -imei IMEI
//	linkctl link -product ID -item ID
//
// Examples:
//
//	linkctl resolve -url https://shop.samsung.com/br/galaxy-s24/p
//	linkctl imei -imei 352099001761481
//	URL=$(linkctl link -product 240836 -item 240841 -q)
//
// Store settings come from the same environment (or CONFIG_FILE) as the bot.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"tradelink/internal/adapter"
	"tradelink/internal/cart"
	"tradelink/internal/catalog"
	"tradelink/internal/config"
	"tradelink/internal/model"
	"tradelink/internal/storefront"
	"tradelink/internal/tradein"
	"tradelink/internal/transport"
)

// Global flags (apply to all commands)
var (
	quiet   bool
	asJSON  bool
	verbose bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow, colorGray, colorBold = "", "", "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "catalog":
		runCatalog(args)
	case "resolve":
		runResolve(args)
	case "imei":
		runIMEI(args)
	case "link":
		runLink(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `linkctl - trade-in cart link tool

Usage:
  linkctl <command> [options]

Commands:
  catalog   List the products offered in the chat
  resolve   List in-stock capacities and colors of a product page
  imei      Validate a trade-in device
  link      Create a cart with one item and print its checkout link

Examples:
  # Show variants and their ids
  linkctl resolve -url https://shop.samsung.com/br/galaxy-s24/p
  linkctl resolve -name "Galaxy S24"

  # Validate a device
  linkctl imei -imei "35 209900 176148 1"

  # Capture a checkout link
  URL=$(linkctl link -product 240836 -item 240841 -q)

Run 'linkctl <command> -h' for command-specific options.
`)
}

// commonFlags registers the global flags on a command's flag set.
func commonFlags(fs *flag.FlagSet) {
	fs.BoolVar(&quiet, "q", false, "Quiet mode: print only the result value")
	fs.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	fs.BoolVar(&verbose, "v", false, "Log upstream requests to stderr")
	fs.Bool("no-color", false, "Disable colored output")
}

func parseFlags(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if f := fs.Lookup("no-color"); f != nil && f.Value.String() == "true" {
		disableColors()
	}
}

// =============================================================================
// SETUP
// =============================================================================

type env struct {
	cfg    *config.Config
	store  adapter.Config
	logger *slog.Logger
}

func loadEnv() env {
	cfg, err := config.LoadStore()
	if err != nil {
		fatal("loading config: %v", err)
	}

	var logger *slog.Logger
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return env{
		cfg:    cfg,
		store:  adapter.Config{StoreHost: cfg.Store.Host, StoreLocale: cfg.Store.Locale},
		logger: logger,
	}
}

// catalog returns the configured product list, or the built-in one.
func (e env) catalog() *catalog.Catalog {
	if e.cfg.Store.CatalogFile == "" {
		return catalog.Default(e.store.BaseURL())
	}
	c, err := catalog.LoadFile(e.cfg.Store.CatalogFile)
	if err != nil {
		fatal("loading catalog: %v", err)
	}
	return c
}

func (e env) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*e.cfg.Store.HTTPTimeout)
}

// =============================================================================
// COMMANDS
// =============================================================================

func runCatalog(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	commonFlags(fs)
	parseFlags(fs, args)

	e := loadEnv()
	products := e.catalog()

	if asJSON {
		printJSON(products.Products())
		return
	}
	for i, p := range products.Products() {
		if quiet {
			fmt.Println(p.URL)
			continue
		}
		fmt.Printf("%s%2d%s %s%s%s\n   %s%s%s\n", colorGray, i, colorReset, colorBold, p.Name, colorReset, colorGray, p.URL, colorReset)
	}
}

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	productURL := fs.String("url", "", "Storefront product page URL")
	productName := fs.String("name", "", "Catalog product name, instead of -url")
	commonFlags(fs)
	parseFlags(fs, args)

	if (*productURL == "") == (*productName == "") {
		fatal("exactly one of -url or -name is required")
	}

	e := loadEnv()
	if *productName != "" {
		p, ok := e.catalog().Lookup(*productName)
		if !ok {
			fatal("no catalog product named %q (see 'linkctl catalog')", *productName)
		}
		*productURL = p.URL
	}
	resolver, err := storefront.New(storefront.Config{
		Store:          e.store,
		CapacityAPIURL: e.cfg.Store.CapacityAPIURL,
		HTTPClient:     transport.NewHTTPClient(e.cfg.Store.HTTPTimeout),
		Timeout:        e.cfg.Store.HTTPTimeout,
		Logger:         e.logger,
	})
	if err != nil {
		fatal("creating resolver: %v", err)
	}

	ctx, cancel := e.context()
	defer cancel()

	printInfo("resolving %s", *productURL)
	start := time.Now()
	variants, err := resolver.Resolve(ctx, *productURL)
	if err != nil {
		fatalErr(err)
	}
	printInfo("resolved in %v", time.Since(start).Round(time.Millisecond))

	if asJSON {
		printJSON(variants)
		return
	}
	for _, capacity := range variants.Capacities() {
		v := variants[capacity]
		if quiet {
			for _, color := range v.SortedColors() {
				fmt.Printf("%s\t%s\t%s\t%s\n", capacity, color, v.ProductID, v.Colors[color])
			}
			continue
		}
		fmt.Printf("%s%s%s  product %s\n", colorBold, capacity, colorReset, v.ProductID)
		for _, color := range v.SortedColors() {
			fmt.Printf("  %-20s item %s\n", color, v.Colors[color])
		}
	}
}

func runIMEI(args []string) {
	fs := flag.NewFlagSet("imei", flag.ExitOnError)
	imei := fs.String("imei", "", "Device IMEI, spaces and dashes allowed (required)")
	commonFlags(fs)
	parseFlags(fs, args)

	if *imei == "" {
		fatal("-imei is required")
	}

	e := loadEnv()
	client, err := tradein.New(tradein.Config{
		Endpoint:   e.cfg.Store.TradeInAPIURL,
		HTTPClient: transport.NewHTTPClient(e.cfg.Store.HTTPTimeout),
		Timeout:    e.cfg.Store.HTTPTimeout,
		Logger:     e.logger,
	})
	if err != nil {
		fatal("creating trade-in client: %v", err)
	}

	ctx, cancel := e.context()
	defer cancel()

	device, err := client.Lookup(ctx, *imei)
	if err != nil {
		fatalErr(err)
	}

	if asJSON {
		printJSON(device)
		return
	}
	if quiet {
		fmt.Printf("%s %s\n", device.Brand, device.Model)
		return
	}
	printSuccess("%s %s (%s)", device.Brand, device.Model, device.IMEI)
	if len(device.Capacities) == 0 {
		printWarning("no storage options reported")
	}
	for _, c := range device.Capacities {
		fmt.Printf("  %s\n", c)
	}
}

func runLink(args []string) {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	productID := fs.String("product", "", "Product id of the chosen capacity (required)")
	itemID := fs.String("item", "", "Item (SKU) id of the chosen color (required)")
	count := fs.Int("n", 1, "Number of links to build")
	commonFlags(fs)
	parseFlags(fs, args)

	if *productID == "" || *itemID == "" {
		fatal("-product and -item are required")
	}
	if *count < 1 {
		fatal("-n must be at least 1")
	}

	e := loadEnv()
	builder, err := cart.New(cart.Config{
		Store:      e.store,
		HTTPClient: transport.NewHTTPClient(e.cfg.Store.HTTPTimeout),
		Timeout:    e.cfg.Store.HTTPTimeout,
		Logger:     e.logger,
	})
	if err != nil {
		fatal("creating cart builder: %v", err)
	}

	links := make([]*model.CartLink, 0, *count)
	for i := 0; i < *count; i++ {
		ctx, cancel := e.context()
		link, err := builder.Build(ctx, *productID, *itemID)
		cancel()
		if err != nil {
			printLinks(links)
			fatalErr(err)
		}
		links = append(links, link)
	}
	printLinks(links)
}

func printLinks(links []*model.CartLink) {
	if asJSON {
		printJSON(links)
		return
	}
	for i, link := range links {
		if quiet {
			fmt.Println(link.URL)
			continue
		}
		tag := colorYellow + "no discount tag" + colorReset
		if link.Discounted {
			tag = colorGreen + "discount tag attached" + colorReset
		}
		fmt.Printf("%s%d.%s %s  %s\n", colorGray, i+1, colorReset, link.URL, tag)
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encoding output: %v", err)
	}
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
	}
}

func printInfo(format string, args ...any) {
	if !quiet && !asJSON {
		fmt.Fprintf(os.Stderr, "%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

// fatalErr prints the error code and the chat-facing text before exiting.
func fatalErr(err error) {
	if code := model.CodeOf(err); code != "" {
		fatal("%s: %s (%v)", code, model.UserMessage(err), err)
	}
	fatal("%v", err)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
