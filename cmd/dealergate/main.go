package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fatih/color"

	"github.com/InventoLabs/dealergate/client"
	"github.com/InventoLabs/dealergate/config"
	"github.com/InventoLabs/dealergate/gallery"
	"github.com/InventoLabs/dealergate/staging"
)

var (
	logger     *slog.Logger
	configPath string
	country    string
	verbose    bool
)

func init() {
	flag.StringVar(&configPath, "config", "dealergate.yaml", "Path to the configuration file")
	flag.StringVar(&country, "country", "", "Country segment override (defaults to the configured country)")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fail("could not load config: %v", err)
	}

	tokens, err := client.NewPasswordGrantProvider(client.PasswordGrantConfig{
		TokenURL: cfg.Auth.TokenURL,
		ClientID: cfg.Auth.ClientID,
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
		Logger:   logger,
	})
	if err != nil {
		fail("could not build token provider: %v", err)
	}

	gatewayCountry := cfg.API.Country
	if country != "" {
		gatewayCountry = country
	}

	gw, err := client.NewClient(&client.Config{
		BaseURL:        cfg.API.BaseURL,
		Country:        gatewayCountry,
		Tokens:         tokens,
		Timeout:        cfg.API.Timeout,
		RetryAttempts:  cfg.API.Retry.Attempts,
		RetryBaseDelay: cfg.API.Retry.BaseDelay,
		RateLimit:      cfg.API.RateLimit.Limit,
		RateBurst:      cfg.API.RateLimit.Burst,
		LeadTimeout:    cfg.Leads.Timeout,
		SkipVerify:     cfg.API.SkipVerify,
		Logger:         logger,
	})
	if err != nil {
		fail("could not build gateway: %v", err)
	}

	assets := staging.NewStore(logger, cfg.Staging.Dir)
	pipeline := gallery.New(logger, gw, assets)

	ctx := context.Background()

	switch cmd := args[0]; cmd {
	case "vehicle":
		requireArgs(args, 2, "vehicle <vehicleId>")
		v, err := gw.GetVehicle(ctx, args[1])
		if err != nil {
			fail("%v", err)
		}
		printJSON(v)

	case "images":
		requireArgs(args, 2, "images <vehicleId>")
		imgs, err := gw.VehicleImages(ctx, args[1])
		if err != nil {
			fail("%v", err)
		}
		printJSON(imgs)

	case "upload":
		requireArgs(args, 4, "upload <vehicleId> <mainIndex> <file|url|data-uri>...")
		mainIndex, err := strconv.Atoi(args[2])
		if err != nil {
			fail("main index must be an integer, got %q", args[2])
		}
		descriptors := make([]any, 0, len(args)-3)
		for _, a := range args[3:] {
			descriptors = append(descriptors, a)
		}
		result, err := pipeline.UploadAny(ctx, args[1], descriptors, mainIndex)
		if err != nil {
			fail("%v", err)
		}
		for _, u := range result.Uploaded {
			marker := ""
			if u.Main {
				marker = " (main)"
			}
			color.Green("uploaded [%d] -> %s via %s%s", u.Index, u.ImageID, u.Strategy, marker)
		}
		for _, e := range result.Errors {
			color.Red("failed  [%d] %s", e.Index, e.Error)
		}
		if !result.Success {
			os.Exit(1)
		}

	case "set-main":
		requireArgs(args, 3, "set-main <vehicleId> <imageId>")
		if err := pipeline.SetMainImage(ctx, args[1], args[2]); err != nil {
			fail("%v", err)
		}
		color.Green("main image set to %s", args[2])

	case "delete-image":
		requireArgs(args, 3, "delete-image <vehicleId> <imageId>")
		if err := gw.DeleteVehicleImage(ctx, args[1], args[2]); err != nil {
			fail("%v", err)
		}
		color.Green("deleted %s", args[2])

	case "token":
		if _, err := tokens.Token(ctx); err != nil {
			fail("%v", err)
		}
		color.Green("credential exchange ok")

	case "sweep":
		removed, err := assets.Sweep(cfg.Staging.SweepAfter)
		if err != nil {
			fail("%v", err)
		}
		fmt.Printf("removed %d leaked staged files\n", removed)

	default:
		usage()
		os.Exit(1)
	}
}

func requireArgs(args []string, n int, form string) {
	if len(args) < n {
		fail("usage: dealergate %s", form)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("could not render response: %v", err)
	}
	fmt.Println(string(out))
}

func fail(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `dealergate - dealership inventory gateway CLI

Usage:
  dealergate [-config file] [-country cc] [-v] <command> [args]

Commands:
  vehicle <vehicleId>                          Fetch a vehicle record
  images <vehicleId>                           List a vehicle's gallery
  upload <vehicleId> <mainIndex> <image>...    Upload images (file paths, URLs or data URIs)
  set-main <vehicleId> <imageId>               Designate the main gallery image
  delete-image <vehicleId> <imageId>           Remove a gallery image
  token                                        Verify the credential exchange
  sweep                                        Remove leaked staged files`)
}
