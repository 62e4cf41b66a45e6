package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"weibogeo/pkg/geocode"
)

var (
	geocodeInput   string
	geocodeOutput  string
	geocodeNoCache bool
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve place names to coordinates",
	Long: `Resolve the place names in a CSV file to coordinates using the Amap
geocoding API. The input's first column holds the place names; the
output is a location,coordinates CSV consumed by 'urls' and 'collect'.

Unresolvable places stay in the output with an empty coordinates column
so they can be reviewed instead of silently disappearing.`,
	Example: `  weibogeo geocode -i locations.csv -o geocoded.csv
  weibogeo geocode -i locations.csv -o geocoded.csv --no-cache`,
	RunE: runGeocode,
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	geocodeCmd.Flags().StringVarP(&geocodeInput, "input", "i", "locations.csv", "input CSV of place names")
	geocodeCmd.Flags().StringVarP(&geocodeOutput, "output", "o", "geocoded.csv", "output CSV of geocoded places")
	geocodeCmd.Flags().BoolVar(&geocodeNoCache, "no-cache", false, "bypass the geocode cache")
}

func runGeocode(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	names, err := readLocationNames(geocodeInput)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache geocode.Cache
	if !geocodeNoCache {
		if cfg.Geocode.RedisAddr != "" {
			cache = geocode.NewRedisCache(cfg.Geocode.RedisAddr, cfg.Geocode.CacheTTL)
		} else {
			cache = geocode.NewMemoryCache(cfg.Geocode.CacheTTL)
		}
	}

	geocoder := geocode.New(cfg, cache, log)
	locations, err := geocoder.ResolveAll(ctx, names)
	if err != nil {
		return err
	}

	if err := writeGeocodedCSV(geocodeOutput, locations); err != nil {
		return err
	}

	resolved := 0
	for _, loc := range locations {
		if loc.Resolved() {
			resolved++
		}
	}
	fmt.Printf("Geocoded %d/%d locations -> %s\n", resolved, len(locations), geocodeOutput)
	return nil
}
