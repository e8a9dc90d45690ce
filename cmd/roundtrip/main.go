// Command roundtrip finds one round-trip route for a start point and a time budget
// and prints it as JSON or GeoJSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"roundtrip-router/internal/config"
	"roundtrip-router/internal/geo"
	"roundtrip-router/internal/geocoding"
	"roundtrip-router/internal/models"
	"roundtrip-router/internal/oracle"
	"roundtrip-router/internal/routing"
)

// Exit codes
const (
	exitOK           = 0
	exitError        = 1
	exitInvalidInput = 2
	exitNoRoute      = 3
)

// flag name → config key
var boundFlags = map[string]string{
	"oracle-url":   "ORACLE_URL",
	"profile":      "ORACLE_PROFILE",
	"no-fallback":  "ORACLE_DISABLE_FALLBACK",
	"geocoder-url": "GEOCODER_URL",
	"pace":         "DEFAULT_PACE",
	"tolerance":    "DEFAULT_TOLERANCE",
	"accept-cap":   "ACCEPT_CAP",
	"fan-out":      "FAN_OUT",
}

type result struct {
	Route       *models.OptimizedRoute `json:"route"`
	Diagnostics routing.Diagnostics    `json:"diagnostics"`
	Warnings    []string               `json:"warnings"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	fs := pflag.NewFlagSet("roundtrip", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	lat := fs.Float64("lat", 0, "start latitude")
	lng := fs.Float64("lng", 0, "start longitude")
	address := fs.String("address", "", "start address, resolved with the geocoder")
	minutes := fs.Float64("minutes", 0, "requested route duration in minutes")
	format := fs.String("format", "json", "output format: json or geojson")
	verbose := fs.BoolP("verbose", "v", false, "log search progress to stderr")

	defaults := routing.DefaultOptions()
	fs.String("oracle-url", oracle.DefaultBaseURL, "OSRM-compatible routing service base URL")
	fs.String("profile", oracle.DefaultProfile, "routing profile")
	fs.Bool("no-fallback", false, "fail instead of using straight-line estimates when the routing service is down")
	fs.String("geocoder-url", geocoding.DefaultBaseURL, "Nominatim base URL")
	fs.Float64("pace", defaults.PaceMinutesPerKm, "pace in minutes per kilometer")
	fs.Float64("tolerance", defaults.ToleranceMinutes, "minutes a route may fall short of the request")
	fs.Int("accept-cap", defaults.AcceptCap, "stop after this many accepted candidates")
	fs.Int("fan-out", defaults.FanOut, "candidates evaluated concurrently")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitInvalidInput
	}
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	if *format != "json" && *format != "geojson" {
		fmt.Fprintf(stderr, "error: unknown format %q (want json or geojson)\n", *format)
		return exitInvalidInput
	}

	var start models.Location
	switch {
	case fs.Changed("lat") && fs.Changed("lng"):
		start = models.Location{Lat: *lat, Lng: *lng}
	case *address != "":
		geocoder := geocoding.NewNominatimGeocoder(geocoding.Config{BaseURL: cfg.GeocoderURL})
		res, err := geocoder.GeocodeWithRetry(ctx, *address, 3)
		geocoder.Close()
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitError
		}
		start = res.Location
	default:
		fmt.Fprintln(stderr, "error: give both --lat and --lng, or --address")
		return exitInvalidInput
	}

	opts := cfg.SearchOptions()
	optimizer := routing.NewOptimizer(oracle.NewOSRMClient(cfg.OracleConfig()))
	route, report, err := optimizer.OptimizeWithReport(ctx, start, *minutes, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		var invalid *routing.ErrInvalidInput
		var noRoute *routing.ErrNoRouteFound
		switch {
		case errors.As(err, &invalid):
			return exitInvalidInput
		case errors.As(err, &noRoute):
			if noRoute.Diagnostics.Suggestion != "" {
				fmt.Fprintf(stderr, "hint: %s\n", noRoute.Diagnostics.Suggestion)
			}
			return exitNoRoute
		default:
			return exitError
		}
	}

	for _, w := range report.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}

	var out []byte
	if *format == "geojson" {
		out, err = geo.RouteFeatureCollection(route).MarshalJSON()
	} else {
		out, err = json.MarshalIndent(result{Route: route, Diagnostics: report.Diagnostics, Warnings: report.Warnings}, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, string(out))
	return exitOK
}

// loadConfig layers flags over environment over defaults
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	v.AutomaticEnv()
	for name, key := range boundFlags {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}
	return config.FromViper(v)
}
