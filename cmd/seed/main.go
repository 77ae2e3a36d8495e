// Command seed imports hotels from a JSON file into the catalogue and
// announces each one on NATS so the indexer embeds it.
//
// The file holds a JSON array of hotels in the API's create format.
// Invalid entries are logged and skipped.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stayhub/stayhub/engine/domain"
	"github.com/stayhub/stayhub/engine/index"
	"github.com/stayhub/stayhub/pkg/bootstrap"
	"github.com/stayhub/stayhub/pkg/config"
	"github.com/stayhub/stayhub/pkg/natsutil"
	"github.com/stayhub/stayhub/pkg/store"
)

type hotelCreator interface {
	Create(ctx context.Context, h domain.Hotel) (domain.Hotel, error)
}

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (default $"+config.PathEnv+")")
		file       = flag.String("file", "hotels.json", "JSON array of hotels to import")
		dryRun     = flag.Bool("dry-run", false, "validate the file without writing")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := bootstrap.Logger(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*file)
	if err != nil {
		bootstrap.Fatal(log, "open seed file", err)
	}
	defer f.Close()

	hotels, err := decodeHotels(f)
	if err != nil {
		bootstrap.Fatal(log, "decode seed file", err)
	}
	if *dryRun {
		valid, invalid := partition(hotels)
		log.Info("dry run", "valid", len(valid), "invalid", len(invalid))
		return
	}

	client, db, err := bootstrap.Mongo(ctx, cfg.Mongo)
	if err != nil {
		bootstrap.Fatal(log, "mongo connect", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()

	nc, err := bootstrap.NATS(cfg.NATS, "stayhub-seed", log)
	if err != nil {
		log.Warn("hotel events disabled", "err", err)
	}
	var events natsutil.Publisher
	if nc != nil {
		defer nc.Drain()
		events = nc
	}

	n, err := seed(ctx, store.NewHotels(db), events, hotels, log)
	log.Info("seed finished", "created", n, "total", len(hotels))
	if err != nil {
		bootstrap.Fatal(log, "seed failed", err)
	}
}

func decodeHotels(r io.Reader) ([]domain.Hotel, error) {
	var hotels []domain.Hotel
	if err := json.NewDecoder(r).Decode(&hotels); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	return hotels, nil
}

// partition splits hotels by domain.ValidateHotel.
func partition(hotels []domain.Hotel) (valid []domain.Hotel, invalid []error) {
	for _, h := range hotels {
		if err := domain.ValidateHotel(h); err != nil {
			invalid = append(invalid, err)
			continue
		}
		valid = append(valid, h)
	}
	return valid, invalid
}

// seed creates every valid hotel and publishes a created event for each.
// events may be nil. It stops at the first store error.
func seed(ctx context.Context, hotels hotelCreator, events natsutil.Publisher, in []domain.Hotel, log *slog.Logger) (int, error) {
	valid, invalid := partition(in)
	for _, err := range invalid {
		log.Warn("skipping invalid hotel", "err", err)
	}
	created := 0
	for _, h := range valid {
		h.ID = ""
		out, err := hotels.Create(ctx, h)
		if err != nil {
			return created, fmt.Errorf("seed: create %q: %w", h.Name, err)
		}
		created++
		if events == nil {
			continue
		}
		ev := domain.HotelEvent{HotelID: out.ID, Action: domain.HotelCreated, At: time.Now().UTC()}
		if err := natsutil.Publish(ctx, events, index.SubjectCreated, ev); err != nil {
			log.Warn("hotel event not published", "hotel_id", out.ID, "err", err)
		}
	}
	return created, nil
}
