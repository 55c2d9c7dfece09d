package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/constructs/internal/config"
	"github.com/annel0/constructs/internal/eventbus"
	"github.com/annel0/constructs/internal/storage"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		configPath = flag.String("config", "", "Путь к YAML конфигурации (по умолчанию CONSTRUCTS_CONFIG)")
		command    = flag.String("cmd", "tail", "Команда: tail, dump")
		eventTypes = flag.String("types", "", "Фильтр типов событий (через запятую)")
		limit      = flag.Int("limit", 0, "Остановиться после N событий (0: без ограничения)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	switch *command {
	case "tail":
		if err := tailEvents(cfg, parseStringList(*eventTypes), *limit); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}
	case "dump":
		if err := dumpStore(cfg); err != nil {
			log.Fatalf("❌ Dump failed: %v", err)
		}
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		flag.Usage()
		os.Exit(1)
	}
}

// tailEvents печатает события шины построек до Ctrl+C или limit
func tailEvents(cfg *config.Config, types []string, limit int) error {
	if cfg.EventBus.URL == "" {
		return fmt.Errorf("eventbus.url не задан: нечего слушать")
	}
	bus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream,
		time.Duration(cfg.EventBus.Retention)*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seen := make(chan struct{}, 16)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		fmt.Printf("%s  %-22s %-12s %s\n", ev.Timestamp.UTC().Format(timeFormat), ev.EventType, ev.Source, ev.Payload)
		seen <- struct{}{}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("🎬 Слушаем %s (stream=%s)\n", cfg.EventBus.URL, cfg.EventBus.Stream)
	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n📊 Всего событий: %d\n", count)
			return nil
		case <-seen:
			count++
			if limit > 0 && count >= limit {
				fmt.Printf("\n📊 Всего событий: %d\n", count)
				return nil
			}
		}
	}
}

// dumpStore выводит сводку по сохранённым постройкам
func dumpStore(cfg *config.Config) error {
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	codec, err := storage.NewCodec()
	if err != nil {
		return err
	}
	defer codec.Close()

	records, err := store.LoadAll(context.Background())
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("📦 %s: %d построек\n", cfg.Storage.Backend, len(ids))
	for _, id := range ids {
		snap, err := codec.Decode(records[id])
		if err != nil {
			fmt.Printf("  ⚠️  %s: %v\n", id, err)
			continue
		}
		bounds := "-"
		if snap.Bounds != nil {
			bounds = fmt.Sprintf("(%d,%d,%d)..(%d,%d,%d)",
				snap.Bounds.Min.X, snap.Bounds.Min.Y, snap.Bounds.Min.Z,
				snap.Bounds.Max.X, snap.Bounds.Max.Y, snap.Bounds.Max.Z)
		}
		fmt.Printf("  %-32s %s блоков=%d сущностей=%d комнат=%d\n",
			id, bounds, len(snap.Blocks), len(snap.Entities), len(snap.Rooms))
	}
	return nil
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
