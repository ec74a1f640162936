// Command server runs the authoritative tick simulation: it loads (or
// creates) the tile map, opens the client listener, and drives
// internal/simulation.Sim.RunTick once per configured timestep until
// interrupted.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tessera-mmo/core/internal/cache"
	"github.com/tessera-mmo/core/internal/config"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/eventbus"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/netruntime"
	"github.com/tessera-mmo/core/internal/observability"
	"github.com/tessera-mmo/core/internal/regional"
	"github.com/tessera-mmo/core/internal/simulation"
	"github.com/tessera-mmo/core/internal/storage"
	"github.com/tessera-mmo/core/internal/tickadjust"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/wire"
)

// defaultExtent is the world size a fresh map is created with when no save
// file exists yet at Map.DataPathOrDefault.
var defaultExtent = tilemap.ChunkExtent{LenX: 16, LenY: 16, LenZ: 1}

func main() {
	if err := logging.InitLogger(); err != nil {
		log.Fatalf("logging: init failed: %v", err)
	}
	defer logging.CloseLogger()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: load failed: %v", err)
	}

	tiles := loadOrCreateMap(cfg)

	codec, err := wire.NewCodec(cfg.Map.CompressionThresholdOrDefault())
	if err != nil {
		log.Fatalf("wire: codec init failed: %v", err)
	}
	defer codec.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Server.GetPort())
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Fatalf("netruntime: listen on %s failed: %v", listenAddr, err)
	}

	lower, upper := cfg.TickAdjust.AcceptableBounds()
	clientTimeout := cfg.Simulation.ClientTimeout()
	maxLower, maxUpper := cfg.TickAdjust.MaxBounds(clientTimeout, cfg.Simulation.TickTimestep())
	bounds := tickadjust.Bounds{
		HistoryLength:        cfg.TickAdjust.HistoryLength(cfg.Simulation.TickTimestep()),
		MinFreshDiffs:        cfg.TickAdjust.MinFreshDiffsOrDefault(),
		Target:               tickadjust.Diff(cfg.TickAdjust.TargetOrDefault()),
		AcceptableBoundLower: tickadjust.Diff(lower),
		AcceptableBoundUpper: tickadjust.Diff(upper),
		MaxBoundLower:        tickadjust.Diff(maxLower),
		MaxBoundUpper:        tickadjust.Diff(maxUpper),
	}

	rt := netruntime.New(listener, codec, netruntime.Config{
		MaxClients:    cfg.Server.GetMaxClients(),
		ClientTimeout: clientTimeout,
		Bounds:        bounds,
	})

	metrics := observability.NewMetrics()
	metrics.Serve(observability.Addr(cfg.Server.GetMetricsPort()))
	rt.WithFlushObserver(metrics.ObserveBatchSize)

	store := entity.NewStore(entity.NewPool())
	spawner := simulation.NewSpawnAllocator(cfg.Spawn)

	sim := simulation.New(simulation.FromConfig(cfg), store, tiles, rt, codec, spawner).
		WithMetrics(metrics)

	if chunkCache := connectChunkCache(cfg); chunkCache != nil {
		sim = sim.WithChunkCache(chunkCache)
		defer func() {
			if err := chunkCache.Close(); err != nil {
				logging.Warn("cache: close failed: %v", err)
			}
		}()
	}

	bus := eventbus.NewMemoryBus(1024)
	sim = sim.WithEventBus(bus)
	busExporter := eventbus.NewMetricsExporter(bus)
	busExporter.StartHTTP(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()+1))
	defer busExporter.Stop()

	shardLink := connectShardLink(cfg)
	if shardLink != nil {
		defer shardLink.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)

	logging.Info("server: listening on %s, metrics on :%d", listenAddr, cfg.Server.GetMetricsPort())

	ticker := time.NewTicker(cfg.Simulation.TickTimestep())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var tick uint32
	for {
		select {
		case <-ticker.C:
			sim.RunTick(tick)
			tick++
		case sig := <-sigCh:
			logging.Info("server: received %v, shutting down", sig)
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				logging.Warn("server: metrics shutdown: %v", err)
			}
			shutdownCancel()
			if err := tiles.Save(cfg.Map.DataPathOrDefault()); err != nil {
				logging.Warn("server: final map save failed: %v", err)
			}
			logging.Info("server: stopped")
			return
		}
	}
}

func loadOrCreateMap(cfg *config.Config) *tilemap.TileMap {
	sprites := tilemap.NewStaticSpriteRegistry()
	path := cfg.Map.DataPathOrDefault()

	if _, err := os.Stat(path); err == nil {
		tiles, err := tilemap.Load(path, sprites)
		if err != nil {
			log.Fatalf("tilemap: load %s failed: %v", path, err)
		}
		logging.Info("tilemap: loaded map from %s", path)
		return tiles
	}

	logging.Info("tilemap: no saved map at %s, creating a fresh one", path)
	return tilemap.NewTileMap(defaultExtent, sprites)
}

// connectChunkCache wires the Redis hot cache in front of the BadgerDB
// chunk store, if a Redis URL is configured. Returns nil (no cache, the
// simulation falls back to direct tile-map reads) when it isn't.
func connectChunkCache(cfg *config.Config) *cache.RedisCache {
	if cfg.Cache.RedisURL == "" {
		return nil
	}

	chunkStore, err := storage.NewChunkStore(filepath.Dir(cfg.Map.DataPathOrDefault()))
	if err != nil {
		logging.Warn("storage: chunk store init failed, running without hot cache: %v", err)
		return nil
	}
	cold := storage.NewColdStorageAdapter(chunkStore)

	cacheCfg := &cache.CacheConfig{
		RedisURL:             cfg.Cache.RedisURL,
		RedisPassword:        cfg.Cache.RedisPassword,
		RedisDB:              cfg.Cache.RedisDB,
		DefaultTTL:           cfg.Cache.DefaultTTL(),
		WriteBehindEnabled:   cfg.Cache.WriteBehindEnabled,
		WriteBehindInterval:  cfg.Cache.WriteBehindInterval(),
		WriteBehindBatchSize: cfg.Cache.WriteBehindBatchSizeOrDefault(),
	}
	redisCache, err := cache.NewRedisCache(cacheCfg, cold, nil)
	if err != nil {
		logging.Warn("cache: redis connect failed, running without hot cache: %v", err)
		return nil
	}
	logging.Info("cache: connected to %s", cfg.Cache.RedisURL)
	return redisCache
}

// connectShardLink dials NATS for chunk-ownership handoff, if configured.
// A single-shard deployment only ever publishes; it never observes a
// conflicting claim.
func connectShardLink(cfg *config.Config) *regional.ShardLink {
	if cfg.EventBus.URL == "" {
		return nil
	}
	link, err := regional.Connect(cfg.EventBus.URL, "shard-0")
	if err != nil {
		logging.Warn("regional: NATS connect failed, running without shard handoff: %v", err)
		return nil
	}
	logging.Info("regional: connected to %s", cfg.EventBus.URL)
	return link
}
