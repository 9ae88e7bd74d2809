// Package config defines the Quarry configuration record and its
// persistence/versioning rules (spec.md §3, §4.9 "config version drift").
package config

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/geometry"
	"github.com/DannyDoesGraphics/auto-mine/internal/storage"
)

// Offset is a relative (dx,dy,dz) from the spawn column used to locate a
// chest or rest slot.
type Offset struct {
	DX, DY, DZ int
}

// Config carries everything a freshly-joined agent needs to behave
// identically to its peers: the bounding box, tunnel/layer spacing, fuel
// thresholds, chest offsets, and the allowed-fuel/ore-tag sets.
type Config struct {
	ConfigVersion uint64              `json:"configVersion"`
	BBox          geometry.BoundingBox `json:"bbox"`
	TunnelSpacing int                 `json:"tunnelSpacing"`
	LayerSpacing  int                 `json:"layerSpacing"`
	ChunkLength   int                 `json:"chunkLength"`
	FuelReserve   int                 `json:"fuelReserve"`
	TargetFuel    int                 `json:"targetFuel"`
	KeepFuelItems int                 `json:"keepFuelItems"`
	SafetyMargin  int                 `json:"safetyMargin"`
	SpawnFacing   geometry.Dir        `json:"spawnFacing"`
	FuelChestOffset   Offset          `json:"fuelChestOffset"`
	DepositOffset     Offset          `json:"depositOffset"`
	RestSlotOffset    Offset          `json:"restSlotOffset"`
	AllowedFuel   []string            `json:"allowedFuel"`
	OreTags       []string            `json:"oreTags"`
	MaxJobFailures int                `json:"maxJobFailures"`
	OreFloodFillCap int               `json:"oreFloodFillCap"`
	ClearRetryLimit int               `json:"clearRetryLimit"`
	HeartbeatInterval int             `json:"heartbeatIntervalMs"`
	HeartbeatTimeout  int             `json:"heartbeatTimeoutMs"`
}

// Default returns sane defaults for a fresh quarry, matching the scenario
// in spec.md §8.1 (bbox 8x6x16, spacing 3/3, chunk length 4).
func Default() Config {
	return Config{
		ConfigVersion: 1,
		BBox:          geometry.BoundingBox{MaxX: 8, MaxY: 6, MaxZ: 16, ConfigVersion: 1},
		TunnelSpacing: 3,
		LayerSpacing:  3,
		ChunkLength:   4,
		FuelReserve:   200,
		TargetFuel:    2000,
		KeepFuelItems: 64,
		SafetyMargin:  20,
		SpawnFacing:   geometry.DirNorth,
		FuelChestOffset: Offset{DX: 0, DY: 0, DZ: -1},
		DepositOffset:   Offset{DX: 1, DY: 0, DZ: -1},
		RestSlotOffset:  Offset{DX: -1, DY: 0, DZ: -1},
		AllowedFuel:     []string{"minecraft:coal", "minecraft:charcoal", "minecraft:lava_bucket"},
		OreTags:         []string{"minecraft:coal_ore", "minecraft:iron_ore", "minecraft:gold_ore", "minecraft:diamond_ore"},
		MaxJobFailures:  5,
		OreFloodFillCap: 64,
		ClearRetryLimit: 8,
		HeartbeatInterval: 2000,
		HeartbeatTimeout:  8000,
	}
}

var configKey = []byte("config")

// Store persists Config through the storage layer, keyed by quarry id via
// the caller's table-scoped Database (storage.Table(root, "config/"+quarryId+"/")).
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store { return &Store{db: db} }

func (s *Store) Load() (Config, bool, error) {
	raw, err := s.db.Get(configKey)
	if err != nil {
		// goleveldb/badger both return a "not found" sentinel; either way,
		// treat "no config yet" as the fresh-quarry bootstrap case.
		return Config{}, false, nil
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, false, errors.Wrap(err, "config: corrupt record")
	}
	return c, true, nil
}

func (s *Store) Save(c Config) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "config: marshal")
	}
	return s.db.Put(configKey, raw)
}

// TunnelOrigins enumerates the (x, y) plan grid a fresh quarry tiles,
// matching spec.md §4.7: for each y in {0, layerSpacing, 2*layerSpacing,
// ...} <= bbox.MaxY and each x in {0, tunnelSpacing, ...} <= bbox.MaxX.
func (c Config) TunnelOrigins() [][2]int {
	var origins [][2]int
	for y := 0; y <= c.BBox.MaxY; y += c.LayerSpacing {
		for x := 0; x <= c.BBox.MaxX; x += c.TunnelSpacing {
			origins = append(origins, [2]int{x, y})
		}
	}
	return origins
}
