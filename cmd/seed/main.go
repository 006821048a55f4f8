// Package main provides the content seeder that loads zone, ability, and
// companion definitions from YAML files into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riftwalk/server/internal/config"
	"github.com/riftwalk/server/internal/game/combat"
	"github.com/riftwalk/server/internal/storage/postgres"
)

type zoneDoc struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Spawn       vec3Doc `yaml:"spawn"`
}

type vec3Doc struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type statsDoc struct {
	Level     int     `yaml:"level"`
	Strength  float64 `yaml:"strength"`
	Agility   float64 `yaml:"agility"`
	Vitality  float64 `yaml:"vitality"`
	Intellect float64 `yaml:"intellect"`
	Willpower float64 `yaml:"willpower"`
	Luck      float64 `yaml:"luck"`
}

type companionDoc struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Zone        string    `yaml:"zone"`
	Position    vec3Doc   `yaml:"position"`
	Stats       *statsDoc `yaml:"stats"`
	Personality string    `yaml:"personality"`
}

type scalingDoc struct {
	Type       string  `yaml:"type"`
	Amount     float64 `yaml:"amount"`
	Stat       string  `yaml:"stat"`
	Multiplier float64 `yaml:"multiplier"`
}

type abilityDoc struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	TargetType  string      `yaml:"target_type"`
	RangeFeet   float64     `yaml:"range_feet"`
	RangeMetres float64     `yaml:"range_m"`
	Cooldown    float64     `yaml:"cooldown"`
	ATBCost     float64     `yaml:"atb_cost"`
	IsBuilder   bool        `yaml:"is_builder"`
	IsFree      bool        `yaml:"is_free"`
	StaminaCost float64     `yaml:"stamina_cost"`
	ManaCost    float64     `yaml:"mana_cost"`
	HealthCost  float64     `yaml:"health_cost"`
	CastTime    float64     `yaml:"cast_time"`
	AoERadius   float64     `yaml:"aoe_radius"`
	Damage      *scalingDoc `yaml:"damage"`
	Healing     *scalingDoc `yaml:"healing"`
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/zone.yaml", "path to configuration file")
	contentDir := flag.String("content", "content", "path to content directory (zones/, abilities/, companions/)")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	zones, err := seedZones(ctx, pool, filepath.Join(*contentDir, "zones"))
	if err != nil {
		log.Fatalf("seeding zones: %v", err)
	}
	abilities, err := seedAbilities(ctx, pool, filepath.Join(*contentDir, "abilities"))
	if err != nil {
		log.Fatalf("seeding abilities: %v", err)
	}
	companions, err := seedCompanions(ctx, pool, filepath.Join(*contentDir, "companions"))
	if err != nil {
		log.Fatalf("seeding companions: %v", err)
	}

	fmt.Fprintf(os.Stdout, "seeded %d zones, %d abilities, %d companions [%s]\n",
		zones, abilities, companions, time.Since(start).Round(time.Millisecond))
}

// loadDocs parses every .yaml file in dir into docs of type T. A missing
// directory is not an error so partial content trees seed cleanly.
func loadDocs[T any](dir string) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]T, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var doc T
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func seedZones(ctx context.Context, pool *postgres.Pool, dir string) (int, error) {
	docs, err := loadDocs[zoneDoc](dir)
	if err != nil {
		return 0, err
	}
	db := pool.DB()
	for _, z := range docs {
		if z.ID == "" || z.Name == "" {
			return 0, fmt.Errorf("zone definition missing id or name: %+v", z)
		}
		_, err := db.Exec(ctx, `
			INSERT INTO zones (id, name, description, spawn_x, spawn_y, spawn_z)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				spawn_x = EXCLUDED.spawn_x,
				spawn_y = EXCLUDED.spawn_y,
				spawn_z = EXCLUDED.spawn_z`,
			z.ID, z.Name, z.Description, z.Spawn.X, z.Spawn.Y, z.Spawn.Z,
		)
		if err != nil {
			return 0, fmt.Errorf("upserting zone %s: %w", z.ID, err)
		}
	}
	return len(docs), nil
}

func seedAbilities(ctx context.Context, pool *postgres.Pool, dir string) (int, error) {
	docs, err := loadDocs[abilityDoc](dir)
	if err != nil {
		return 0, err
	}
	db := pool.DB()
	for _, a := range docs {
		if a.ID == "" || a.Name == "" {
			return 0, fmt.Errorf("ability definition missing id or name: %+v", a)
		}
		rangeM := a.RangeMetres
		if rangeM == 0 && a.RangeFeet > 0 {
			rangeM = a.RangeFeet * 0.3048
		}

		var damage, healing []byte
		if a.Damage != nil {
			damage, err = json.Marshal(combat.DamageSpec{
				Type:              combat.DamageType(a.Damage.Type),
				Amount:            a.Damage.Amount,
				ScalingStat:       a.Damage.Stat,
				ScalingMultiplier: a.Damage.Multiplier,
			})
			if err != nil {
				return 0, fmt.Errorf("encoding damage for %s: %w", a.ID, err)
			}
		}
		if a.Healing != nil {
			healing, err = json.Marshal(combat.HealingSpec{
				Amount:            a.Healing.Amount,
				ScalingStat:       a.Healing.Stat,
				ScalingMultiplier: a.Healing.Multiplier,
			})
			if err != nil {
				return 0, fmt.Errorf("encoding healing for %s: %w", a.ID, err)
			}
		}

		_, err := db.Exec(ctx, `
			INSERT INTO abilities (id, name, description, target_type, range_m, cooldown_s,
				atb_cost, is_builder, is_free, stamina_cost, mana_cost, health_cost,
				cast_time, aoe_radius, damage, healing)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				target_type = EXCLUDED.target_type,
				range_m = EXCLUDED.range_m,
				cooldown_s = EXCLUDED.cooldown_s,
				atb_cost = EXCLUDED.atb_cost,
				is_builder = EXCLUDED.is_builder,
				is_free = EXCLUDED.is_free,
				stamina_cost = EXCLUDED.stamina_cost,
				mana_cost = EXCLUDED.mana_cost,
				health_cost = EXCLUDED.health_cost,
				cast_time = EXCLUDED.cast_time,
				aoe_radius = EXCLUDED.aoe_radius,
				damage = EXCLUDED.damage,
				healing = EXCLUDED.healing`,
			a.ID, a.Name, a.Description, a.TargetType, rangeM, a.Cooldown,
			a.ATBCost, a.IsBuilder, a.IsFree, a.StaminaCost, a.ManaCost, a.HealthCost,
			a.CastTime, a.AoERadius, damage, healing,
		)
		if err != nil {
			return 0, fmt.Errorf("upserting ability %s: %w", a.ID, err)
		}
	}
	return len(docs), nil
}

func seedCompanions(ctx context.Context, pool *postgres.Pool, dir string) (int, error) {
	docs, err := loadDocs[companionDoc](dir)
	if err != nil {
		return 0, err
	}
	db := pool.DB()
	for _, c := range docs {
		if c.ID == "" || c.Name == "" || c.Zone == "" {
			return 0, fmt.Errorf("companion definition missing id, name, or zone: %+v", c)
		}

		stats := postgres.DefaultCompanionStats()
		if c.Stats != nil {
			stats = combat.CoreStats{
				Level:     c.Stats.Level,
				Strength:  c.Stats.Strength,
				Agility:   c.Stats.Agility,
				Vitality:  c.Stats.Vitality,
				Intellect: c.Stats.Intellect,
				Willpower: c.Stats.Willpower,
				Luck:      c.Stats.Luck,
			}
		}
		statsJSON, err := json.Marshal(stats)
		if err != nil {
			return 0, fmt.Errorf("encoding stats for %s: %w", c.ID, err)
		}
		maxHealth := combat.DeriveCombatStats(stats).MaxHealth

		// Updates deliberately leave current_health alone so reseeding
		// content does not resurrect wounded companions.
		_, err = db.Exec(ctx, `
			INSERT INTO companions (id, name, zone_id, pos_x, pos_y, pos_z,
				stats, current_health, max_health, personality)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				zone_id = EXCLUDED.zone_id,
				pos_x = EXCLUDED.pos_x,
				pos_y = EXCLUDED.pos_y,
				pos_z = EXCLUDED.pos_z,
				stats = EXCLUDED.stats,
				max_health = EXCLUDED.max_health,
				personality = EXCLUDED.personality`,
			c.ID, c.Name, c.Zone, c.Position.X, c.Position.Y, c.Position.Z,
			statsJSON, maxHealth, maxHealth, c.Personality,
		)
		if err != nil {
			return 0, fmt.Errorf("upserting companion %s: %w", c.ID, err)
		}
	}
	return len(docs), nil
}
