// Package catalog maps storefront game/variant names to control-plane
// catalog identifiers (nests and eggs) and builds the per-game startup
// environment. Unknown names fall back to documented defaults instead
// of failing, so a drifted panel catalog degrades to a default server
// rather than a lost sale.
package catalog

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/kratos-host/provisioning-service/internal/models"
)

// DefaultGame is used when an order item carries no game name
const DefaultGame = "minecraft"

const defaultKey = "default"

// nestIDs maps a game to its panel nest id
var nestIDs = map[string]int{
	"minecraft":       1,
	"project_zomboid": 2,
	"rust":            3,
	"valheim":         4,
}

// eggIDs maps game -> variant -> panel egg id. Each game carries a
// "default" entry used when the variant is unknown.
var eggIDs = map[string]map[string]int{
	"minecraft": {
		"vanilla":  3,
		"paper":    1,
		"spigot":   1, // paper egg, spigot-compatible
		"forge":    4,
		"fabric":   12,
		defaultKey: 3,
	},
	"project_zomboid": {defaultKey: 16},
	"rust":            {defaultKey: 2},
	"valheim":         {defaultKey: 15},
}

// NestID resolves a game name to its panel nest id, falling back to
// the minecraft nest for unknown games.
func NestID(game string) int {
	if id, ok := nestIDs[game]; ok {
		return id
	}
	return nestIDs[DefaultGame]
}

// EggID resolves a game/variant pair to its panel egg id. Unknown
// variants fall back to the game's default egg; unknown games to the
// default game's default egg.
func EggID(game, variant string) int {
	eggs, ok := eggIDs[game]
	if !ok {
		eggs = eggIDs[DefaultGame]
	}
	if id, ok := eggs[variant]; ok && variant != "" {
		return id
	}
	return eggs[defaultKey]
}

// EnvBuilder produces the startup environment for one game family
type EnvBuilder func(cfg *models.GameServerConfig) map[string]string

// envBuilders is the per-game template registry. Adding a game is one
// entry here, no central dispatch to touch.
var envBuilders = map[string]EnvBuilder{
	"minecraft":       minecraftEnv,
	"project_zomboid": zomboidEnv,
	"rust":            rustEnv,
	"valheim":         valheimEnv,
}

// BuildEnvironment returns the environment variables for a game server
// configuration. Unknown games get an empty environment and the panel
// egg's own defaults apply.
func BuildEnvironment(cfg *models.GameServerConfig) map[string]string {
	builder, ok := envBuilders[cfg.Game]
	if !ok {
		return map[string]string{}
	}
	return builder(cfg)
}

func minecraftEnv(cfg *models.GameServerConfig) map[string]string {
	env := map[string]string{
		"MEMORY":      cfg.MemoryString(),
		"DIFFICULTY":  "normal",
		"MAX_PLAYERS": strconv.Itoa(orDefault(cfg.Slots, 20)),
	}

	version := cfg.Version
	if version == "" {
		version = "latest"
	}

	switch cfg.Variant {
	case "paper", "spigot":
		env["SERVER_JARFILE"] = "paper.jar"
		env["MINECRAFT_VERSION"] = version
		env["BUILD_TYPE"] = "recommended"
	case "forge":
		env["SERVER_JARFILE"] = "forge-server.jar"
		if cfg.Version == "" {
			version = "1.19.2"
		}
		env["MINECRAFT_VERSION"] = version
		env["FORGE_VERSION"] = "recommended"
	case "fabric":
		env["SERVER_JARFILE"] = "fabric-server.jar"
		env["MINECRAFT_VERSION"] = version
		env["FABRIC_VERSION"] = "latest"
	default:
		// vanilla, and the fallback for unknown variants
		env["SERVER_JARFILE"] = "server.jar"
		env["MINECRAFT_VERSION"] = version
	}

	return env
}

func zomboidEnv(cfg *models.GameServerConfig) map[string]string {
	return map[string]string{
		"ADMIN_PASSWORD": "kratos_host",
		"SERVER_MEMORY":  cfg.MemoryString(),
		"PLAYERS":        strconv.Itoa(orDefault(cfg.Slots, 16)),
		"MOD_IDS":        "",
		"SERVER_PORT":    "16261",
		"RCON_PORT":      "27015",
	}
}

func rustEnv(cfg *models.GameServerConfig) map[string]string {
	return map[string]string{
		"MAX_PLAYERS":  strconv.Itoa(orDefault(cfg.Slots, 50)),
		"SERVER_LEVEL": "Procedural Map",
		"SERVER_MAP":   "Procedural Map",
		"WORLD_SIZE":   "3500",
		"SEED":         strconv.Itoa(rand.Intn(100000)),
	}
}

func valheimEnv(cfg *models.GameServerConfig) map[string]string {
	return map[string]string{
		"SERVER_NAME": "Valheim Server " + strconv.FormatInt(time.Now().Unix(), 10),
		"WORLD_NAME":  "valheim_world",
		"PASSWORD":    "change_me",
		"PUBLIC":      "1",
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
