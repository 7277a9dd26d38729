package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kratos-host/provisioning-service/internal/models"
)

func TestNestIDKnownGames(t *testing.T) {
	assert.Equal(t, 1, NestID("minecraft"))
	assert.Equal(t, 2, NestID("project_zomboid"))
	assert.Equal(t, 3, NestID("rust"))
	assert.Equal(t, 4, NestID("valheim"))
}

func TestNestIDUnknownGameFallsBack(t *testing.T) {
	assert.Equal(t, NestID(DefaultGame), NestID("factorio"))
}

func TestEggIDVariants(t *testing.T) {
	assert.Equal(t, 3, EggID("minecraft", "vanilla"))
	assert.Equal(t, 1, EggID("minecraft", "paper"))
	assert.Equal(t, 1, EggID("minecraft", "spigot"))
	assert.Equal(t, 4, EggID("minecraft", "forge"))
	assert.Equal(t, 12, EggID("minecraft", "fabric"))
	assert.Equal(t, 16, EggID("project_zomboid", ""))
	assert.Equal(t, 2, EggID("rust", ""))
	assert.Equal(t, 15, EggID("valheim", ""))
}

func TestEggIDUnknownVariantFallsBackToGameDefault(t *testing.T) {
	assert.Equal(t, 3, EggID("minecraft", "bukkit"))
	assert.Equal(t, 3, EggID("minecraft", ""))
}

func TestEggIDUnknownGameFallsBackToDefaultGame(t *testing.T) {
	assert.Equal(t, EggID(DefaultGame, ""), EggID("factorio", "whatever"))
}

func TestMinecraftEnvironmentVanilla(t *testing.T) {
	env := BuildEnvironment(&models.GameServerConfig{
		Game:  "minecraft",
		RAMGB: 4,
		Slots: 10,
	})

	assert.Equal(t, "4G", env["MEMORY"])
	assert.Equal(t, "normal", env["DIFFICULTY"])
	assert.Equal(t, "10", env["MAX_PLAYERS"])
	assert.Equal(t, "server.jar", env["SERVER_JARFILE"])
	assert.Equal(t, "latest", env["MINECRAFT_VERSION"])
}

func TestMinecraftEnvironmentForgeDefaultsVersion(t *testing.T) {
	env := BuildEnvironment(&models.GameServerConfig{
		Game:    "minecraft",
		Variant: "forge",
		RAMGB:   8,
	})

	assert.Equal(t, "forge-server.jar", env["SERVER_JARFILE"])
	assert.Equal(t, "1.19.2", env["MINECRAFT_VERSION"])
	assert.Equal(t, "recommended", env["FORGE_VERSION"])
	assert.Equal(t, "20", env["MAX_PLAYERS"])
}

func TestMinecraftEnvironmentUnknownVariantIsVanilla(t *testing.T) {
	env := BuildEnvironment(&models.GameServerConfig{
		Game:    "minecraft",
		Variant: "bukkit",
		RAMGB:   2,
		Version: "1.20.4",
	})

	assert.Equal(t, "server.jar", env["SERVER_JARFILE"])
	assert.Equal(t, "1.20.4", env["MINECRAFT_VERSION"])
}

func TestZomboidEnvironment(t *testing.T) {
	env := BuildEnvironment(&models.GameServerConfig{
		Game:  "project_zomboid",
		RAMGB: 6,
	})

	assert.Equal(t, "6G", env["SERVER_MEMORY"])
	assert.Equal(t, "16", env["PLAYERS"])
	assert.Equal(t, "16261", env["SERVER_PORT"])
}

func TestUnknownGameEnvironmentIsEmpty(t *testing.T) {
	env := BuildEnvironment(&models.GameServerConfig{Game: "factorio"})

	assert.Empty(t, env)
}
