package config

import (
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
)

var wizardLog = xlog.NewModuleLogger("config.wizard")

// RunWizard interactively builds a Config for a fresh quarry, the way the
// teacher's cmd/ console flows prompt for node setup. Pressing enter on any
// prompt accepts the shown default.
func RunWizard(quarryID string) Config {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	c := Default()

	ask := func(prompt string, def string) string {
		answer, err := line.Prompt(prompt + " [" + def + "]: ")
		if err != nil || strings.TrimSpace(answer) == "" {
			return def
		}
		return strings.TrimSpace(answer)
	}
	askInt := func(prompt string, def int) int {
		s := ask(prompt, strconv.Itoa(def))
		v, err := strconv.Atoi(s)
		if err != nil {
			wizardLog.Warn("invalid integer, keeping default", "prompt", prompt, "input", s)
			return def
		}
		return v
	}

	wizardLog.Info("configuring fresh quarry", "quarryId", quarryID)

	c.BBox.MaxX = askInt("bounding box max X", c.BBox.MaxX)
	c.BBox.MaxY = askInt("bounding box max Y", c.BBox.MaxY)
	c.BBox.MaxZ = askInt("bounding box max Z", c.BBox.MaxZ)
	c.TunnelSpacing = askInt("tunnel spacing (>=3)", c.TunnelSpacing)
	c.LayerSpacing = askInt("layer spacing (>=3)", c.LayerSpacing)
	c.ChunkLength = askInt("tunnel chunk length", c.ChunkLength)
	c.FuelReserve = askInt("fuel reserve threshold", c.FuelReserve)
	c.TargetFuel = askInt("refuel target level", c.TargetFuel)
	c.SafetyMargin = askInt("worst-case accounting safety margin", c.SafetyMargin)

	if c.TunnelSpacing < 3 {
		wizardLog.Warn("tunnelSpacing below minimum, clamping to 3", "given", c.TunnelSpacing)
		c.TunnelSpacing = 3
	}
	if c.LayerSpacing < 3 {
		wizardLog.Warn("layerSpacing below minimum, clamping to 3", "given", c.LayerSpacing)
		c.LayerSpacing = 3
	}

	c.ConfigVersion = 1
	c.BBox.ConfigVersion = 1
	return c
}
