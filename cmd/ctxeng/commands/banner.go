package commands

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/teranos/ctxeng/logger"
	"github.com/teranos/ctxeng/version"
)

// printStartupBanner prints the serve banner and where state lives
func printStartupBanner(verbosity int, dbPath string, configFiles []string) {
	_ = pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("ctx", pterm.NewStyle(pterm.FgCyan)),
		putils.LettersFromStringWithStyle("eng", pterm.NewStyle(pterm.FgLightMagenta)),
	).Render()

	info := version.Get()
	items := []pterm.BulletListItem{
		{Level: 0, Text: "Version:   " + info.Version + " (commit " + info.Short() + ")"},
		{Level: 0, Text: "Built:     " + info.BuildTime},
		{Level: 0, Text: "Verbosity: " + logger.LevelName(verbosity)},
		{Level: 0, Text: "Database:  " + dbPath},
	}
	if len(configFiles) == 0 {
		items = append(items, pterm.BulletListItem{Level: 0, Text: "Config:    built-in defaults"})
	}
	for _, f := range configFiles {
		items = append(items, pterm.BulletListItem{Level: 0, Text: "Config:    " + f})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()

	pterm.Info.Println("Press Ctrl+C to stop")
}
