package viz

import "github.com/charmbracelet/lipgloss"

// Theme is a colour scheme for the explorer.
type Theme struct {
	Name     string
	Primary  lipgloss.Color
	Accent   lipgloss.Color
	Text     lipgloss.Color
	Muted    lipgloss.Color
	Stable   lipgloss.Color
	Unstable lipgloss.Color
	Event    lipgloss.Color
	Border   lipgloss.Color
}

var (
	ThemePolar = Theme{
		Name:     "polar",
		Primary:  lipgloss.Color("#7fdbff"), // ice blue
		Accent:   lipgloss.Color("#ffffff"),
		Text:     lipgloss.Color("#e0f0ff"),
		Muted:    lipgloss.Color("#5f7f99"),
		Stable:   lipgloss.Color("#00ff88"),
		Unstable: lipgloss.Color("#ff4444"),
		Event:    lipgloss.Color("#ffcc00"),
		Border:   lipgloss.Color("#3d5a73"),
	}

	ThemeRetroGreen = Theme{
		Name:     "retro",
		Primary:  lipgloss.Color("#00ff00"), // green phosphor
		Accent:   lipgloss.Color("#88ff88"),
		Text:     lipgloss.Color("#00ff00"),
		Muted:    lipgloss.Color("#005500"),
		Stable:   lipgloss.Color("#88ff88"),
		Unstable: lipgloss.Color("#ff0000"),
		Event:    lipgloss.Color("#ffff00"),
		Border:   lipgloss.Color("#005500"),
	}

	ThemeMinimal = Theme{
		Name:     "minimal",
		Primary:  lipgloss.Color("#ffffff"),
		Accent:   lipgloss.Color("#0088ff"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#888888"),
		Stable:   lipgloss.Color("#00ff00"),
		Unstable: lipgloss.Color("#ff0000"),
		Event:    lipgloss.Color("#ffaa00"),
		Border:   lipgloss.Color("#444444"),
	}

	ThemeSunset = Theme{
		Name:     "sunset",
		Primary:  lipgloss.Color("#ff6b6b"),
		Accent:   lipgloss.Color("#feca57"),
		Text:     lipgloss.Color("#fff5f5"),
		Muted:    lipgloss.Color("#8b6b8c"),
		Stable:   lipgloss.Color("#5fd068"),
		Unstable: lipgloss.Color("#ff4757"),
		Event:    lipgloss.Color("#ff9ff3"),
		Border:   lipgloss.Color("#5a3b5c"),
	}

	Themes = []Theme{
		ThemePolar,
		ThemeRetroGreen,
		ThemeMinimal,
		ThemeSunset,
	}
)

// GetTheme returns the named theme, or the polar theme if there is none.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemePolar
}

// NextTheme returns the theme after name, wrapping around.
func NextTheme(name string) Theme {
	for i, t := range Themes {
		if t.Name == name {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return Themes[0]
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}
