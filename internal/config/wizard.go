package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the result to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to CatechiseMe! Let's configure your viewer.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("port must be a number between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Port, _ = strconv.Atoi(portStr)

	// 2. Catalog source.
	catalogPrompt := promptui.Select{
		Label: "Catalog source",
		Items: []string{
			"embedded: the built-in 52-week catechism",
			"file:     a YAML catalog on disk",
		},
	}
	catalogIdx, _, err := catalogPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("catalog selection: %w", err)
	}
	if catalogIdx == 1 {
		filePrompt := promptui.Prompt{
			Label: "Catalog file path",
			Validate: func(s string) error {
				if _, err := os.Stat(s); err != nil {
					return fmt.Errorf("cannot read %s", s)
				}
				return nil
			},
		}
		cfg.CatalogFile, err = filePrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("catalog file: %w", err)
		}
	}

	// 3. Cache version.
	versionPrompt := promptui.Prompt{
		Label:   "Offline cache version tag",
		Default: cfg.Cache.Version,
	}
	cfg.Cache.Version, err = versionPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("cache version: %w", err)
	}

	// 4. Extra offline assets.
	extraPrompt := promptui.Prompt{
		Label:   "Extra offline assets (comma-separated paths or globs, leave blank for none)",
		Default: "",
	}
	extraStr, err := extraPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("extra assets: %w", err)
	}
	cfg.Cache.Manifest = append(cfg.Cache.Manifest, splitAndTrim(extraStr)...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
