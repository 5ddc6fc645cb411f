package main

import (
	"strings"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults, overridable by an HCL config file and ATDF_* environment
// variables (ATDF_TUI__REFRESH_MS maps to tui.refresh_ms).
var defaults = map[string]any{
	"output.dir":                     "./outputs",
	"output.include_degraded":        false,
	"reconstruct.rollover_threshold": 0.0, // 0 selects half the counter modulus
	"reconstruct.max_count_rate":     1e7,
	"reconstruct.gap_tolerance":      1.5,
	"tui.enable_log_output":          true,
	"tui.refresh_ms":                 500,
}

func loadSettings(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), hcl.Parser(true)); err != nil {
			return nil, err
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: "ATDF_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "ATDF_"))
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	}), nil)
	if err != nil {
		return nil, err
	}
	return k, nil
}
