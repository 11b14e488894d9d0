package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/loykin/droidbg"
)

// This example loads a TOML config file and prints the effective settings
// using the public droidbg facade.
func main() {
	// Use the sample config in the repo (adjust path if running from a different cwd)
	cfgPath := filepath.Join("config", "droidbg.toml")
	cfg, err := droidbg.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	b, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Println(string(b))
	fmt.Println("device ready timeout:", cfg.Timeouts.DeviceReady)
}
