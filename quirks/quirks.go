// Package quirks holds the small, vendor-dependent tables the modem
// lifecycle consults: models requiring a GPIO save flag, the +CNSMOD
// network-mode code table, and the +CPIN status-string table. They are
// data, not logic, so they live in an embedded YAML asset rather than Go
// source - adding a model or network code is a one-line table edit.
package quirks

import (
	"embed"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesFS embed.FS

type tables struct {
	GPIOSave []string          `yaml:"gpioSave"`
	NetMode  map[int]string    `yaml:"netMode"`
	CPIN     map[string]int    `yaml:"cpin"`
}

// Tables is the parsed set of vendor quirk tables.
type Tables struct {
	gpioSave map[string]bool
	netMode  map[int]string
	cpin     map[string]int
}

// Default loads the tables embedded in the binary. It panics on a load
// failure since a corrupt embed is a build-time defect, never a runtime
// condition the caller can recover from.
func Default() *Tables {
	t, err := Load(tablesFS)
	if err != nil {
		panic(fmt.Sprintf("quirks: embedded tables.yaml: %v", err))
	}
	return t
}

// Load parses tables.yaml out of fsys, letting tests supply an overridden
// embed.FS or fstest.MapFS.
func Load(fsys fsReader) (*Tables, error) {
	data, err := fsys.ReadFile("tables.yaml")
	if err != nil {
		return nil, fmt.Errorf("quirks: reading tables.yaml: %w", err)
	}
	var raw tables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("quirks: parsing tables.yaml: %w", err)
	}
	t := &Tables{
		gpioSave: make(map[string]bool, len(raw.GPIOSave)),
		netMode:  raw.NetMode,
		cpin:     raw.CPIN,
	}
	for _, model := range raw.GPIOSave {
		t.gpioSave[model] = true
	}
	return t, nil
}

// fsReader is the subset of embed.FS (and fstest.MapFS) Load needs.
type fsReader interface {
	ReadFile(name string) ([]byte, error)
}

// NeedsGPIOSave reports whether model requires the ",0" save suffix on the
// AT+CGSETV watchdog command.
func (t *Tables) NeedsGPIOSave(model string) bool {
	return t.gpioSave[model]
}

// NetworkType maps a +CNSMOD code to its published name. Unknown codes
// fall back to their decimal string rather than an error - the tick loop
// must keep publishing even for a firmware revision with a new code.
func (t *Tables) NetworkType(code int) string {
	if name, ok := t.netMode[code]; ok {
		return name
	}
	return strconv.Itoa(code)
}

// CPIN maps the literal +CPIN? response string to its numeric SIM-status
// code. ok is false for a string the table does not recognise.
func (t *Tables) CPIN(status string) (code int, ok bool) {
	code, ok = t.cpin[status]
	return code, ok
}
