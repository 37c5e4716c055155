// Package config provides unified configuration loading for cellnet.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goki/mat32"
	"github.com/nvandessel/cellnet/internal/cell"
	"github.com/nvandessel/cellnet/internal/network"
	"github.com/nvandessel/cellnet/internal/simerr"
	"gopkg.in/yaml.v3"
)

// CellnetConfig contains all cellnet configuration settings.
type CellnetConfig struct {
	// Simulation contains integration and run settings.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Template holds the biophysical parameters every cell is built from.
	Template cell.TwoCompartment `json:"template" yaml:"template"`

	// Network describes the cells and their connections.
	Network NetworkConfig `json:"network" yaml:"network"`

	// Stimuli are current clamps attached before each run.
	Stimuli []StimulusConfig `json:"stimuli" yaml:"stimuli"`

	// Logging contains settings for operational and run logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store selects where saved runs are kept.
	Store StoreConfig `json:"store" yaml:"store"`
}

// SimulationConfig configures the engine.
type SimulationConfig struct {
	// DT is the integration tick in ms.
	DT float64 `json:"dt" yaml:"dt"`

	// TStop is the default run duration in ms.
	TStop float64 `json:"tstop" yaml:"tstop"`

	// Threshold is the spike detection threshold in mV. It overrides the
	// template's threshold when the network is built.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// NetworkConfig lists cells and connections explicitly, or describes a ring.
// When Ring is set, Cells and Connections are ignored.
type NetworkConfig struct {
	Ring        *RingConfig        `json:"ring,omitempty" yaml:"ring,omitempty"`
	Cells       []CellConfig       `json:"cells,omitempty" yaml:"cells,omitempty"`
	Connections []ConnectionConfig `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// RingConfig builds N cells spaced along x, each connected to the next.
type RingConfig struct {
	Cells   int     `json:"cells" yaml:"cells"`
	Spacing float64 `json:"spacing" yaml:"spacing"` // µm
	Delay   float64 `json:"delay" yaml:"delay"`     // ms
	Weight  float64 `json:"weight" yaml:"weight"`   // µS
}

// CellConfig places one cell.
type CellConfig struct {
	ID string  `json:"id" yaml:"id"`
	X  float32 `json:"x" yaml:"x"`
	Y  float32 `json:"y" yaml:"y"`
	Z  float32 `json:"z" yaml:"z"`
}

// ConnectionConfig is one directed synaptic link.
type ConnectionConfig struct {
	Source string  `json:"source" yaml:"source"`
	Target string  `json:"target" yaml:"target"`
	Delay  float64 `json:"delay" yaml:"delay"`
	Weight float64 `json:"weight" yaml:"weight"`

	// Site places the synapse on a named section; empty uses the target's
	// default synapse site.
	Site string `json:"site,omitempty" yaml:"site,omitempty"`
}

// StimulusConfig is a current clamp on one cell.
type StimulusConfig struct {
	Cell      string  `json:"cell" yaml:"cell"`
	Delay     float64 `json:"delay" yaml:"delay"`
	Duration  float64 `json:"duration" yaml:"duration"`
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
}

// LoggingConfig configures cellnet's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run logging to .cellnet/runs.jsonl.
	// "trace" additionally logs every synaptic delivery.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string `json:"backend" yaml:"backend"`

	// Dir overrides the data directory. Supports ${VAR} syntax.
	// Empty means <root>/.cellnet.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns a CellnetConfig describing the two-cell ring with a single
// supra-threshold pulse on the first cell.
func Default() *CellnetConfig {
	return &CellnetConfig{
		Simulation: SimulationConfig{
			DT:        0.025,
			TStop:     150,
			Threshold: cell.DefaultThreshold,
		},
		Template: cell.DefaultTemplate(),
		Network: NetworkConfig{
			Ring: &RingConfig{Cells: 2, Spacing: 100, Delay: 10, Weight: 1},
		},
		Stimuli: []StimulusConfig{
			{Cell: network.CellID(0), Delay: 5, Duration: 1, Amplitude: 0.6},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.cellnet/config.yaml -> environment variables
func Load() (*CellnetConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".cellnet", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads configuration from path when it is non-empty, and from the
// default locations otherwise. Environment overrides apply in both cases.
func LoadPath(path string) (*CellnetConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Fields absent
// from the file keep their defaults.
func LoadFromFile(path string) (*CellnetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	// An explicit network section replaces the default ring, and the default
	// stimulus with it unless stimuli are given too.
	var probe struct {
		Network yaml.Node `yaml:"network"`
		Stimuli yaml.Node `yaml:"stimuli"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if probe.Network.Kind != 0 {
		config.Network = NetworkConfig{}
		if probe.Stimuli.Kind == 0 {
			config.Stimuli = nil
		}
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *CellnetConfig) Validate() error {
	if err := simerr.Positive("simulation.dt", c.Simulation.DT); err != nil {
		return err
	}
	if err := simerr.NonNegative("simulation.tstop", c.Simulation.TStop); err != nil {
		return err
	}
	if err := c.Template.Validate(); err != nil {
		return fmt.Errorf("template: %w", err)
	}

	ids, err := c.Network.cellIDs()
	if err != nil {
		return err
	}
	var conns []ConnectionConfig
	if c.Network.Ring == nil {
		conns = c.Network.Connections
	}
	for i, conn := range conns {
		for _, id := range []string{conn.Source, conn.Target} {
			if !ids[id] {
				return fmt.Errorf("network.connections[%d]: %w", i, &simerr.UnknownCellError{ID: id, Op: "config"})
			}
		}
		if err := simerr.NonNegative(fmt.Sprintf("network.connections[%d].delay", i), conn.Delay); err != nil {
			return err
		}
		if err := simerr.NonNegative(fmt.Sprintf("network.connections[%d].weight", i), conn.Weight); err != nil {
			return err
		}
	}

	for i, s := range c.Stimuli {
		if !ids[s.Cell] {
			return fmt.Errorf("stimuli[%d]: %w", i, &simerr.UnknownCellError{ID: s.Cell, Op: "config"})
		}
		if err := (cell.Stimulus{Delay: s.Delay, Duration: s.Duration, Amplitude: s.Amplitude}).Validate(); err != nil {
			return fmt.Errorf("stimuli[%d]: %w", i, err)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	validBackends := map[string]bool{"": true, "sqlite": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s (valid: sqlite, memory)", c.Store.Backend)
	}

	return nil
}

// cellIDs returns the ids the network section defines.
func (n NetworkConfig) cellIDs() (map[string]bool, error) {
	ids := make(map[string]bool)
	if n.Ring != nil {
		r := n.Ring
		if r.Cells < 2 {
			return nil, simerr.Invalid("network.ring.cells", r.Cells, "needs at least 2 cells")
		}
		if err := simerr.NonNegative("network.ring.delay", r.Delay); err != nil {
			return nil, err
		}
		if err := simerr.NonNegative("network.ring.weight", r.Weight); err != nil {
			return nil, err
		}
		for i := 0; i < r.Cells; i++ {
			ids[network.CellID(i)] = true
		}
		return ids, nil
	}
	if len(n.Cells) == 0 {
		return nil, simerr.Invalid("network.cells", 0, "define cells or a ring")
	}
	for i, c := range n.Cells {
		if c.ID == "" {
			return nil, simerr.Invalid(fmt.Sprintf("network.cells[%d].id", i), c.ID, "must not be empty")
		}
		if ids[c.ID] {
			return nil, simerr.Invalid(fmt.Sprintf("network.cells[%d].id", i), c.ID, "duplicate")
		}
		ids[c.ID] = true
	}
	return ids, nil
}

// CellTemplate returns the template with the simulation threshold applied.
func (c *CellnetConfig) CellTemplate() cell.TwoCompartment {
	tmpl := c.Template
	if c.Simulation.Threshold != 0 {
		tmpl.Threshold = c.Simulation.Threshold
	}
	return tmpl
}

// BuildNetwork validates the configuration and constructs the network it
// describes with every configured stimulus attached.
func (c *CellnetConfig) BuildNetwork() (*network.Network, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	tmpl := c.CellTemplate()

	var net *network.Network
	if r := c.Network.Ring; r != nil {
		var err error
		net, err = network.Ring(tmpl, r.Cells, r.Spacing, r.Delay, r.Weight)
		if err != nil {
			return nil, fmt.Errorf("build ring: %w", err)
		}
	} else {
		net = network.New()
		for _, cc := range c.Network.Cells {
			nc, err := tmpl.NewCell(cc.ID, mat32.Vec3{X: cc.X, Y: cc.Y, Z: cc.Z})
			if err != nil {
				return nil, fmt.Errorf("build cell %s: %w", cc.ID, err)
			}
			if err := net.AddCell(nc); err != nil {
				return nil, err
			}
		}
		for _, conn := range c.Network.Connections {
			var opts []network.ConnectionOption
			if conn.Site != "" {
				opts = append(opts, network.WithSite(cell.Site(conn.Site)))
			}
			if conn.Source == conn.Target {
				opts = append(opts, network.AllowSelfLoop())
			}
			if _, err := net.AddConnection(conn.Source, conn.Target, conn.Delay, conn.Weight, opts...); err != nil {
				return nil, err
			}
		}
	}

	for _, s := range c.Stimuli {
		stim := cell.Stimulus{Delay: s.Delay, Duration: s.Duration, Amplitude: s.Amplitude}
		if err := net.AttachStimulus(s.Cell, stim); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *CellnetConfig) {
	if v := os.Getenv("CELLNET_DT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.DT = f
		}
	}

	if v := os.Getenv("CELLNET_TSTOP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.TStop = f
		}
	}

	if v := os.Getenv("CELLNET_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.Threshold = f
		}
	}

	if v := os.Getenv("CELLNET_STORE"); v != "" {
		config.Store.Backend = v
	}

	if v := os.Getenv("CELLNET_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
