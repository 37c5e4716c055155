package mcp

// SimulateInput defines the input for the cellnet_simulate tool. Zero
// numeric fields select the experiment defaults.
type SimulateInput struct {
	Experiment string  `json:"experiment,omitempty" jsonschema:"Experiment to run: ring, disconnected or network (the configured network). Default ring"`
	Cells      int     `json:"cells,omitempty" jsonschema:"Number of cells in the ring (at least 2)"`
	TStop      float64 `json:"tstop,omitempty" jsonschema:"Simulated duration in ms"`
	Amplitude  float64 `json:"amplitude,omitempty" jsonschema:"Stimulus amplitude in nA applied to cell1"`
	Delay      float64 `json:"delay,omitempty" jsonschema:"Connection delay in ms"`
	Weight     float64 `json:"weight,omitempty" jsonschema:"Connection weight in microsiemens"`
	Save       bool    `json:"save,omitempty" jsonschema:"Save the run to the run store"`
}

// SimulateOutput defines the output for the cellnet_simulate tool.
type SimulateOutput struct {
	RunID       string               `json:"run_id,omitempty" jsonschema:"Id of the saved run, when saved"`
	Experiment  string               `json:"experiment" jsonschema:"Experiment that ran"`
	TStop       float64              `json:"tstop" jsonschema:"Simulated duration in ms"`
	Cells       int                  `json:"cells" jsonschema:"Number of cells"`
	Connections int                  `json:"connections" jsonschema:"Number of connections"`
	SpikeCount  int                  `json:"spike_count" jsonschema:"Total number of spikes"`
	Spikes      map[string][]float64 `json:"spikes" jsonschema:"Spike times in ms per cell"`
	Pending     int                  `json:"pending" jsonschema:"Synaptic events still queued at tstop"`
	Raster      string               `json:"raster" jsonschema:"Text spike raster"`
}

// SweepInput defines the input for the cellnet_sweep tool.
type SweepInput struct {
	Min   float64 `json:"min,omitempty" jsonschema:"Lowest amplitude in nA. Default 0.1"`
	Max   float64 `json:"max,omitempty" jsonschema:"Highest amplitude in nA. Default 0.8"`
	Steps int     `json:"steps,omitempty" jsonschema:"Number of amplitudes. Default 8"`
	Save  bool    `json:"save,omitempty" jsonschema:"Save the sweep to the run store"`
}

// SweepPoint is one amplitude's response.
type SweepPoint struct {
	Amplitude float64   `json:"amplitude"`
	Spikes    []float64 `json:"spikes"`
	Peak      float64   `json:"peak"`
}

// SweepOutput defines the output for the cellnet_sweep tool.
type SweepOutput struct {
	RunID        string       `json:"run_id,omitempty" jsonschema:"Id of the saved sweep, when saved"`
	Points       []SweepPoint `json:"points" jsonschema:"Response per amplitude"`
	FirstSpiking float64      `json:"first_spiking,omitempty" jsonschema:"Lowest amplitude that fired, in nA"`
	Fired        bool         `json:"fired" jsonschema:"Whether any amplitude fired"`
}

// TopologyInput defines the input for the cellnet_topology tool.
type TopologyInput struct {
	Experiment string `json:"experiment,omitempty" jsonschema:"Network to describe: ring, disconnected or network. Default network"`
	Cells      int    `json:"cells,omitempty" jsonschema:"Number of cells when describing a ring"`
	Format     string `json:"format,omitempty" jsonschema:"Output format: dot or json. Default json"`
}

// TopologyOutput defines the output for the cellnet_topology tool.
type TopologyOutput struct {
	Format          string      `json:"format" jsonschema:"Format of graph"`
	Graph           interface{} `json:"graph" jsonschema:"DOT text or JSON topology"`
	CellCount       int         `json:"cell_count" jsonschema:"Number of cells"`
	ConnectionCount int         `json:"connection_count" jsonschema:"Number of connections"`
}

// RunsInput defines the input for the cellnet_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, newest first"`
}

// RunItem is the listing form of a saved run.
type RunItem struct {
	ID          string  `json:"id"`
	Experiment  string  `json:"experiment"`
	CreatedAt   string  `json:"created_at" jsonschema:"RFC 3339 creation time"`
	TStop       float64 `json:"tstop"`
	Cells       int     `json:"cells"`
	Connections int     `json:"connections"`
	SpikeCount  int     `json:"spike_count"`
}

// RunsOutput defines the output for the cellnet_runs tool.
type RunsOutput struct {
	Runs  []RunItem `json:"runs" jsonschema:"Saved runs, newest first"`
	Count int       `json:"count" jsonschema:"Number of runs returned"`
	Total int       `json:"total" jsonschema:"Number of saved runs"`
}
