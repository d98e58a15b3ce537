package config

// WorkspaceRunnerConfig configures one runner type's sandbox behavior at a
// given layer (global, per-agent, per-workspace). internal/runner merges
// these three layers, override taking precedence per the "extend" or
// "replace" MergeStrategy.
type WorkspaceRunnerConfig struct {
	// Type selects the runner implementation: "exec", "sandbox-exec",
	// "firejail", or "docker". Empty leaves the previously resolved type
	// unchanged.
	Type string `yaml:"type,omitempty"`

	// MergeStrategy controls how Restrictions combines with the layer
	// below it: "extend" (default) merges field-by-field, "replace"
	// discards the lower layer entirely.
	MergeStrategy string `yaml:"merge_strategy,omitempty"`

	Restrictions *RunnerRestrictions `yaml:"restrictions,omitempty"`
}

// RunnerRestrictions describes the sandbox boundary applied to a
// subprocess hop.
type RunnerRestrictions struct {
	// AllowNetworking is a pointer so "unset" (inherit) is distinguishable
	// from explicit false.
	AllowNetworking *bool `yaml:"allow_networking,omitempty"`

	AllowReadFolders  []string `yaml:"allow_read_folders,omitempty"`
	AllowWriteFolders []string `yaml:"allow_write_folders,omitempty"`
	DenyFolders       []string `yaml:"deny_folders,omitempty"`

	// MergeWithDefaults is carried through layer merging and variable
	// resolution, but toRunnerOptions does not pass it to the runner, so
	// its value changes nothing about how the runner is created.
	MergeWithDefaults *bool `yaml:"merge_with_defaults,omitempty"`

	Docker *DockerRestrictions `yaml:"docker,omitempty"`
}

// DockerRestrictions configures the docker runner type.
type DockerRestrictions struct {
	Image       string `yaml:"image,omitempty"`
	MemoryLimit string `yaml:"memory_limit,omitempty"`
	CPULimit    string `yaml:"cpu_limit,omitempty"`
}
