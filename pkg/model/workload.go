package model

// AgingSpec configures the aging policy of a workload.
// Interval == 0 with no Expression leaves aging to the server defaults
// and is otherwise off; Disabled turns aging off regardless of defaults.
type AgingSpec struct {
	Disabled   bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Interval   int64  `json:"interval,omitempty" yaml:"interval,omitempty"`
	Step       int    `json:"step,omitempty" yaml:"step,omitempty"`
	Cap        int    `json:"cap,omitempty" yaml:"cap,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Workload is a process set together with the engine configuration to
// simulate it with. Zero values fall back to engine defaults.
type Workload struct {
	Name               string        `json:"name" yaml:"name"`
	Quantum            int64         `json:"quantum,omitempty" yaml:"quantum,omitempty"`
	MaxTicks           int           `json:"max_ticks,omitempty" yaml:"max_ticks,omitempty"`
	RetainAgedPriority bool          `json:"retain_aged_priority,omitempty" yaml:"retain_aged_priority,omitempty"`
	Aging              AgingSpec     `json:"aging" yaml:"aging"`
	Processes          []ProcessSpec `json:"processes" yaml:"processes"`
}
