package diag

import (
	"sync"

	"github.com/rs/zerolog"
)

// Warning is a recovered, non-fatal problem surfaced alongside a result
type Warning struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Collector gathers warnings for one run and logs each as it arrives
type Collector struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	warnings []Warning
	counts   map[Kind]int
}

// NewCollector creates a collector that logs through logger
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
		counts: make(map[Kind]int),
	}
}

// Add records a warning. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	kind := KindOf(err)

	c.mu.Lock()
	c.warnings = append(c.warnings, Warning{Kind: kind, Message: err.Error(), Err: err})
	c.counts[kind]++
	c.mu.Unlock()

	c.logger.Warn().Str("kind", string(kind)).Msg(err.Error())
}

// AddAll records every error in errs
func (c *Collector) AddAll(errs []error) {
	for _, err := range errs {
		c.Add(err)
	}
}

// Warnings returns the recorded warnings in arrival order
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}

// Counts returns the number of warnings per kind
func (c *Collector) Counts() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Len returns the number of recorded warnings
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}
