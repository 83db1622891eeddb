package alloc

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the encoder settings of one run.
type Config struct {
	// Majors are the major opcodes available for custom instructions, in
	// consumption order. Default: custom-3, custom-2, custom-1, custom-0.
	Majors []uint64 `json:"majors"`
}

// DefaultConfig returns a Config using the four custom major opcodes.
func DefaultConfig() *Config {
	return &Config{
		Majors: DefaultMajors(),
	}
}

// LoadConfig loads a Config from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse encoder config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize encoder config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write encoder config file: %w", err)
	}

	return nil
}

// Validate checks that the majors are usable 32-bit major opcodes.
func (c *Config) Validate() error {
	if len(c.Majors) == 0 {
		return fmt.Errorf("majors must not be empty")
	}
	seen := make(map[uint64]bool, len(c.Majors))
	for _, m := range c.Majors {
		if m >= 1<<OpcodeWidth {
			return fmt.Errorf("major opcode %#x does not fit %d bits", m, OpcodeWidth)
		}
		// bits 1:0 other than 11 belong to compressed encodings
		if m&0b11 != 0b11 {
			return fmt.Errorf("major opcode %#x is not a 32-bit opcode", m)
		}
		if seen[m] {
			return fmt.Errorf("major opcode %#x listed twice", m)
		}
		seen[m] = true
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	return &Config{
		Majors: append([]uint64(nil), c.Majors...),
	}
}
