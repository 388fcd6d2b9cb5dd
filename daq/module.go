// Copyright 2026 The pybar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ljthink/pyBAR/fei4"
)

// GroupPrefix is the reserved id prefix of derived broadcast groups.
// Module ids must not contain it.
const GroupPrefix = "module-group"

// Registry errors.
var (
	ErrReservedName         = errors.New("daq: module id collides with the group naming convention")
	ErrMultiFifoUnsupported = errors.New("daq: handling of more than one FIFO is not implemented")
)

// MissingDriverError reports a module configuration without one of
// the required hardware endpoints.
type MissingDriverError struct {
	Module string
	Driver string
}

func (e *MissingDriverError) Error() string {
	return fmt.Sprintf("daq: module %q: missing %s driver", e.Module, e.Driver)
}

// InconsistentFlavorError reports modules of different chip flavors
// sharing one command line.
type InconsistentFlavorError struct {
	TX string
}

func (e *InconsistentFlavorError) Error() string {
	return fmt.Sprintf("daq: tx %q: modules with different chip flavors share one command line", e.TX)
}

// DuplicateAddressError reports two modules with the same chip
// address (or more than one broadcast module) on one command line.
type DuplicateAddressError struct {
	TX string
}

func (e *DuplicateAddressError) Error() string {
	return fmt.Sprintf("daq: tx %q: modules without distinct chip addresses share one command line", e.TX)
}

// ModuleConfig is the YAML configuration of one front-end module.
type ModuleConfig struct {
	TX            string `yaml:"tx"`
	RX            string `yaml:"rx"`
	FIFO          string `yaml:"fifo"`
	TLU           string `yaml:"tlu"`
	TDC           string `yaml:"tdc"`
	TxChannel     int    `yaml:"tx_channel"`
	RxChannel     int    `yaml:"rx_channel"`
	TdcChannel    *int   `yaml:"tdc_channel"`
	ChipAddress   *uint8 `yaml:"chip_address"`
	Flavor        string `yaml:"flavor"`
	WorkingDir    string `yaml:"working_dir"`
	Configuration string `yaml:"configuration"`
}

// NotifyConfig configures the run-status notification mail.
type NotifyConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	// Statuses selects the terminal run statuses that trigger a
	// mail; empty means all of them.
	Statuses []string `yaml:"statuses"`
}

// RunConfig holds the run-wide options.
type RunConfig struct {
	BroadcastCommands bool           `yaml:"broadcast_commands"`
	ThreadedScan      bool           `yaml:"threaded_scan"`
	ResetRxOnError    bool           `yaml:"reset_rx_on_error"`
	Comment           string         `yaml:"comment"`
	WorkingDir        string         `yaml:"working_dir"`
	NoDataTimeout     time.Duration  `yaml:"no_data_timeout"`
	StopTimeout       time.Duration  `yaml:"stop_timeout"`
	ScanParameters    map[string]int `yaml:"scan_parameters"`
	Notify            *NotifyConfig  `yaml:"notify"`
}

// Config is the top-level run configuration.
type Config struct {
	Modules map[string]ModuleConfig `yaml:"modules"`
	Run     RunConfig               `yaml:"run"`
}

// LoadConfig reads a YAML run configuration from a file.
func LoadConfig(fname string) (*Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("daq: could not read config %q: %w", fname, err)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("daq: could not parse config %q: %w", fname, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML run configuration.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("daq: could not decode config: %w", err)
	}
	return &cfg, nil
}

// Module is one validated front-end module.
type Module struct {
	ID            string
	TX, RX        string
	FIFO          string
	TLU, TDC      string // TDC may be empty
	TxChannel     int
	RxChannel     int
	TdcChannel    *int
	ChipAddress   *uint8 // nil selects broadcast addressing
	Flavor        *fei4.Flavor
	WorkingDir    string
	Configuration string
}

// Broadcast reports whether the module is addressed in broadcast.
func (m *Module) Broadcast() bool { return m.ChipAddress == nil }

// Registry holds the validated modules of a run, in stable id order.
type Registry struct {
	modules []*Module
	byID    map[string]*Module
}

// NewRegistry validates the per-module configuration and builds the
// module registry.
func NewRegistry(cfg *Config) (*Registry, error) {
	if len(cfg.Modules) == 0 {
		return nil, fmt.Errorf("daq: no modules configured")
	}

	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reg := &Registry{byID: make(map[string]*Module, len(ids))}
	for _, id := range ids {
		mod, err := newModule(id, cfg.Modules[id])
		if err != nil {
			return nil, err
		}
		reg.modules = append(reg.modules, mod)
		reg.byID[id] = mod
	}
	return reg, nil
}

func newModule(id string, cfg ModuleConfig) (*Module, error) {
	if id == "" {
		return nil, fmt.Errorf("daq: empty module id")
	}
	if strings.Contains(id, GroupPrefix) {
		return nil, fmt.Errorf("daq: module %q: %w", id, ErrReservedName)
	}
	for _, drv := range []struct {
		name, value string
	}{
		{"TX", cfg.TX},
		{"RX", cfg.RX},
		{"FIFO", cfg.FIFO},
		{"TLU", cfg.TLU},
	} {
		if drv.value == "" {
			return nil, &MissingDriverError{Module: id, Driver: drv.name}
		}
	}
	flavor, err := fei4.ByName(cfg.Flavor)
	if err != nil {
		return nil, fmt.Errorf("daq: module %q: %w", id, err)
	}
	if cfg.ChipAddress != nil && *cfg.ChipAddress > 7 {
		return nil, fmt.Errorf("daq: module %q: chip address %d out of range [0,7]", id, *cfg.ChipAddress)
	}
	return &Module{
		ID:            id,
		TX:            cfg.TX,
		RX:            cfg.RX,
		FIFO:          cfg.FIFO,
		TLU:           cfg.TLU,
		TDC:           cfg.TDC,
		TxChannel:     cfg.TxChannel,
		RxChannel:     cfg.RxChannel,
		TdcChannel:    cfg.TdcChannel,
		ChipAddress:   cfg.ChipAddress,
		Flavor:        flavor,
		WorkingDir:    cfg.WorkingDir,
		Configuration: cfg.Configuration,
	}, nil
}

// Modules returns the modules in stable id order.
func (reg *Registry) Modules() []*Module { return reg.modules }

// Module returns the module with the given id.
func (reg *Registry) Module(id string) (*Module, bool) {
	mod, ok := reg.byID[id]
	return mod, ok
}

// TxGroup is the set of modules sharing one command line. Its
// synthesized id uses the reserved GroupPrefix so it can never clash
// with a real module.
type TxGroup struct {
	TX      string
	Flavor  *fei4.Flavor
	Members []*Module
}

// ID returns the synthesized group id.
func (g *TxGroup) ID() string { return GroupPrefix + "@tx=" + g.TX }

// FifoGroup is the set of modules draining through the shared FIFO.
type FifoGroup struct {
	FIFO    string
	Members []*Module
}

// Groups is the derived run topology.
type Groups struct {
	Tx   []*TxGroup
	Fifo *FifoGroup
}

// DeriveGroups partitions the registry by command line and by FIFO.
// Every module belongs to exactly one TX group; all modules must
// share a single FIFO.
func (reg *Registry) DeriveGroups() (*Groups, error) {
	byTX := make(map[string]*TxGroup)
	var txs []string
	for _, mod := range reg.modules {
		g, ok := byTX[mod.TX]
		if !ok {
			g = &TxGroup{TX: mod.TX, Flavor: mod.Flavor}
			byTX[mod.TX] = g
			txs = append(txs, mod.TX)
		}
		g.Members = append(g.Members, mod)
	}
	sort.Strings(txs)

	groups := &Groups{}
	for _, tx := range txs {
		g := byTX[tx]
		if err := validateTxGroup(g); err != nil {
			return nil, err
		}
		groups.Tx = append(groups.Tx, g)
	}

	byFIFO := make(map[string]*FifoGroup)
	for _, mod := range reg.modules {
		fg, ok := byFIFO[mod.FIFO]
		if !ok {
			fg = &FifoGroup{FIFO: mod.FIFO}
			byFIFO[mod.FIFO] = fg
		}
		fg.Members = append(fg.Members, mod)
	}
	if len(byFIFO) > 1 {
		return nil, ErrMultiFifoUnsupported
	}
	for _, fg := range byFIFO {
		groups.Fifo = fg
	}
	return groups, nil
}

func validateTxGroup(g *TxGroup) error {
	seen := make(map[uint8]bool)
	for _, mod := range g.Members {
		if mod.Flavor != g.Flavor {
			return &InconsistentFlavorError{TX: g.TX}
		}
		switch {
		case mod.ChipAddress == nil:
			// Broadcast addressing only works for a module alone
			// on its command line.
			if len(g.Members) > 1 {
				return &DuplicateAddressError{TX: g.TX}
			}
		case seen[*mod.ChipAddress]:
			return &DuplicateAddressError{TX: g.TX}
		default:
			seen[*mod.ChipAddress] = true
		}
	}
	return nil
}
