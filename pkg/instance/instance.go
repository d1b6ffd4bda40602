// Package instance discovers running node instances and classifies them by
// network and retention mode.
package instance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means no instance is listening on any configured admin port.
	ErrNotFound = errors.New("no running instance found")

	// ErrAmbiguous means more than one instance claims the same network.
	ErrAmbiguous = errors.New("multiple instances claim the same network")

	// ErrUnknownNetwork is returned for chain types that are neither mainnet nor testnet.
	ErrUnknownNetwork = errors.New("unknown network")
)

// Network identifies which chain an instance follows.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Networks lists the supported networks, primary first.
func Networks() []Network { return []Network{Mainnet, Testnet} }

// ParseNetwork maps a configured chain type to a Network. It accepts the
// node's own spelling ("Mainnet", "Testnet", "Floonet") case-insensitively.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "main":
		return Mainnet, nil
	case "testnet", "test", "floonet":
		return Testnet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
}

// Retention is the amount of chain history an instance keeps.
type Retention string

const (
	Full   Retention = "full"
	Pruned Retention = "pruned"
)

// RetentionFor returns Full for archive nodes.
func RetentionFor(archiveMode bool) Retention {
	if archiveMode {
		return Full
	}
	return Pruned
}

// ServiceInstance describes one running node. It is rebuilt on every run and
// passed by value between pipeline stages.
type ServiceInstance struct {
	Network   Network   `json:"network" yaml:"network"`
	Retention Retention `json:"retention" yaml:"retention"`

	PID        int32    `json:"pid" yaml:"pid"`
	BinaryPath string   `json:"binary" yaml:"binary"`
	Args       []string `json:"args" yaml:"args"`
	WorkingDir string   `json:"working_dir" yaml:"working_dir"`

	ConfigPath    string `json:"config_path" yaml:"config_path"`
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	AdminPort     int    `json:"admin_port" yaml:"admin_port"`
	P2PPort       int    `json:"p2p_port,omitempty" yaml:"p2p_port,omitempty"`
	APISecretPath string `json:"api_secret_path" yaml:"api_secret_path"`
}

// Label returns "<network>/<retention>".
func (s ServiceInstance) Label() string {
	return string(s.Network) + "/" + string(s.Retention)
}

// IsTestnet reports whether diagnostic commands need the --testnet switch.
func (s ServiceInstance) IsTestnet() bool { return s.Network == Testnet }

// PortBinding associates an admin API port with the network a node on that
// port is expected to serve.
type PortBinding struct {
	Network Network
	Port    int
}

// DefaultPorts are the node's standard owner API ports.
func DefaultPorts() []PortBinding {
	return []PortBinding{
		{Network: Mainnet, Port: 3413},
		{Network: Testnet, Port: 13413},
	}
}
