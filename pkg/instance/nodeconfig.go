package instance

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the node's configuration file name.
const ConfigFileName = "grin-server.toml"

// NodeConfig holds the few node settings the pipeline relies on. Every other
// key in the file is ignored.
type NodeConfig struct {
	ChainType     string
	ArchiveMode   bool
	DBRoot        string
	APISecretPath string
	P2PPort       int
}

type nodeConfigFile struct {
	Server struct {
		ChainType     string `toml:"chain_type"`
		ArchiveMode   *bool  `toml:"archive_mode"`
		DBRoot        string `toml:"db_root"`
		APISecretPath string `toml:"api_secret_path"`
		P2PConfig     struct {
			Port int `toml:"port"`
		} `toml:"p2p_config"`
	} `toml:"server"`
}

// ParseNodeConfig decodes the relevant fields from a node TOML document.
// Missing archive_mode means pruned.
func ParseNodeConfig(r io.Reader) (NodeConfig, error) {
	var f nodeConfigFile
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return NodeConfig{}, fmt.Errorf("failed to parse node config: %w", err)
	}

	cfg := NodeConfig{
		ChainType:     f.Server.ChainType,
		DBRoot:        f.Server.DBRoot,
		APISecretPath: f.Server.APISecretPath,
		P2PPort:       f.Server.P2PConfig.Port,
	}
	if f.Server.ArchiveMode != nil {
		cfg.ArchiveMode = *f.Server.ArchiveMode
	}
	return cfg, nil
}

// LoadNodeConfig reads and parses the node config at path. Relative paths in
// the file are resolved against the file's directory.
func LoadNodeConfig(path string) (NodeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return NodeConfig{}, err
	}
	defer func() { _ = f.Close() }()

	cfg, err := ParseNodeConfig(f)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.DBRoot = resolve(base, cfg.DBRoot)
	cfg.APISecretPath = resolve(base, cfg.APISecretPath)
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
