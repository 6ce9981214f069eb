package models

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"gopkg.in/yaml.v3"
)

const ConfigFile = "avatar.yaml"

// Region describes a memory range mapped into a simulated target.
type Region struct {
	Addr uint64 `yaml:"addr"`
	Size uint64 `yaml:"size"`
	Prot string `yaml:"prot"`
	Desc string `yaml:"desc"`
}

type Config struct {
	// target backend: sim, gdb or unicorn
	Target string `yaml:"target"`
	// host:port of a remote gdb stub for the gdb target
	Remote string `yaml:"remote"`
	// memory map for sim and unicorn targets
	Memory []Region `yaml:"memory"`
	// snapshot restored into the sim target at startup
	Snapshot string `yaml:"snapshot"`

	PageSize int  `yaml:"page_size"`
	Verbose  bool `yaml:"verbose"`
	Color    bool `yaml:"color"`

	Output io.Writer `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Target:   "sim",
		PageSize: 512,
		Memory:   []Region{{Addr: 0, Size: 0x100000, Prot: "rwx", Desc: "ram"}},
		Output:   os.Stderr,
	}
}

// LoadConfig reads a yaml config over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if c.PageSize <= 0 {
		return nil, errors.Errorf("invalid page size: %d", c.PageSize)
	}
	for _, r := range c.Memory {
		if _, err := ParseProt(r.Prot); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FindConfig looks for avatar.yaml in the user and system config dirs.
// It returns the defaults when no file exists.
func FindConfig() (*Config, error) {
	dirs := configdir.New("avatar", "avatar")
	folder := dirs.QueryFolderContainsFile(ConfigFile)
	if folder == nil {
		return DefaultConfig(), nil
	}
	data, err := folder.ReadFile(ConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	return ParseConfig(data)
}

// ParseProt converts "rwx"-style strings to PROT_* bits. Empty means rwx.
func ParseProt(s string) (int, error) {
	if s == "" {
		return 7, nil
	}
	prot := 0
	for _, c := range s {
		switch c {
		case 'r':
			prot |= 1
		case 'w':
			prot |= 2
		case 'x':
			prot |= 4
		case '-':
		default:
			return 0, errors.Errorf("invalid protection %q", s)
		}
	}
	return prot, nil
}
