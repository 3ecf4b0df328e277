package network

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TopologyFile is the YAML layout of a range topology.
type TopologyFile struct {
	Name      string                  `yaml:"name"`
	HostTypes map[string]HostTypeFile `yaml:"host_types"`
	Subnets   []SubnetFile            `yaml:"subnets"`
}

// HostTypeFile declares a reusable host template.
type HostTypeFile struct {
	Services []Service `yaml:"services"`
	CVEs     []string  `yaml:"cves,omitempty"`
}

// SubnetFile declares one subnet and its hosts.
type SubnetFile struct {
	Name   string     `yaml:"name"`
	Prefix string     `yaml:"prefix"`
	Hosts  []HostFile `yaml:"hosts"`
}

// HostFile declares one host by name and host type.
type HostFile struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load reads a topology YAML file.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load topology %q: %w", path, err)
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load topology %q: %w", path, err)
	}
	return n, nil
}

// Parse builds a network from topology YAML.
func Parse(data []byte) (*Network, error) {
	var tf TopologyFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	return tf.Build()
}

// Build materializes the declared topology.
func (tf TopologyFile) Build() (*Network, error) {
	if len(tf.Subnets) == 0 {
		return nil, fmt.Errorf("topology %q declares no subnets", tf.Name)
	}
	n := New(tf.Name)
	for _, sf := range tf.Subnets {
		if _, err := n.AddSubnet(sf.Name, sf.Prefix); err != nil {
			return nil, err
		}
		for _, hf := range sf.Hosts {
			ht, err := tf.HostType(hf.Type)
			if err != nil {
				return nil, fmt.Errorf("host %s: %w", hf.Name, err)
			}
			if _, err := n.AddHost(hf.Name, sf.Name, ht); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

// HostType resolves a declared host type by name.
func (tf TopologyFile) HostType(name string) (HostType, error) {
	def, ok := tf.HostTypes[name]
	if !ok {
		return HostType{}, fmt.Errorf("unknown host type %q", name)
	}
	return HostType{
		Name:     name,
		Services: append([]Service(nil), def.Services...),
		CVEs:     append([]string(nil), def.CVEs...),
	}, nil
}
