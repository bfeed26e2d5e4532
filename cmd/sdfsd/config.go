package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// clusterConfig is an optional on-disk config file layered underneath the
// serve subcommand's flags, for deployments that prefer a static file over
// a long flag list per node (e.g. a fleet of VM config files checked into
// a repo). Flags explicitly set on the command line always win.
type clusterConfig struct {
	NodeID      string `yaml:"node_id"`
	Bind        string `yaml:"bind"`
	DataDir     string `yaml:"data_dir"`
	Introducer  string `yaml:"introducer"`
	MetricsAddr string `yaml:"metrics_addr"`
	MapWorkers  int    `yaml:"map_workers"`
}

func loadClusterConfig(path string) (*clusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg clusterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
