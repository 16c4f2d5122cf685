package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hearth-server/hearth/pkg/rules"
)

type Config struct {
	Port  int       `yaml:"port"`
	Root  string    `yaml:"root"`
	Index string    `yaml:"index"`
	TLS   TLSConfig `yaml:"tls"`

	// Vary lists request headers that split the cache, e.g. Accept-Language.
	Vary []string `yaml:"vary"`

	// CacheSize bounds the response cache in bytes. Zero keeps the
	// cache unbounded.
	CacheSize int `yaml:"cacheSize"`

	Push    PushConfig    `yaml:"push"`
	Proxies []ProxyConfig `yaml:"proxies"`

	// Headers are response header rules, first match wins.
	Headers rules.Rules `yaml:"headers"`

	// Admin is the listen address for the management endpoints. Empty
	// disables them.
	Admin string `yaml:"admin"`

	// Vars are exposed to templated pages as ${name} references.
	Vars map[string]string `yaml:"vars"`
}

type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type PushConfig struct {
	Disable       bool `yaml:"disable"`
	PageBudget    int  `yaml:"pageBudget"`
	SessionBudget int  `yaml:"sessionBudget"`
	Concurrency   int  `yaml:"concurrency"`
}

type ProxyConfig struct {
	// Prefix selects the proxied paths, e.g. "/api/".
	Prefix string `yaml:"prefix"`
	Origin string `yaml:"origin"`
	// Host overrides the forwarded Host header.
	Host string `yaml:"host"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
