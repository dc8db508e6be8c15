// Package config loads htnlearn's server/CLI configuration the way
// hdn/server.go does: a JSON file with environment-variable overrides,
// plus a godotenv-loaded .env file read before flags are parsed. A
// separate YAML profile format (LoadLearnProfile) covers the learning
// driver's mode-flag bundle (internal/learn.Options), mirroring how the
// teacher keeps JSON domain files and YAML task manifests side by side.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"htnlearn/internal/learn"
)

// ServerConfig is htn-server's configuration surface, structurally the
// same shape as the teacher's own ServerConfig (LLM settings swapped out
// for the learning engine's Redis/NATS/cron endpoints).
type ServerConfig struct {
	RedisAddr   string            `json:"redis_addr"`
	NATSURL     string            `json:"nats_url"`
	RelearnCron string            `json:"relearn_cron"`
	Settings    map[string]string `json:"settings"`
	Server      struct {
		Port int    `json:"port"`
		Host string `json:"host"`
	} `json:"server"`
}

// Default returns a ServerConfig with the same fallback values
// hdn/server.go falls back to when no config file is found.
func Default(port int) *ServerConfig {
	cfg := &ServerConfig{
		RedisAddr: "localhost:6379",
		NATSURL:   "nats://localhost:4222",
		Settings:  make(map[string]string),
	}
	cfg.Server.Port = port
	return cfg
}

// Load reads a JSON config file at path, falling back to Default(port) and
// logging a warning if the file can't be read — the same
// read-or-warn-and-fallback policy hdn/server.go's main() follows inline.
func Load(path string, port int) *ServerConfig {
	cfg, err := loadConfig(path)
	if err != nil {
		log.Printf("⚠️ [CONFIG] could not load config %s: %v, using defaults", path, err)
		cfg = Default(port)
	}
	ApplyEnvOverrides(cfg)
	if port != 0 && port != cfg.Server.Port {
		cfg.Server.Port = port
	}
	return cfg
}

func loadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvOverrides lets environment variables override the Redis/NATS
// endpoints, the relearn schedule and the server port, mirroring
// hdn/server.go's applyEnvOverrides (LLM_PROVIDER/LLM_API_KEY etc. there,
// REDIS_ADDR/NATS_URL/RELEARN_CRON/HTN_PORT here). Settings is not
// touched.
func ApplyEnvOverrides(cfg *ServerConfig) {
	if v := getenvTrim("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := getenvTrim("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := getenvTrim("RELEARN_CRON"); v != "" {
		cfg.RelearnCron = v
	}
	if v := getenvTrim("HTN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
}

func getenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// LoadEnvFile loads a .env file from the current directory, or up to
// three parent directories, exactly as hdn/server.go's loadEnvFile does.
func LoadEnvFile() error {
	if err := godotenv.Load(".env"); err == nil {
		log.Printf("✅ [ENV] loaded .env file from current directory")
		return nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		envPath := filepath.Join(dir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("✅ [ENV] loaded .env file from: %s", envPath)
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return fmt.Errorf(".env file not found")
}

// learnProfile is the YAML shape of a mode-flag bundle, one field per
// internal/learn.Options field.
type learnProfile struct {
	PartialGeneralization bool `yaml:"partial_generalization"`
	OnlyTaskEffects       bool `yaml:"only_task_effects"`
	RequireNew            bool `yaml:"require_new"`
	ForceOpsFirst         bool `yaml:"force_ops_first"`
	DropUnneeded          bool `yaml:"drop_unneeded"`
	SoundnessCheck        bool `yaml:"soundness_check"`
	NDCheckers            bool `yaml:"nd_checkers"`
	QValues               bool `yaml:"q_values"`
	HardSquelch           int  `yaml:"hard_squelch"`
	VarLinkage            bool `yaml:"var_linkage"`
	NoSubsumption         bool `yaml:"no_subsumption"`
	RandomOrder           bool `yaml:"random_order"`
}

// LoadLearnProfile reads a learn.yaml-style mode-flag bundle, the YAML
// alternative to passing every htn-maker CLI switch by hand.
func LoadLearnProfile(path string) (learn.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return learn.Options{}, err
	}
	var p learnProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return learn.Options{}, err
	}
	return learn.Options{
		PartialGeneralization: p.PartialGeneralization,
		OnlyTaskEffects:       p.OnlyTaskEffects,
		RequireNew:            p.RequireNew,
		ForceOpsFirst:         p.ForceOpsFirst,
		DropUnneeded:          p.DropUnneeded,
		SoundnessCheck:        p.SoundnessCheck,
		NDCheckers:            p.NDCheckers,
		QValues:               p.QValues,
		HardSquelch:           p.HardSquelch,
		VarLinkage:            p.VarLinkage,
		NoSubsumption:         p.NoSubsumption,
		RandomOrder:           p.RandomOrder,
	}, nil
}
