package paxlock

import (
	"fmt"
	"os"
	"strings"
	"time"

	crand "crypto/rand"

	"github.com/glycerine/base58"
	gjson "github.com/goccy/go-json"
)

// Config says who we are as a proposer and which
// acceptors to contact.
type Config struct {

	// ProposerID breaks ties between proposals of equal
	// round. It must differ between every Proposer
	// sharing an acceptor set. NewConfig fills in a
	// random one.
	ProposerID string

	// Acceptors are host:port addresses of acceptor
	// servers (see cmd/paxlockd). Not used when the
	// AcceptorClient slice is built in-process.
	Acceptors []string

	// RoundTimeout bounds each Prepare and each Accept
	// round. Acceptors that have not answered by then
	// count as not having promised/accepted.
	// 0 means wait as long as the ctx passed in allows.
	RoundTimeout time.Duration

	// DialTimeout for connecting to remote acceptors.
	DialTimeout time.Duration

	// ReleaseKeepsHighWater, when true, makes Release
	// write the highest token observed in its Prepare
	// round instead of 0. See DESIGN.md, release tokens.
	ReleaseKeepsHighWater bool
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		ProposerID:   NewProposerID(),
		RoundTimeout: 5 * time.Second,
		DialTimeout:  2 * time.Second,
	}
}

// NewProposerID returns a random base58 identifier.
func NewProposerID() string {
	return "p" + base58.Encode(cryptoRandBytes(12))
}

func cryptoRandBytes(n int) []byte {
	b := make([]byte, n)
	_, err := crand.Read(b)
	panicOn(err)
	return b
}

// Validate checks for settings we cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProposerID) == "" {
		return fmt.Errorf("config: ProposerID must not be empty")
	}
	if c.RoundTimeout < 0 {
		return fmt.Errorf("config: RoundTimeout must not be negative: %v", c.RoundTimeout)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("config: DialTimeout must not be negative: %v", c.DialTimeout)
	}
	seen := make(map[string]bool)
	for _, a := range c.Acceptors {
		if seen[a] {
			return fmt.Errorf("config: acceptor '%v' listed twice", a)
		}
		seen[a] = true
	}
	return nil
}

// configFile is the on-disk JSON shape. Durations
// are strings like "1500ms" so the file stays readable.
type configFile struct {
	ProposerID            string   `json:"proposer_id"`
	Acceptors             []string `json:"acceptors"`
	RoundTimeout          string   `json:"round_timeout"`
	DialTimeout           string   `json:"dial_timeout"`
	ReleaseKeepsHighWater bool     `json:"release_keeps_high_water"`
}

// LoadConfig reads a JSON config file. Unset fields
// keep their NewConfig defaults. Example:
//
//	{
//	    "proposer_id": "billing-worker-3",
//	    "acceptors": ["10.0.0.1:7070", "10.0.0.2:7070", "10.0.0.3:7070"],
//	    "round_timeout": "2s"
//	}
func LoadConfig(path string) (*Config, error) {
	by, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ConfigFromJSON(by)
}

// ConfigFromJSON parses the LoadConfig format.
func ConfigFromJSON(by []byte) (cfg *Config, err error) {
	var f configFile
	if err = gjson.Unmarshal(by, &f); err != nil {
		return nil, fmt.Errorf("config: bad JSON: %w", err)
	}
	cfg = NewConfig()
	if f.ProposerID != "" {
		cfg.ProposerID = f.ProposerID
	}
	cfg.Acceptors = f.Acceptors
	cfg.ReleaseKeepsHighWater = f.ReleaseKeepsHighWater
	if f.RoundTimeout != "" {
		cfg.RoundTimeout, err = time.ParseDuration(f.RoundTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: bad round_timeout: %w", err)
		}
	}
	if f.DialTimeout != "" {
		cfg.DialTimeout, err = time.ParseDuration(f.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: bad dial_timeout: %w", err)
		}
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{ProposerID:'%v', Acceptors:%v, RoundTimeout:%v, DialTimeout:%v, ReleaseKeepsHighWater:%v}", c.ProposerID, c.Acceptors, c.RoundTimeout, c.DialTimeout, c.ReleaseKeepsHighWater)
}
