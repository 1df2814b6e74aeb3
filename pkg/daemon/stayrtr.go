package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/netlab-sim/netlab/pkg/topology"
	"github.com/netlab-sim/netlab/pkg/util"
)

// StayRTRServer is a router running the StayRTR RPKI-to-router server.
type StayRTRServer struct {
	*topology.Router

	cacheFile string
	slurmFile string
	extraArgs []string
	pidFile   string
}

// StayRTRConfig configures a StayRTR server. All fields are optional: an
// empty CacheFile means an empty ROA cache is synthesized in the run
// directory, and ExtraArgs are appended to the command line verbatim.
type StayRTRConfig struct {
	CacheFile string
	SlurmFile string
	ExtraArgs []string
}

// NewStayRTRServer returns a router that launches StayRTR on Create. The
// binary must be in PATH and the SLURM file, when given, must exist.
func NewStayRTRServer(name string, cfg StayRTRConfig) (*StayRTRServer, error) {
	if _, err := exec.LookPath("stayrtr"); err != nil {
		return nil, fmt.Errorf("daemon: stayrtr binary not found in PATH: %w", err)
	}
	if cfg.SlurmFile != "" {
		if _, err := os.Stat(cfg.SlurmFile); err != nil {
			return nil, fmt.Errorf("daemon: stayrtr slurm file %q: %w", cfg.SlurmFile, err)
		}
	}

	router := topology.NewRouter(name)
	return &StayRTRServer{
		Router:    router,
		cacheFile: cfg.CacheFile,
		slurmFile: cfg.SlurmFile,
		extraArgs: cfg.ExtraArgs,
		pidFile:   router.RunDir() + "/stayrtr.pid",
	}, nil
}

// Create builds the underlying router, synthesizes an empty ROA cache if
// none was supplied, then launches StayRTR inside the namespace.
func (s *StayRTRServer) Create() error {
	if err := s.Router.Create(); err != nil {
		return err
	}

	if s.cacheFile == "" {
		s.cacheFile = s.RunDir() + "/stayrtr.cache.json"
		if err := writeEmptyROACache(s.cacheFile); err != nil {
			return err
		}
	}

	args := []string{"-cache", s.cacheFile}
	if s.slurmFile != "" {
		args = append(args, "-slurm", s.slurmFile)
	}
	args = append(args, s.extraArgs...)

	util.WithNode(s.Name()).Infof("Starting stayrtr with cache %q", s.cacheFile)
	cmd := exec.Command("stayrtr", args...)
	if err := s.StartInNS(cmd); err != nil {
		return fmt.Errorf("daemon: start stayrtr on router %q: %w", s.Name(), err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("daemon: release stayrtr process on router %q: %w", s.Name(), err)
	}
	return writePIDFile(s.pidFile, pid)
}

// Remove terminates the server by pidfile, then tears the router down.
func (s *StayRTRServer) Remove() error {
	return errors.Join(
		stopByPIDFile(s.pidFile, "stayrtr"),
		s.Router.Remove(),
	)
}

// roaCache matches the JSON cache format StayRTR loads.
type roaCache struct {
	Metadata roaMetadata       `json:"metadata"`
	ROAs     []json.RawMessage `json:"roas"`
}

type roaMetadata struct {
	Buildtime string `json:"buildtime"`
	VRPs      int    `json:"vrps"`
}

// writeEmptyROACache writes a valid cache with zero ROAs so StayRTR can
// serve an empty table.
func writeEmptyROACache(path string) error {
	cache := roaCache{
		Metadata: roaMetadata{
			Buildtime: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		},
		ROAs: []json.RawMessage{},
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("daemon: encode ROA cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("daemon: write ROA cache %q: %w", path, err)
	}
	return nil
}
