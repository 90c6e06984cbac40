package handlers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/provisioning"
	"github.com/sidstack/proxtalos/internal/provisioning/destroy"
	"github.com/sidstack/proxtalos/internal/util/naming"
)

// Factory function variables for destroy - can be replaced in tests.
var (
	// loadClusterMap loads the persisted cluster map.
	loadClusterMap = clustermap.Load

	// removeArtifactDir removes the artifact directory after teardown.
	removeArtifactDir = os.RemoveAll
)

// DestroyOptions carries the destroy command's flag values.
type DestroyOptions struct {
	ConfigPath      string
	MapPath         string
	RemoveArtifacts bool
}

// Destroy tears down a deployed cluster from its persisted cluster map.
//
// Every VM recorded in the map is stopped and destroyed, control planes
// first. VMs that are already gone are logged and skipped. When all nodes
// were processed and --remove-artifacts was given, the artifact directory
// is deleted as well; it is kept when any node failed so the map remains
// available for a retry.
func Destroy(ctx context.Context, opts DestroyOptions) error {
	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return err
	}
	// Teardown only talks to the host; a deploy-complete config with
	// template and pool settings is not required here.
	if err := cfg.ValidateConnection(); err != nil {
		return err
	}

	mapPath := opts.MapPath
	if mapPath == "" {
		if cfg.ClusterName == "" {
			return fmt.Errorf("cluster_name is required to locate the cluster map (or pass --map)")
		}
		mapPath = filepath.Join(cfg.OutputDir, naming.ClusterMapFile(cfg.ClusterName))
	}

	m, err := loadClusterMap(mapPath)
	if err != nil {
		return fmt.Errorf("load cluster map: %w", err)
	}

	vms, closeConn, err := newVMController(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	pctx := provisioning.NewContext(ctx, cfg, vms, nil, nil, nil)

	if err := destroy.NewProvisioner(m).Provision(pctx); err != nil {
		return err
	}

	if opts.RemoveArtifacts {
		dir := filepath.Dir(mapPath)
		if err := removeArtifactDir(dir); err != nil {
			return fmt.Errorf("remove artifact directory %s: %w", dir, err)
		}
		log.Printf("Removed artifact directory %s", dir)
	}

	return nil
}
