// Command civicd runs a civicmesh node: it opens the local event store,
// loads or creates this host's identity, joins the overlay, and serves
// replication and sandboxed VM requests until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"civicmesh/core"
	"civicmesh/pkg/config"
	"civicmesh/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.WithError(err).Warn("no config file found, using defaults")
		cfg = &config.AppConfig
	}
	if level, parseErr := logrus.ParseLevel(cfg.Logging.Level); parseErr == nil {
		log.SetLevel(level)
	}

	keyDir := utils.EnvOrDefault("CIVICMESH_KEY_DIR", orDefault(cfg.Identity.KeyDir, "./data/identity"))
	dbPath := utils.EnvOrDefault("CIVICMESH_DB_PATH", orDefault(cfg.Storage.DBPath, "./data/civicmesh.db"))
	listenAddr := utils.EnvOrDefault("CIVICMESH_LISTEN_ADDR", orDefault(cfg.Network.ListenAddr, "/ip4/0.0.0.0/tcp/4001"))
	discoveryTag := utils.EnvOrDefault("CIVICMESH_DISCOVERY_TAG", orDefault(cfg.Network.DiscoveryTag, "civicmesh"))

	if err := os.MkdirAll(dbPath[:lastSlash(dbPath)], 0o755); err != nil {
		log.WithError(err).Fatal("failed to create data directory")
	}

	id, err := core.LoadOrCreateIdentity(keyDir, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load identity")
	}
	log.WithField("author", id.AuthorID()).Info("identity loaded")

	store, err := core.OpenStore(dbPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer store.Close()

	if quotaMB := cfg.Storage.QuotaMB; quotaMB > 0 {
		if err := store.SetQuota(quotaMB * 1024 * 1024); err != nil {
			log.WithError(err).Warn("failed to set storage quota")
		}
	}

	vm := core.NewVM(log)

	overlay, err := core.NewOverlay(core.OverlayConfig{
		ListenAddr:     listenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		DiscoveryTag:   discoveryTag,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start overlay")
	}
	defer overlay.Close()

	if err := overlay.Subscribe(core.GossipTopic()); err != nil {
		log.WithError(err).Fatal("failed to subscribe to gossip topic")
	}

	replicator := core.NewReplicator(store, overlay, log)
	node := core.NewNode(id, store, vm, overlay, replicator, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.WithFields(logrus.Fields{
		"listen": listenAddr,
		"peer":   overlay.LocalPeerID().String(),
	}).Info("civicmesh node starting")

	node.Run(ctx)
	log.Info("civicmesh node stopped")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return 0
}
