// Command voxelserver is the bootstrap binary: load config, build the
// packet registry, wire a world to a command pump, bind a transport,
// and block until an OS signal asks for a graceful shutdown. The
// shape follows chunkymonkey/game.go's NewGame/Serve bootstrap
// (worldstore load, channel-based Game, net.Listen'd ConnHandler),
// generalized to config-driven transport selection. This binary
// serves a single named world per process.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nictuku/voxelserver/internal/asset"
	"github.com/nictuku/voxelserver/internal/command"
	"github.com/nictuku/voxelserver/internal/config"
	"github.com/nictuku/voxelserver/internal/entity"
	"github.com/nictuku/voxelserver/internal/fluid"
	"github.com/nictuku/voxelserver/internal/protocol"
	"github.com/nictuku/voxelserver/internal/replication"
	"github.com/nictuku/voxelserver/internal/transport"
	"github.com/nictuku/voxelserver/internal/world"
)

// exit codes per §6: 0 success, 1 bind failure, 2 asset/config load
// failure, 3 transport handshake failure on startup.
const (
	exitOK               = 0
	exitBindFailure      = 1
	exitAssetLoadFailure = 2
	exitHandshakeFailure = 3
)

// devnetAuthManager is a trust-on-first-use AuthManager: it accepts
// any client certificate presented during the QUIC handshake and logs
// the server's own cert for diagnostics. A production host embedding
// this core is expected to supply a real AuthManager (§6); this one
// only exists so -transport=quic has something to bind against out of
// the box.
type devnetAuthManager struct {
	log *logrus.Entry
}

func newTLSAuthManager(log *logrus.Entry) *devnetAuthManager {
	return &devnetAuthManager{log: log}
}

func (a *devnetAuthManager) RegisterServerCert(cert tls.Certificate) {
	a.log.Info("registered self-signed server certificate for QUIC transport")
}

func (a *devnetAuthManager) VerifyClientCert(chain []*x509.Certificate) bool {
	return len(chain) > 0
}

func main() {
	os.Exit(run())
}

func run() int {
	log := logrus.WithField("component", "main")

	yamlPath := flag.String("config", "voxelserver.yaml", "path to the server config YAML document")
	envPath := flag.String("env", ".env", "path to an optional .env overlay")
	worldName := flag.String("world", "overworld", "name of the single world this process serves")
	flag.Parse()

	cfg, err := config.Load(*yamlPath, *envPath)
	if err != nil {
		log.WithError(err).Error("failed to load config")
		return exitAssetLoadFailure
	}

	packetRegistry := protocol.NewRegistry()
	compress := protocol.IfLargerThan(cfg.CompressionThreshold)
	if err := replication.Register(packetRegistry, 1<<20, compress); err != nil {
		log.WithError(err).Error("failed to register replication packets")
		return exitAssetLoadFailure
	}
	if err := asset.Register(packetRegistry, 1<<20, compress); err != nil {
		log.WithError(err).Error("failed to register asset sync packets")
		return exitAssetLoadFailure
	}
	packetRegistry.Seal()

	assetRegistry := asset.NewRegistry()
	assetRegistry.Seal()

	store := entity.NewStore(entity.NewMetaRegistry())
	grid := fluid.NewGrid()
	scheduler := fluid.NewScheduler(grid, nil)
	replicator := replication.New()

	w := world.New(*worldName, store, scheduler, replicator, cfg.TickInterval)
	go w.Run()
	defer w.Stop()

	pump := command.NewPump()
	pump.RegisterWorld(w)

	dispatcher := transport.DispatcherFunc(func(pkt protocol.Packet, conn *transport.Connection) {
		log.WithField("packet", pkt.PacketID()).Debug("received packet with no host-registered route")
	})

	statsFactory := statsFactoryFor(cfg, packetRegistry)

	var tr transport.Transport
	switch cfg.Transport {
	case config.TransportQUIC:
		auth := newTLSAuthManager(log)
		tr = transport.NewQUICTransport(dispatcher, packetRegistry, statsFactory, auth)
	default:
		tr = transport.NewTCPTransport(dispatcher, packetRegistry, statsFactory, cfg.Workers)
	}

	if err := tr.Bind(cfg.Address); err != nil {
		log.WithError(err).WithField("address", cfg.Address).Error("failed to bind transport")
		return exitBindFailure
	}
	log.WithFields(logrus.Fields{
		"transport": tr.Kind(),
		"address":   cfg.Address,
		"world":     *worldName,
	}).Info("voxelserver bound and serving")

	waitForShutdownSignal()

	log.Info("shutting down")
	if err := tr.Shutdown(5 * time.Second); err != nil {
		log.WithError(err).Warn("transport shutdown did not complete cleanly")
	}
	return exitOK
}

func statsFactoryFor(cfg config.ServerConfig, reg *protocol.Registry) transport.StatsFactory {
	switch cfg.Stats {
	case config.StatsAtomic:
		return func() protocol.StatsRecorder { return protocol.NewAtomicStats(reg) }
	default:
		return func() protocol.StatsRecorder { return protocol.NoOpStats{} }
	}
}

func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
