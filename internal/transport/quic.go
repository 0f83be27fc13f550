package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"

	"github.com/nictuku/voxelserver/internal/protocol"
)

// AuthManager is the host-supplied certificate/session authority of
// §6's control plane: the core publishes its self-signed server
// certificate to it at bind time, and consults it to verify each
// client certificate presented during the QUIC handshake.
type AuthManager interface {
	RegisterServerCert(cert tls.Certificate)
	VerifyClientCert(chain []*x509.Certificate) bool
}

// QUICTransport accepts QUIC connections requiring mutual TLS
// (§4.11): a self-signed server certificate is generated at Bind
// time and published to the AuthManager; every client must present a
// certificate the AuthManager accepts, or the handshake is rejected.
type QUICTransport struct {
	dispatcher   Dispatcher
	registry     *protocol.Registry
	statsFactory StatsFactory
	authManager  AuthManager

	mu       sync.Mutex
	listener *quic.Listener
	conns    map[*Connection]struct{}
	cancel   context.CancelFunc

	log *logrus.Entry
}

// NewQUICTransport builds a QUICTransport. authManager must not be
// nil: it is both where the generated server cert is published and
// the verdict authority for client certs.
func NewQUICTransport(dispatcher Dispatcher, registry *protocol.Registry, statsFactory StatsFactory, authManager AuthManager) *QUICTransport {
	return &QUICTransport{
		dispatcher:   dispatcher,
		registry:     registry,
		statsFactory: statsFactory,
		authManager:  authManager,
		conns:        make(map[*Connection]struct{}),
		log:          logrus.WithField("component", "transport").WithField("transport", "quic"),
	}
}

// Kind implements Transport.
func (t *QUICTransport) Kind() Kind { return KindQUIC }

// Bind generates a self-signed server certificate, publishes it to
// the AuthManager, configures mutual TLS requiring (and verifying) a
// client certificate, and starts accepting QUIC connections.
func (t *QUICTransport) Bind(addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return ErrAlreadyBound
	}

	cert, err := generateSelfSignedCert()
	if err != nil {
		return fmt.Errorf("transport: generating self-signed cert: %w", err)
	}
	t.authManager.RegisterServerCert(cert)

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS13,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			chain := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return fmt.Errorf("transport: parsing client cert: %w", err)
				}
				chain = append(chain, cert)
			}
			if len(chain) == 0 || !t.authManager.VerifyClientCert(chain) {
				return errors.New("transport: client certificate rejected")
			}
			return nil
		},
	}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{})
	if err != nil {
		return fmt.Errorf("transport: quic listen %s: %w", addr, err)
	}
	t.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.acceptLoop(ctx, ln)
	return nil
}

func (t *QUICTransport) acceptLoop(ctx context.Context, ln *quic.Listener) {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			t.log.WithError(err).Debug("accept loop exiting")
			return
		}
		go t.handleConn(ctx, conn)
	}
}

// handleConn accepts every stream the peer opens on one QUIC
// connection, each becoming its own Connection — mirroring
// one TCP socket carrying one logical connection, generalized to
// QUIC's multi-stream model.
func (t *QUICTransport) handleConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go t.handleStream(conn, stream)
	}
}

func (t *QUICTransport) handleStream(conn *quic.Conn, stream *quic.Stream) {
	var stats protocol.StatsRecorder
	if t.statsFactory != nil {
		stats = t.statsFactory()
	}
	c := newConnection(stream, conn.RemoteAddr().String(), KindQUIC, t.registry, stats, t.dispatcher)

	t.mu.Lock()
	t.conns[c] = struct{}{}
	t.mu.Unlock()

	c.run()

	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
}

// Shutdown stops accepting, closes the listener and waits up to grace
// for open streams to close.
func (t *QUICTransport) Shutdown(grace time.Duration) error {
	t.mu.Lock()
	ln := t.listener
	cancel := t.cancel
	conns := make([]*Connection, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	deadline := time.Now().Add(grace)
	for _, c := range conns {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		c.waitClosed(remaining)
	}
	return nil
}

// generateSelfSignedCert builds an ephemeral ECDSA P-256 certificate
// for the server side of the QUIC mutual-TLS handshake (§4.11).
func generateSelfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "voxelserver"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour * 365),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}
