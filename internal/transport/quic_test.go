package transport

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSignedCertIsParseable(t *testing.T) {
	cert, err := generateSelfSignedCert()
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	require.Equal(t, "voxelserver", parsed.Subject.CommonName)
	require.True(t, parsed.NotAfter.After(parsed.NotBefore))
}

type stubAuthManager struct {
	verifyResult bool
	registered   bool
}

func (s *stubAuthManager) RegisterServerCert(cert tls.Certificate)         { s.registered = true }
func (s *stubAuthManager) VerifyClientCert(chain []*x509.Certificate) bool { return s.verifyResult }

var _ AuthManager = (*stubAuthManager)(nil)

func TestQUICTransportBindPublishesCertToAuthManager(t *testing.T) {
	auth := &stubAuthManager{verifyResult: true}
	reg := newEchoRegistry(t)
	transport := NewQUICTransport(nil, reg, nil, auth)

	require.NoError(t, transport.Bind("127.0.0.1:0"))
	defer transport.Shutdown(0)

	require.True(t, auth.registered)
	require.Equal(t, KindQUIC, transport.Kind())
}
