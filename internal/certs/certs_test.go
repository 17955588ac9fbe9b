package certs

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, cert tls.Certificate) *x509.Certificate {
	t.Helper()
	require.Len(t, cert.Certificate, 1)
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return parsed
}

func TestStoreLoad(t *testing.T) {
	tests := []struct {
		setup     func(t *testing.T, s *Store)
		name      string
		wantReuse bool
	}{
		{
			name:  "issues a certificate when none exists",
			setup: func(_ *testing.T, _ *Store) {},
		},
		{
			name: "reuses a valid certificate",
			setup: func(t *testing.T, s *Store) {
				t.Helper()
				_, err := s.Load()
				require.NoError(t, err)
			},
			wantReuse: true,
		},
		{
			name: "replaces unreadable files",
			setup: func(t *testing.T, s *Store) {
				t.Helper()
				certFile, keyFile := s.Paths()
				require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0600))
				require.NoError(t, os.WriteFile(keyFile, []byte("garbage"), 0600))
			},
		},
		{
			name: "renews a certificate close to expiry",
			setup: func(t *testing.T, s *Store) {
				t.Helper()
				s.now = func() time.Time { return time.Now().Add(-Validity + 24*time.Hour) }
				_, err := s.Load()
				require.NoError(t, err)
				s.now = time.Now
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir())
			tt.setup(t, s)

			var before []byte
			certFile, _ := s.Paths()
			if data, err := os.ReadFile(certFile); err == nil {
				before = data
			}

			cert, err := s.Load()
			require.NoError(t, err)

			x := leaf(t, cert)
			assert.NoError(t, x.VerifyHostname("localhost"))
			assert.NoError(t, x.VerifyHostname("127.0.0.1"))
			assert.True(t, x.NotAfter.After(time.Now().Add(300*24*time.Hour)))

			after, err := os.ReadFile(certFile)
			require.NoError(t, err)
			if tt.wantReuse {
				assert.Equal(t, before, after)
			} else {
				assert.NotEqual(t, before, after)
			}
		})
	}
}

func TestStoreFilePermissions(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load()
	require.NoError(t, err)

	certFile, keyFile := s.Paths()
	for _, path := range []string{certFile, keyFile} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestTLSConfig(t *testing.T) {
	cfg, err := NewStore(t.TempDir()).TLSConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}
