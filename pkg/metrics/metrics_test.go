package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/session"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.HandshakeCompleted(session.RoleServer, crypto.DefaultSuite())
	c.FrameEncoded(10)
	c.FrameEncoded(5)
	c.FrameDecoded(7)
	c.FrameRejected(session.RejectTag)
	c.FrameRejected(session.RejectTag)
	c.FrameRejected(session.RejectReplay)

	out := scrape(t, reg)
	require.Contains(t, out, `shaiya_handshakes_total{role="server",suite="rsa-oaep-1024/aes-128-ctr/ctr64/hmac-sha256"} 1`)
	require.Contains(t, out, `shaiya_frames_total{direction="sent"} 2`)
	require.Contains(t, out, `shaiya_frames_total{direction="received"} 1`)
	require.Contains(t, out, `shaiya_frame_bytes_total{direction="sent"} 15`)
	require.Contains(t, out, `shaiya_frames_rejected_total{reason="tag"} 2`)
	require.Contains(t, out, `shaiya_frames_rejected_total{reason="replay"} 1`)
}

func TestCollectorWithSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	suite := crypto.Suite{Exchange: crypto.ExchangeX25519Box, Cipher: crypto.CipherChaCha20, Counter: crypto.Counter64, Digest: crypto.DigestHMACSHA256}
	server, err := session.New(session.Config{Role: session.RoleServer, Suite: suite, Observer: c})
	require.NoError(t, err)
	client, err := session.New(session.Config{Role: session.RoleClient, Suite: suite, Observer: c})
	require.NoError(t, err)

	req, err := server.BeginHandshake()
	require.NoError(t, err)
	resp, err := client.RespondHandshake(req, nil)
	require.NoError(t, err)
	require.NoError(t, server.CompleteHandshake(resp))

	f, err := client.Encode([]byte("ping"))
	require.NoError(t, err)
	_, err = server.Decode(f)
	require.NoError(t, err)
	_, err = server.Decode(f)
	require.ErrorIs(t, err, session.ErrReplayOrReorder)

	out := scrape(t, reg)
	require.Contains(t, out, `shaiya_frames_total{direction="received"} 1`)
	require.Contains(t, out, `shaiya_frames_rejected_total{reason="replay"} 1`)
	require.Contains(t, out, `role="client"`)
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	require.Error(t, err)
}
