package wire

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/session"
)

func boxSuite() crypto.Suite {
	return crypto.Suite{
		Exchange: crypto.ExchangeX25519Box,
		Cipher:   crypto.CipherAES128CTR,
		Counter:  crypto.Counter64,
		Digest:   crypto.DigestHMACSHA256,
	}
}

func TestFrameCodec(t *testing.T) {
	f := &session.Frame{Sequence: 0x0102030405060708, Ciphertext: []byte("ciphertext"), Tag: bytes.Repeat([]byte{0xAA}, 32)}
	buf, err := EncodeFrame(f)
	require.NoError(t, err)

	require.Len(t, buf, FrameHeaderLen+10+32)
	require.Equal(t, uint64(0x0102030405060708), binary.BigEndian.Uint64(buf[0:8]))
	require.Equal(t, uint32(10), binary.BigEndian.Uint32(buf[8:12]))

	got, err := DecodeFrame(buf, 32, DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, f, got)

	got, err = ReadFrame(bytes.NewReader(buf), 32, DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, f.Sequence, got.Sequence)
	require.Equal(t, f.Ciphertext, got.Ciphertext)
	require.Equal(t, f.Tag, got.Tag)
}

func TestFrameCodecErrors(t *testing.T) {
	f := &session.Frame{Sequence: 1, Ciphertext: make([]byte, 100), Tag: make([]byte, 32)}
	buf, err := EncodeFrame(f)
	require.NoError(t, err)

	_, err = DecodeFrame(buf[:5], 32, DefaultMaxFrameSize)
	require.ErrorIs(t, err, ErrShortBuffer)

	_, err = DecodeFrame(buf[:len(buf)-1], 32, DefaultMaxFrameSize)
	require.ErrorIs(t, err, ErrShortBuffer)

	_, err = DecodeFrame(buf, 32, 99)
	require.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader(buf), 32, 99)
	require.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = ReadFrame(bytes.NewReader(buf[:len(buf)-1]), 32, DefaultMaxFrameSize)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, "read frame", fe.Op)
}

func TestReadFrameRejectsHugeLengthBeforeAllocating(t *testing.T) {
	hdr := make([]byte, FrameHeaderLen)
	binary.BigEndian.PutUint32(hdr[8:12], 0xFFFFFFFF)
	_, err := ReadFrame(bytes.NewReader(hdr), 32, DefaultMaxFrameSize)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestHandshakeRequestCodec(t *testing.T) {
	for _, suite := range []crypto.Suite{boxSuite(), crypto.DefaultSuite()} {
		t.Run(suite.String(), func(t *testing.T) {
			pub, _, err := crypto.GenerateKeyPair(suite, nil)
			require.NoError(t, err)

			req := &session.HandshakeRequest{Suite: suite, PublicKey: pub}
			buf, err := EncodeHandshakeRequest(req)
			require.NoError(t, err)
			require.Equal(t, byte(Version), buf[0])

			got, err := DecodeHandshakeRequest(buf)
			require.NoError(t, err)
			require.True(t, got.Suite.Equal(suite))
			require.True(t, got.PublicKey.Equal(pub))

			got, err = readHandshakeRequest(bytes.NewReader(buf))
			require.NoError(t, err)
			require.True(t, got.PublicKey.Equal(pub))

			bad := append([]byte(nil), buf...)
			bad[0] = 9
			_, err = DecodeHandshakeRequest(bad)
			require.ErrorIs(t, err, ErrVersion)

			bad = append([]byte(nil), buf...)
			bad[4] = 0x7F
			_, err = DecodeHandshakeRequest(bad)
			require.ErrorIs(t, err, crypto.ErrUnsupportedAlgorithm)

			_, err = DecodeHandshakeRequest(buf[:len(buf)-1])
			require.ErrorIs(t, err, ErrShortBuffer)
		})
	}
}

func TestHandshakeResponseCodec(t *testing.T) {
	resp := &session.HandshakeResponse{Blob: []byte("wrapped key material")}
	buf, err := EncodeHandshakeResponse(resp)
	require.NoError(t, err)

	got, err := DecodeHandshakeResponse(buf)
	require.NoError(t, err)
	require.Equal(t, resp.Blob, got.Blob)

	got, err = readHandshakeResponse(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, resp.Blob, got.Blob)

	_, err = DecodeHandshakeResponse(buf[:3])
	require.ErrorIs(t, err, ErrShortBuffer)

	_, err = EncodeHandshakeResponse(&session.HandshakeResponse{Blob: make([]byte, 0x10000)})
	require.ErrorIs(t, err, ErrFieldTooLong)
}

func newConnPair(t *testing.T, suite crypto.Suite) (server, client *Conn) {
	t.Helper()
	log := zaptest.NewLogger(t)
	a, b := net.Pipe()

	ss, err := session.New(session.Config{Role: session.RoleServer, Suite: suite, Logger: log})
	require.NoError(t, err)
	cs, err := session.New(session.Config{Role: session.RoleClient, Suite: suite, Logger: log})
	require.NoError(t, err)

	server = NewConn(a, ss, 0, log)
	client = NewConn(b, cs, 0, log)
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func handshakeBoth(t *testing.T, server, client *Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- client.Handshake(ctx) }()
	require.NoError(t, server.Handshake(ctx))
	require.NoError(t, <-errc)
}

func TestConnRoundTrip(t *testing.T) {
	server, client := newConnPair(t, boxSuite())
	handshakeBoth(t, server, client)

	require.Equal(t, session.PhaseEstablished, server.Session().Phase())
	require.Equal(t, session.PhaseEstablished, client.Session().Phase())

	msgs := []string{"first", "second", "third"}
	go func() {
		for _, m := range msgs {
			if err := client.Send([]byte(m)); err != nil {
				t.Errorf("Send: %v", err)
				return
			}
		}
	}()
	for _, m := range msgs {
		got, err := server.Recv()
		require.NoError(t, err)
		require.Equal(t, m, string(got))
	}

	go func() { _ = server.Send([]byte("reply")) }()
	got, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, "reply", string(got))
}

func TestConnTamperedFrame(t *testing.T) {
	server, client := newConnPair(t, boxSuite())
	handshakeBoth(t, server, client)

	// Write a frame with a corrupt tag directly to the pipe, then a good one.
	go func() {
		f, err := client.Session().Encode([]byte("tampered"))
		if err != nil {
			t.Errorf("Encode: %v", err)
			return
		}
		f.Tag[0] ^= 1
		buf, err := EncodeFrame(f)
		if err != nil {
			t.Errorf("EncodeFrame: %v", err)
			return
		}
		if _, err := client.nc.Write(buf); err != nil {
			t.Errorf("Write: %v", err)
			return
		}
		if err := client.Send([]byte("good")); err != nil {
			t.Errorf("Send: %v", err)
		}
	}()

	_, err := server.Recv()
	require.ErrorIs(t, err, crypto.ErrTagMismatch)

	got, err := server.Recv()
	require.NoError(t, err)
	require.Equal(t, "good", string(got))
}

func TestConnSendOversized(t *testing.T) {
	server, client := newConnPair(t, boxSuite())
	handshakeBoth(t, server, client)

	err := client.Send(make([]byte, DefaultMaxFrameSize+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Equal(t, session.PhaseEstablished, client.Session().Phase())

	// Nothing was written, so the stream stays aligned.
	go func() {
		if err := client.Send([]byte("ok")); err != nil {
			t.Errorf("Send: %v", err)
		}
	}()
	got, err := server.Recv()
	require.NoError(t, err)
	require.Equal(t, "ok", string(got))
}

func TestConnRecvOversizedCloses(t *testing.T) {
	server, client := newConnPair(t, boxSuite())
	handshakeBoth(t, server, client)

	go func() {
		hdr := make([]byte, FrameHeaderLen)
		binary.BigEndian.PutUint64(hdr[0:8], 0)
		binary.BigEndian.PutUint32(hdr[8:12], DefaultMaxFrameSize+1)
		if _, err := client.nc.Write(hdr); err != nil {
			t.Errorf("Write: %v", err)
		}
	}()

	_, err := server.Recv()
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Equal(t, session.PhaseClosed, server.Session().Phase())

	_, err = server.Recv()
	require.Error(t, err)
}

func TestEncodeFrameLength(t *testing.T) {
	f := &session.Frame{Sequence: 9, Ciphertext: make([]byte, DefaultMaxFrameSize), Tag: make([]byte, 32)}
	buf, err := EncodeFrame(f)
	require.NoError(t, err)
	require.Equal(t, uint32(DefaultMaxFrameSize), binary.BigEndian.Uint32(buf[8:12]))

	got, err := DecodeFrame(buf, 32, DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Len(t, got.Ciphertext, DefaultMaxFrameSize)
}

func TestHandshakeContextCancel(t *testing.T) {
	server, _ := newConnPair(t, boxSuite())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The client never answers.
	err := server.Handshake(ctx)
	require.Error(t, err)
	require.Equal(t, session.PhaseClosed, server.Session().Phase())
}

func TestHandshakeSuiteMismatch(t *testing.T) {
	log := zaptest.NewLogger(t)
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	other := boxSuite()
	other.Cipher = crypto.CipherChaCha20

	ss, err := session.New(session.Config{Role: session.RoleServer, Suite: boxSuite(), Logger: log})
	require.NoError(t, err)
	cs, err := session.New(session.Config{Role: session.RoleClient, Suite: other, Logger: log})
	require.NoError(t, err)
	server := NewConn(a, ss, 0, log)
	client := NewConn(b, cs, 0, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		_ = server.Handshake(ctx)
	}()
	err = client.Handshake(ctx)
	require.ErrorIs(t, err, session.ErrHandshakeFailed)
	require.Equal(t, session.PhaseClosed, cs.Phase())
}
