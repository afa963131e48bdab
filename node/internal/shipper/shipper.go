// Package shipper pushes node snapshots to a meshd aggregator over gRPC.
package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/pkg/types"
	"github.com/mrhavens/becomingone/pkg/wire"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper is an engine output that buffers snapshots and pushes them to
// meshd. Write never blocks: when the buffer is full the oldest snapshot is
// evicted. Run drains the buffer and handles reconnection.
type Shipper struct {
	nodeID    string
	cfg       config.MeshConfig
	selfModel func() float64
	buf       chan *structpb.Struct
	dialFn    dialFunc

	mu            sync.Mutex
	shipped       bool
	lastTS        float64
	lastCollapsed bool
	mesh          types.MeshState
	haveMesh      bool
}

// dialFunc opens the gRPC connection. Tests inject one bound to an
// in-process server.
type dialFunc func(ctx context.Context, endpoint string, cfg config.MeshConfig) (*grpc.ClientConn, error)

// New returns a Shipper for nodeID. selfModel, when non-nil, supplies the
// witness self-model attached to each snapshot.
func New(nodeID string, cfg config.MeshConfig, selfModel func() float64) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		nodeID:    nodeID,
		cfg:       cfg,
		selfModel: selfModel,
		buf:       make(chan *structpb.Struct, size),
		dialFn:    defaultDial,
	}
}

// Write implements engine.Output. States are thinned to one per
// ShipInterval of sample time; collapse transitions are always shipped.
func (s *Shipper) Write(_ context.Context, st types.TemporalState) error {
	s.mu.Lock()
	due := !s.shipped ||
		st.Collapsed != s.lastCollapsed ||
		st.Timestamp-s.lastTS >= s.cfg.ShipInterval.Seconds()
	if due {
		s.shipped = true
		s.lastTS = st.Timestamp
		s.lastCollapsed = st.Collapsed
	}
	s.mu.Unlock()
	if !due {
		return nil
	}

	snap := types.Snapshot{NodeID: s.nodeID, State: st}
	if s.selfModel != nil {
		snap.SelfModel = s.selfModel()
	}
	return s.Ship(snap)
}

// Ship encodes snap and enqueues it, evicting the oldest entry when full.
func (s *Shipper) Ship(snap types.Snapshot) error {
	msg, err := wire.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("shipper: encode: %w", err)
	}
	select {
	case s.buf <- msg:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest snapshot",
				"node", snap.NodeID, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- msg:
		default:
		}
	}
	return nil
}

// Pending reports the number of buffered snapshots.
func (s *Shipper) Pending() int { return len(s.buf) }

// Mesh returns the merged mesh state from the most recent acknowledgement.
func (s *Shipper) Mesh() (types.MeshState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mesh, s.haveMesh
}

// Run drains the buffer, reconnecting with exponential backoff when the
// connection is lost. It blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.Endpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.Endpoint, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.Endpoint)

		err = s.drain(ctx, conn, bo)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.Endpoint, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain sends buffered snapshots until a transient send error or ctx is
// cancelled. The backoff is reset on the first successful send.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn, bo *backoff) error {
	client := wire.NewMeshClient(conn)

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-s.buf:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if s.cfg.Auth.Mode == "apikey" && s.cfg.Auth.KeyEnv != "" {
				sendCtx = metadata.AppendToOutgoingContext(sendCtx, s.cfg.Auth.Header, s.cfg.Auth.Key())
			}
			resp, err := client.PushSnapshot(sendCtx, msg)
			cancel()

			if err != nil {
				if isPermanentError(err) {
					slog.Error("shipper: permanent send error, discarding snapshot",
						"node", s.nodeID, "err", err)
					continue
				}
				select {
				case s.buf <- msg:
				default:
				}
				return fmt.Errorf("send: %w", err)
			}

			bo.reset()
			mesh := wire.DecodeMesh(resp)
			s.mu.Lock()
			s.mesh, s.haveMesh = mesh, true
			s.mu.Unlock()
			slog.Debug("shipper: snapshot delivered",
				"node", s.nodeID, "mesh_coherence", mesh.Coherence, "mesh_nodes", mesh.Nodes)
		}
	}
}

// isPermanentError reports gRPC errors meaning the snapshot itself will
// never be accepted.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

func defaultDial(_ context.Context, endpoint string, cfg config.MeshConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(endpoint, opts...)
}

func dialOptions(cfg config.MeshConfig) ([]grpc.DialOption, error) {
	if cfg.Auth.Mode == "mtls" {
		creds, err := buildMTLSCreds(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
	}
	// apikey rides in per-call metadata; none is for local use.
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
}

func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

// backoff is truncated exponential backoff with ±25% jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

func (b *backoff) next() time.Duration {
	d := b.current
	d += time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	if d < 0 {
		d = 0
	}
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
