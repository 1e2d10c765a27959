// Command gameserver is a thin demonstration adapter (§4.14) exposing a
// RewindableEngine per map instance over a gorilla/websocket transport. It
// is not a complete game server: CreatePlayer/LoginPlayer/session handling
// exist only so engine/network's protocol enumeration has a runnable home,
// exactly as the spec describes.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keindproject/keind/engine"
	"github.com/keindproject/keind/engine/manifest"
	"github.com/keindproject/keind/infrastructure/config"
	"github.com/keindproject/keind/infrastructure/logging"
	slmetrics "github.com/keindproject/keind/infrastructure/metrics"
	"github.com/keindproject/keind/infrastructure/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.NewFromEnv("gameserver")
	metrics := slmetrics.Init("gameserver")

	engCfg := engine.FromEnv()
	store, err := buildStore(context.Background())
	if err != nil {
		return fmt.Errorf("gameserver: build store: %w", err)
	}

	var m *manifest.Manifest
	if path := config.GetEnv("KEIND_MANIFEST_PATH", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("gameserver: read manifest: %w", err)
		}
		m, err = manifest.Parse(data)
		if err != nil {
			return fmt.Errorf("gameserver: parse manifest: %w", err)
		}
	}

	vrfKey, err := loadOrGenerateVRFKey(logger)
	if err != nil {
		return fmt.Errorf("gameserver: vrf key: %w", err)
	}

	jwtSecret := []byte(config.GetEnv("KEIND_JWT_SECRET", "keind-development-secret"))

	stateKey, err := loadStateEncryptionKey()
	if err != nil {
		return fmt.Errorf("gameserver: state encryption key: %w", err)
	}

	srv := newGameServer(gameServerConfig{
		Store:              store,
		Manifest:           m,
		VRFKey:             vrfKey,
		JWTSecret:          jwtSecret,
		StateEncryptionKey: stateKey,
		Logger:             logger,
		Metrics:            metrics,
		StepsPerSecond:     engCfg.StepsPerSecond,
		TrailingStateLen:   engCfg.TrailingStateLen,
		WorldWidth:         engCfg.WorldWidth,
		WorldHeight:        engCfg.WorldHeight,
		SnapshotCron:       config.GetEnv("KEIND_SNAPSHOT_CRON", "@every 30s"),
	})

	port := config.GetEnv("KEIND_GAMESERVER_PORT", "8090")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx, port)
}

// buildStore selects a PersistenceBackend from KEIND_STATE_BACKEND
// (memory|postgres), defaulting to an in-process MemoryBackend so the
// server runs with zero external dependencies out of the box. The value
// "redis" is recognised but returns an error, since this main has no
// redis.Client to build a RedisCache from.
func buildStore(ctx context.Context) (state.PersistenceBackend, error) {
	switch config.GetEnv("KEIND_STATE_BACKEND", "memory") {
	case "postgres":
		dsn := config.GetEnv("KEIND_POSTGRES_DSN", "")
		migrations := config.GetEnv("KEIND_POSTGRES_MIGRATIONS", "infrastructure/state/migrations")
		return state.NewPostgresBackend(ctx, dsn, migrations)
	case "redis":
		return nil, fmt.Errorf("gameserver: KEIND_STATE_BACKEND=redis requires a configured redis.Client; wire it in an embedding main")
	default:
		return state.NewMemoryBackend(10 * time.Minute), nil
	}
}

// loadOrGenerateVRFKey loads the server's VRF signing key from
// KEIND_VRF_PRIVATE_KEY (hex-encoded big-endian scalar) or generates a
// fresh ephemeral one, logging a warning since a fresh key means published
// seed proofs won't verify against any previously-known public key.
func loadOrGenerateVRFKey(logger *logging.Logger) (*ecdsa.PrivateKey, error) {
	if hexKey := config.GetEnv("KEIND_VRF_PRIVATE_KEY", ""); hexKey != "" {
		return parseECDSAPrivateKeyHex(hexKey)
	}
	logger.Warn(context.Background(), "KEIND_VRF_PRIVATE_KEY unset; generating an ephemeral VRF key", nil)
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// loadStateEncryptionKey loads the 32-byte AES-256 key (hex-encoded) used
// to seal values passed through saveToStore/loadFromStore. Left unset, the
// store holds plaintext snapshots and player records, matching a local
// MemoryBackend deployment that never leaves the process.
func loadStateEncryptionKey() ([]byte, error) {
	hexKey := config.GetEnv("KEIND_STATE_ENCRYPTION_KEY", "")
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode KEIND_STATE_ENCRYPTION_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("KEIND_STATE_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
