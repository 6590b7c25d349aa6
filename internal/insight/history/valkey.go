package history

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// ValkeyTLSConfig enables TLS toward valkey and optionally pins a CA bundle.
type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

// ValkeyConfig carries the connection settings for the valkey backend.
type ValkeyConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      ValkeyTLSConfig
}

type valkeyStore struct {
	client valkey.Client
	now    func() time.Time
}

// NewValkey connects to valkey and verifies the connection with a ping.
// Retention is enforced by the server: every snapshot is written with a TTL
// equal to its remaining retention window, so Prune is a no-op here.
func NewValkey(cfg ValkeyConfig) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("history: valkey address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("history: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("history: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("history: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("history: valkey ping: %w", err)
	}

	return &valkeyStore{client: client, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *valkeyStore) Put(ctx context.Context, agg Aggregate) error {
	if agg.CapturedAt.IsZero() {
		agg.CapturedAt = s.now()
	}
	agg.PeriodStart = agg.PeriodStart.UTC()

	ttl := Retention(agg.Granularity) - s.now().Sub(agg.PeriodStart)
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("history: valkey marshal: %w", err)
	}
	cmd := s.client.B().Set().Key(agg.key()).Value(string(payload)).Px(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("history: valkey set: %w", err)
	}
	return nil
}

func (s *valkeyStore) Get(ctx context.Context, plantID string, g Granularity, period time.Time) (Aggregate, bool, error) {
	lookup := Aggregate{PlantID: plantID, Granularity: g, PeriodStart: period}
	resp := s.client.Do(ctx, s.client.B().Get().Key(lookup.key()).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Aggregate{}, false, nil
		}
		return Aggregate{}, false, fmt.Errorf("history: valkey get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Aggregate{}, false, fmt.Errorf("history: valkey get bytes: %w", err)
	}
	var agg Aggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return Aggregate{}, false, fmt.Errorf("history: valkey unmarshal: %w", err)
	}
	return agg, true, nil
}

func (s *valkeyStore) List(ctx context.Context, plantID string, g Granularity) ([]Aggregate, error) {
	pattern := fmt.Sprintf("history:%s:%s:*", g, plantID)
	var out []Aggregate
	cursor := uint64(0)
	for {
		resp := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build())
		entry, err := resp.AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("history: valkey scan: %w", err)
		}
		for _, key := range entry.Elements {
			get := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
			if err := get.Error(); err != nil {
				if errors.Is(err, valkey.Nil) {
					continue
				}
				return nil, fmt.Errorf("history: valkey get %s: %w", key, err)
			}
			payload, err := get.AsBytes()
			if err != nil {
				return nil, fmt.Errorf("history: valkey get bytes %s: %w", key, err)
			}
			var agg Aggregate
			if err := json.Unmarshal(payload, &agg); err != nil {
				return nil, fmt.Errorf("history: valkey unmarshal %s: %w", key, err)
			}
			out = append(out, agg)
		}
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

// Prune is a no-op: valkey expires snapshots via per-key TTLs.
func (s *valkeyStore) Prune(context.Context) (int, error) {
	return 0, nil
}

func (s *valkeyStore) Close(context.Context) error {
	s.client.Close()
	return nil
}
