package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

const defaultSummaryTTL = 30 * time.Second

// SummaryCache implements domain.SummaryCache. Each auction summary is a
// JSON string under summary:{address} with a short TTL; the per-caller
// IsOwner flag is never cached.
type SummaryCache struct {
	c   *Client
	ttl time.Duration
}

// NewSummaryCache creates a SummaryCache. A non-positive ttl uses 30s.
func NewSummaryCache(c *Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = defaultSummaryTTL
	}
	return &SummaryCache{c: c, ttl: ttl}
}

func (sc *SummaryCache) key(auction common.Address) string {
	return sc.c.Key("summary", domain.AddressString(auction))
}

// Set stores s.
func (sc *SummaryCache) Set(ctx context.Context, s domain.Summary) error {
	data, err := encodeSummary(s)
	if err != nil {
		return fmt.Errorf("redis: encode summary %s: %w", domain.AddressString(s.Address), err)
	}
	if err := sc.c.rdb.Set(ctx, sc.key(s.Address), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set summary %s: %w", domain.AddressString(s.Address), err)
	}
	return nil
}

// Get returns the cached summary or domain.ErrNotFound.
func (sc *SummaryCache) Get(ctx context.Context, auction common.Address) (domain.Summary, error) {
	data, err := sc.c.rdb.Get(ctx, sc.key(auction)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Summary{}, domain.ErrNotFound
		}
		return domain.Summary{}, fmt.Errorf("redis: get summary %s: %w", domain.AddressString(auction), err)
	}
	s, err := decodeSummary(data)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("redis: decode summary %s: %w", domain.AddressString(auction), err)
	}
	return s, nil
}

// Invalidate drops the cached summary of auction.
func (sc *SummaryCache) Invalidate(ctx context.Context, auction common.Address) error {
	if err := sc.c.rdb.Del(ctx, sc.key(auction)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate summary %s: %w", domain.AddressString(auction), err)
	}
	return nil
}

// cachedSummary is the stored form; integers are decimal strings.
type cachedSummary struct {
	Address        string    `json:"address"`
	Owner          string    `json:"owner"`
	Asset          string    `json:"asset"`
	PaymentToken   string    `json:"payment_token"`
	Quantity       string    `json:"quantity"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	MaxParticipant string    `json:"max_participant"`
	Participants   int       `json:"participants"`
	Status         string    `json:"status"`
}

func encodeSummary(s domain.Summary) ([]byte, error) {
	return json.Marshal(cachedSummary{
		Address:        domain.AddressString(s.Address),
		Owner:          domain.AddressString(s.Owner),
		Asset:          domain.AddressString(s.Asset),
		PaymentToken:   domain.AddressString(s.PaymentToken),
		Quantity:       bigString(s.Quantity),
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		MaxParticipant: bigString(s.MaxParticipant),
		Participants:   s.Participants,
		Status:         string(s.Status),
	})
}

func decodeSummary(data []byte) (domain.Summary, error) {
	var c cachedSummary
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Summary{}, err
	}
	q, ok := new(big.Int).SetString(c.Quantity, 10)
	if !ok {
		return domain.Summary{}, fmt.Errorf("bad quantity %q", c.Quantity)
	}
	mp, ok := new(big.Int).SetString(c.MaxParticipant, 10)
	if !ok {
		return domain.Summary{}, fmt.Errorf("bad max participant %q", c.MaxParticipant)
	}
	return domain.Summary{
		Address:        common.HexToAddress(c.Address),
		Owner:          common.HexToAddress(c.Owner),
		Asset:          common.HexToAddress(c.Asset),
		PaymentToken:   common.HexToAddress(c.PaymentToken),
		Quantity:       q,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		MaxParticipant: mp,
		Participants:   c.Participants,
		Status:         domain.SummaryStatus(c.Status),
	}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

var _ domain.SummaryCache = (*SummaryCache)(nil)
