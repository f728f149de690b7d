package service

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// OrchestratorFactory builds the orchestrator of a new session.
type OrchestratorFactory func(auction, caller common.Address, kp domain.Keypair) *Orchestrator

// Session binds one viewer to one auction with its own re-encryption
// keypair.
type Session struct {
	ID           string
	Auction      common.Address
	Caller       common.Address
	Orchestrator *Orchestrator
	CreatedAt    time.Time
}

// Sessions is a bounded store of viewing sessions; the least recently used
// session is evicted, and its keypair with it. Keypairs are never reused
// across auctions.
type Sessions struct {
	cache   *lru.Cache
	keys    KeypairGenerator
	factory OrchestratorFactory
}

// KeypairGenerator produces ephemeral re-encryption keypairs.
type KeypairGenerator interface {
	GenerateKeypair() (domain.Keypair, error)
}

// NewSessions creates a store holding at most size sessions.
func NewSessions(size int, keys KeypairGenerator, factory OrchestratorFactory) (*Sessions, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	return &Sessions{cache: c, keys: keys, factory: factory}, nil
}

// Open starts a session for caller on auction with a fresh keypair.
func (s *Sessions) Open(auction, caller common.Address) (*Session, error) {
	sess, err := s.newSession(uuid.New().String(), auction, caller)
	if err != nil {
		return nil, err
	}
	s.cache.Add(sess.ID, sess)
	return sess, nil
}

// Switch points session id at auction. Switching to another auction
// replaces the orchestrator and generates a new keypair; switching to the
// same auction is a no-op.
func (s *Sessions) Switch(id string, auction common.Address) (*Session, error) {
	cur, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if cur.Auction == auction {
		return cur, nil
	}
	next, err := s.newSession(id, auction, cur.Caller)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, next)
	return next, nil
}

// Get returns session id or domain.ErrNotFound.
func (s *Sessions) Get(id string) (*Session, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return v.(*Session), nil
}

// Close ends session id. Closing an unknown session is not an error.
func (s *Sessions) Close(id string) {
	s.cache.Remove(id)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}

func (s *Sessions) newSession(id string, auction, caller common.Address) (*Session, error) {
	kp, err := s.keys.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	return &Session{
		ID:           id,
		Auction:      auction,
		Caller:       caller,
		Orchestrator: s.factory(auction, caller, kp),
		CreatedAt:    time.Now().UTC(),
	}, nil
}
