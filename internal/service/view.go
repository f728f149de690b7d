package service

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// JSON views handed to the presentation layer. Addresses are lowercase hex;
// amounts carry both the raw on-chain integer and its 18-decimal rendering.

// Amount is an on-chain integer with its human rendering.
type Amount struct {
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

func newAmount(v *big.Int) *Amount {
	if v == nil {
		return nil
	}
	return &Amount{Raw: v.String(), Display: domain.FormatUnits(v)}
}

type BidView struct {
	Bidder            string  `json:"bidder"`
	EncryptedQuantity string  `json:"encrypted_quantity,omitempty"`
	EncryptedPrice    string  `json:"encrypted_price,omitempty"`
	Quantity          *Amount `json:"quantity,omitempty"`
	Price             *Amount `json:"price,omitempty"`
	Decrypted         bool    `json:"decrypted"`
}

func newBidView(b domain.Bid) BidView {
	v := BidView{
		Bidder:    domain.AddressString(b.Bidder),
		Quantity:  newAmount(b.Quantity),
		Price:     newAmount(b.Price),
		Decrypted: b.Decrypted(),
	}
	if b.EncryptedQuantity != (domain.Handle{}) {
		v.EncryptedQuantity = b.EncryptedQuantity.Hex()
	}
	if b.EncryptedPrice != (domain.Handle{}) {
		v.EncryptedPrice = b.EncryptedPrice.Hex()
	}
	return v
}

type AuctionView struct {
	Address         string    `json:"address"`
	Owner           string    `json:"owner"`
	Asset           string    `json:"asset"`
	PaymentToken    string    `json:"payment_token"`
	NativePayment   bool      `json:"native_payment"`
	Quantity        *Amount   `json:"quantity"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Active          bool      `json:"active"`
	SettlementPrice *Amount   `json:"settlement_price"`
}

type SnapshotView struct {
	Auction        AuctionView `json:"auction"`
	Phase          string      `json:"phase"`
	Caller         string      `json:"caller"`
	IsOwner        bool        `json:"is_owner"`
	LockedAmount   *Amount     `json:"locked_amount,omitempty"`
	AssetBalance   *Amount     `json:"asset_balance"`
	PaymentBalance *Amount     `json:"payment_balance"`
	Bids           []BidView   `json:"bids"`
	MyBid          *BidView    `json:"my_bid,omitempty"`
	MyDecryptedBid *BidView    `json:"my_decrypted_bid,omitempty"`
	LoadedAt       time.Time   `json:"loaded_at"`
}

// NewSnapshotView renders s for the presentation layer.
func NewSnapshotView(s *domain.Snapshot) SnapshotView {
	a := s.Auction
	v := SnapshotView{
		Auction: AuctionView{
			Address:         domain.AddressString(a.Address),
			Owner:           domain.AddressString(a.Owner),
			Asset:           domain.AddressString(a.Asset),
			PaymentToken:    domain.AddressString(a.PaymentToken),
			NativePayment:   domain.IsNative(a.PaymentToken),
			Quantity:        newAmount(a.Quantity),
			StartTime:       a.StartTime,
			EndTime:         a.EndTime,
			Active:          a.Active,
			SettlementPrice: newAmount(a.SettlementPrice),
		},
		Phase:          string(s.Phase),
		Caller:         domain.AddressString(s.Caller),
		IsOwner:        s.IsOwner,
		LockedAmount:   newAmount(s.LockedAmount),
		AssetBalance:   newAmount(s.AssetBalance),
		PaymentBalance: newAmount(s.PaymentBalance),
		Bids:           make([]BidView, len(s.Bids)),
		LoadedAt:       s.LoadedAt,
	}
	for i, b := range s.Bids {
		v.Bids[i] = newBidView(b)
	}
	if s.MyBid != nil {
		mb := newBidView(*s.MyBid)
		v.MyBid = &mb
	}
	if s.MyDecryptedBid != nil {
		mdb := newBidView(domain.FromDecrypted(*s.MyDecryptedBid))
		v.MyDecryptedBid = &mdb
	}
	return v
}

// NewEncryptedBidViews renders the raw getAllBids() rows.
func NewEncryptedBidViews(bids []domain.EncryptedBid) []BidView {
	out := make([]BidView, len(bids))
	for i, b := range bids {
		out[i] = newBidView(domain.FromEncrypted(b))
	}
	return out
}

// NewDecryptedBidViews renders the raw getAllDecryptedBids() rows.
func NewDecryptedBidViews(bids []domain.DecryptedBid) []BidView {
	out := make([]BidView, len(bids))
	for i, b := range bids {
		out[i] = newBidView(domain.FromDecrypted(b))
	}
	return out
}

type SummaryView struct {
	Address        string    `json:"address"`
	Owner          string    `json:"owner,omitempty"`
	Asset          string    `json:"asset,omitempty"`
	PaymentToken   string    `json:"payment_token,omitempty"`
	Quantity       *Amount   `json:"quantity,omitempty"`
	StartTime      time.Time `json:"start_time,omitempty"`
	EndTime        time.Time `json:"end_time,omitempty"`
	MaxParticipant string    `json:"max_participant,omitempty"`
	Participants   int       `json:"participants"`
	Status         string    `json:"status,omitempty"`
	IsOwner        bool      `json:"is_owner"`
	Error          string    `json:"error,omitempty"`
}

// NewSummaryViews renders listing results; failed items keep their address
// and carry the error message.
func NewSummaryViews(results []domain.SummaryResult) []SummaryView {
	out := make([]SummaryView, len(results))
	for i, r := range results {
		v := SummaryView{Address: domain.AddressString(r.Address)}
		if r.Err != nil {
			v.Error = r.Err.Error()
		} else if s := r.Summary; s != nil {
			v.Owner = domain.AddressString(s.Owner)
			v.Asset = domain.AddressString(s.Asset)
			v.PaymentToken = domain.AddressString(s.PaymentToken)
			v.Quantity = newAmount(s.Quantity)
			v.StartTime = s.StartTime
			v.EndTime = s.EndTime
			if s.MaxParticipant != nil {
				v.MaxParticipant = s.MaxParticipant.String()
			}
			v.Participants = s.Participants
			v.Status = string(s.Status)
			v.IsOwner = s.IsOwner
		}
		out[i] = v
	}
	return out
}
