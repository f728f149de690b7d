package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// GetAllAuctions returns the factory's auction addresses in creation order.
func (c *Client) GetAllAuctions(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := c.call(ctx, c.cfg.FactoryAddress, factoryABI, "getAllAuctions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAuction deploys a new auction through the factory. The duration is
// sent in whole seconds.
func (c *Client) CreateAuction(ctx context.Context, p domain.CreateAuctionParams) (domain.TxReceipt, error) {
	return c.transact(ctx, c.cfg.FactoryAddress, factoryABI, nil, "createAuction",
		p.Asset,
		p.PaymentToken,
		p.Quantity,
		big.NewInt(int64(p.Duration/time.Second)),
		p.MaxParticipant,
	)
}
