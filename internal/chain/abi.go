package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// auctionABIJSON is the subset of the sealed-bid auction contract the
// orchestrators call.
const auctionABIJSON = `[
 {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"asset","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"paymentToken","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"quantity","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"startTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"endTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"maxParticipant","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"isActive","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"settlementPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"lockedFunds","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getAllBids","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[
   {"name":"bidder","type":"address"},{"name":"encryptedQuantity","type":"bytes32"},{"name":"encryptedPrice","type":"bytes32"}]}]},
 {"type":"function","name":"getAllDecryptedBids","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[
   {"name":"bidder","type":"address"},{"name":"quantity","type":"uint256"},{"name":"price","type":"uint256"}]}]},
 {"type":"function","name":"lockFunds","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"placeEncryptedBid","stateMutability":"nonpayable","inputs":[
   {"name":"_encryptedQuantity","type":"bytes32"},{"name":"_encryptedPrice","type":"bytes32"},{"name":"_inputProof","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"settleAuction","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

const factoryABIJSON = `[
 {"type":"function","name":"createAuction","stateMutability":"nonpayable","inputs":[
   {"name":"_asset","type":"address"},{"name":"_paymentToken","type":"address"},{"name":"_quantity","type":"uint256"},
   {"name":"_duration","type":"uint256"},{"name":"_maxParticipant","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getAllAuctions","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]}
]`

const erc20ABIJSON = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	auctionABI = mustParseABI(auctionABIJSON)
	factoryABI = mustParseABI(factoryABIJSON)
	erc20ABI   = mustParseABI(erc20ABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
