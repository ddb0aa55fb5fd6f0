/*

Tokens are identified by their EVM contract address. The symbol and decimals are only used for display.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrency is the pseudo-address under which native currency balances are tracked.
var NativeCurrency = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

type Token struct {
	Symbol   string         `json:"symbol" yaml:"symbol"`     // e.g., "WETH"
	Address  common.Address `json:"address" yaml:"address"`   // e.g., 0x4200...0006
	Decimals int            `json:"decimals" yaml:"decimals"` // e.g., 18
}

// IsZeroAddress reports whether addr is the zero address.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}
