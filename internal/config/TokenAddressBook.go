/*

Known token contracts on Base. Fund files may refer to a token by symbol only when it is listed here.

If a token is missing, give its address explicitly in the fund file.

*/

package config

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

var (
	TokenAddressBook = map[string]types.Token{
		"WETH":    {Symbol: "WETH", Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Decimals: 18},
		"USDC":    {Symbol: "USDC", Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6},
		"cbBTC":   {Symbol: "cbBTC", Address: common.HexToAddress("0xcbB7C0000aB88B473b1f5aFd9ef808440eed33Bf"), Decimals: 8},
		"VIRTUAL": {Symbol: "VIRTUAL", Address: common.HexToAddress("0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b"), Decimals: 18},
		"AERO":    {Symbol: "AERO", Address: common.HexToAddress("0x940181a94A35A4569E4529A3CDfB74e38FD98631"), Decimals: 18},
		"DEGEN":   {Symbol: "DEGEN", Address: common.HexToAddress("0x4ed4E862860beD51a9570b96d89aF5E1B0Efefed"), Decimals: 18},
		"BRETT":   {Symbol: "BRETT", Address: common.HexToAddress("0x532f27101965dd16442E59d40670FaF5eBB142E4"), Decimals: 18},
	}
)

// LookupToken resolves a token by symbol from the address book.
func LookupToken(symbol string) (types.Token, bool) {
	t, ok := TokenAddressBook[symbol]
	return t, ok
}
