package oracle

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const aggregatorABIJSON = `[
  {
    "inputs": [],
    "name": "latestRoundData",
    "outputs": [
      {"internalType": "uint80", "name": "roundId", "type": "uint80"},
      {"internalType": "int256", "name": "answer", "type": "int256"},
      {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
      {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
      {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "decimals",
    "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "description",
    "outputs": [{"internalType": "string", "name": "", "type": "string"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	aggregatorABI     abi.ABI
	aggregatorABIOnce sync.Once
	aggregatorABIErr  error
)

// AggregatorABI returns the parsed price feed aggregator ABI.
func AggregatorABI() (abi.ABI, error) {
	aggregatorABIOnce.Do(func() {
		aggregatorABI, aggregatorABIErr = abi.JSON(strings.NewReader(aggregatorABIJSON))
	})
	return aggregatorABI, aggregatorABIErr
}
