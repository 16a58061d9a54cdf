package cctp

// Domains, contract addresses, and timing estimates for Circle's CCTP
// V2 protocol, grounded verbatim on
// original_source/.../sardis_chain/cctp_constants.py (mainnet
// addresses; this module doesn't re-derive them, it's Circle's fixed
// deployment).
var (
	Domains = map[string]uint32{
		"ethereum": 0,
		"optimism": 2,
		"arbitrum": 3,
		"base":     6,
		"polygon":  7,
	}

	TokenMessengerAddresses = map[string]string{
		"ethereum": "0xBd3fa81B58Ba92a82136038B25aDec7066af3155",
		"optimism": "0x2B4069517957735bE00ceE0fadAE88a26365528f",
		"arbitrum": "0x19330d10D9Cc8751218eaf51E8885D058642E08A",
		"base":     "0x1682Ae6375C4E4A97e4B583BC394c861A46D8962",
		"polygon":  "0x9daF8c91AEFAE50b9c0E69629D3F6Ca40cA3B3FE",
	}

	MessageTransmitterAddresses = map[string]string{
		"ethereum": "0x0a992d191DEeC32aFe36203Ad87D7d289a738F81",
		"optimism": "0x4D41f22c5a0e5c74090899E5a8Fb597a8842b3e8",
		"arbitrum": "0xC30362313FBBA5cf9163F0bb16a0e01f01A896ca",
		"base":     "0xAD09780d193884d503182aD4F75D8d59B696c4D7",
		"polygon":  "0xF3be9355363857F3e001be68856A2f96b4C39bA9",
	}

	USDCAddresses = map[string]string{
		"ethereum": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"optimism": "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		"arbitrum": "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		"base":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		"polygon":  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
	}

	// EstimatedBridgeTimes is in seconds, dominated by source-chain finality.
	EstimatedBridgeTimes = map[string]int{
		"ethereum": 1200,
		"optimism": 780,
		"arbitrum": 780,
		"base":     780,
		"polygon":  900,
	}
)

const (
	CircleAttestationAPIURL        = "https://iris-api.circle.com/attestations"
	CircleAttestationAPISandboxURL = "https://iris-api-sandbox.circle.com/attestations"

	erc20ApproveSelector   = "095ea7b3"
	depositForBurnSelector = "6fd3504e"
	receiveMessageSelector = "57ecfd28"
)

// DomainFor returns chain's CCTP domain ID.
func DomainFor(chain string) (uint32, bool) {
	domain, ok := Domains[chain]
	return domain, ok
}

// IsSupported reports whether chain participates in CCTP.
func IsSupported(chain string) bool {
	_, ok := Domains[chain]
	return ok
}

// EstimateBridgeSeconds estimates end-to-end bridge latency, dominated
// by whichever side's finality is slower, defaulting to 900s for a
// chain missing from the table (mirrors the Python helper's
// `.get(chain, 900)` fallback).
func EstimateBridgeSeconds(fromChain, toChain string) int {
	from, ok := EstimatedBridgeTimes[fromChain]
	if !ok {
		from = 900
	}
	to, ok := EstimatedBridgeTimes[toChain]
	if !ok {
		to = 900
	}
	if from > to {
		return from
	}
	return to
}
