package broker

import "tradefan/internal/types"

// PaperFactory builds the simulated venue. One shared instance serves
// every credential so SetPrice in tests affects all users.
func PaperFactory(basePrice float64) Factory {
	gw := NewPaper("paper", basePrice)
	return func(types.Credential) (Gateway, error) {
		return gw, nil
	}
}

// BinanceFactory builds per-credential Binance gateways.
func BinanceFactory(cfg BinanceConfig) Factory {
	return func(cred types.Credential) (Gateway, error) {
		return NewBinance(cfg, cred.APIKey, cred.APISecret)
	}
}
