package adapter

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/usdt-market/internal/circuitbreaker"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/types"
)

// ChainAdapterSet maps each configured network to its adapter
type ChainAdapterSet struct {
	adapters map[types.Network]ChainAdapter
	closers  []func()
}

// NewChainAdapterSet builds a set from ready adapters. Later adapters for
// the same network replace earlier ones.
func NewChainAdapterSet(adapters ...ChainAdapter) *ChainAdapterSet {
	s := &ChainAdapterSet{adapters: make(map[types.Network]ChainAdapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Network()] = a
	}
	return s
}

// NewChainAdapterSetFromConfig dials every network that has an RPC endpoint
// configured. Networks without one are skipped and report ErrUnsupportedNetwork.
func NewChainAdapterSetFromConfig(cfg *config.Config, breakers *circuitbreaker.CircuitBreakerManager) (*ChainAdapterSet, error) {
	s := &ChainAdapterSet{adapters: make(map[types.Network]ChainAdapter)}

	for _, network := range types.AllNetworks {
		netCfg, ok := cfg.Networks[network]
		if !ok || netCfg.RPC == "" {
			continue
		}

		var a ChainAdapter
		switch network.Family() {
		case types.FamilyEVM:
			evm, err := NewEVMAdapter(&EVMAdapterConfig{
				Network:       network,
				RPCURLs:       netCfg.RPC,
				ChainID:       netCfg.ChainID,
				PrivateKeyHex: cfg.Signers.EVMPrivateKey,
				CallTimeout:   cfg.Verifier.CallTimeout,
			})
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, evm.Close)
			a = evm
		case types.FamilyTron:
			tron, err := NewTronAdapter(&TronAdapterConfig{
				FullNodeURL:   netCfg.RPC,
				APIKey:        cfg.Tron.APIKey,
				PrivateKeyHex: cfg.Signers.TronPrivateKey,
				FeeLimit:      cfg.Tron.FeeLimit,
				CallTimeout:   cfg.Verifier.CallTimeout,
			})
			if err != nil {
				s.Close()
				return nil, err
			}
			a = tron
		}

		if breakers != nil {
			a = WithCircuitBreaker(a, breakers)
		}
		s.adapters[network] = a
	}

	if len(s.adapters) == 0 {
		return nil, fmt.Errorf("no chain RPC endpoints configured")
	}
	return s, nil
}

// Get returns the adapter for a network
func (s *ChainAdapterSet) Get(network types.Network) (ChainAdapter, error) {
	a, ok := s.adapters[network]
	if !ok {
		return nil, NewAdapterError(network, "Get", ErrUnsupportedNetwork, nil)
	}
	return a, nil
}

// Networks returns the configured networks in display order
func (s *ChainAdapterSet) Networks() []types.Network {
	out := make([]types.Network, 0, len(s.adapters))
	for n := range s.adapters {
		out = append(out, n)
	}
	order := make(map[types.Network]int, len(types.AllNetworks))
	for i, n := range types.AllNetworks {
		order[n] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// Close releases RPC connections held by the adapters
func (s *ChainAdapterSet) Close() {
	for _, c := range s.closers {
		c()
	}
}

// ValidateAddress checks an address against the network's format without
// needing a connected adapter
func ValidateAddress(network types.Network, address string) bool {
	switch network.Family() {
	case types.FamilyTron:
		return isTronAddress(address)
	default:
		return evmAddressPattern.MatchString(address)
	}
}

// CanonicalAddress returns the stored form of a valid address. EVM hex is
// case-insensitive, so it is rewritten in EIP-55 checksum form; Tron
// base58 is case-sensitive and kept as given.
func CanonicalAddress(network types.Network, address string) string {
	if network.Family() == types.FamilyTron {
		return address
	}
	return common.HexToAddress(address).Hex()
}
