package service

import (
	"errors"
	"fmt"

	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/config"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/types"
)

// ChainAdapters resolves the adapter serving a network
type ChainAdapters interface {
	Get(network types.Network) (adapter.ChainAdapter, error)
}

// NetworkContracts holds the USDT token and spender contract of a network
type NetworkContracts struct {
	Token   string
	Spender string
}

// Contracts maps each network to its configured contracts
type Contracts map[types.Network]NetworkContracts

// ContractsFromConfig extracts token and spender addresses from cfg
func ContractsFromConfig(cfg *config.Config) Contracts {
	out := make(Contracts, len(cfg.Networks))
	for n, nc := range cfg.Networks {
		out[n] = NetworkContracts{Token: nc.Token, Spender: nc.Spender}
	}
	return out
}

// resolve returns the network's contracts or a configuration error naming
// the missing setting
func (c Contracts) resolve(network types.Network) (NetworkContracts, error) {
	nc := c[network]
	suffix := config.NetworkEnvSuffix(network)
	if nc.Token == "" {
		return nc, apperrors.NewConfigurationMissingError("USDT_" + suffix)
	}
	if nc.Spender == "" {
		return nc, apperrors.NewConfigurationMissingError("SPENDER_" + suffix)
	}
	return nc, nil
}

// adapterFor returns the network's adapter or a configuration error naming
// the missing RPC setting
func adapterFor(adapters ChainAdapters, network types.Network) (adapter.ChainAdapter, error) {
	a, err := adapters.Get(network)
	if err != nil {
		if errors.Is(err, adapter.ErrUnsupportedNetwork) {
			return nil, apperrors.NewConfigurationMissingError(config.NetworkRPCEnv(network))
		}
		return nil, err
	}
	return a, nil
}

// chainError maps adapter sentinels to categorized API errors
func chainError(network types.Network, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, adapter.ErrChainUnavailable):
		return apperrors.NewChainUnavailableError(string(network), err)
	case errors.Is(err, adapter.ErrTransactionRejected):
		return apperrors.NewTransactionRejectedError("Transaction rejected by the network", err)
	case errors.Is(err, adapter.ErrSignerNotConfigured):
		if network.Family() == types.FamilyTron {
			return apperrors.NewConfigurationMissingError("ADMIN_TRON_PRIVATE_KEY")
		}
		return apperrors.NewConfigurationMissingError("ADMIN_EVM_PRIVATE_KEY")
	case errors.Is(err, adapter.ErrInvalidAddress):
		return apperrors.NewValidationError(fmt.Sprintf("invalid %s address", network))
	case errors.Is(err, adapter.ErrUnsupportedNetwork):
		return apperrors.NewConfigurationMissingError(config.NetworkRPCEnv(network))
	default:
		return apperrors.NewInternalError("chain call failed", err)
	}
}
