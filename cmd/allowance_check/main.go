// Command allowance_check reads the live USDT allowance one owner granted the
// configured spender, and optionally compares it with the last recorded
// snapshot for a wallet.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/circuitbreaker"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/service"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/types"
)

func main() {
	networkFlag := flag.String("network", "ERC-20", "Network to check (ERC-20, BEP-20, TRC-20)")
	ownerFlag := flag.String("address", "", "Owner address to check")
	walletFlag := flag.Int64("wallet", 0, "Wallet id to compare against recorded history (optional)")
	timeoutFlag := flag.Duration("timeout", 15*time.Second, "Timeout for the chain read")
	flag.Parse()

	network, err := types.ParseNetwork(*networkFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if *ownerFlag == "" {
		fmt.Println("Error: -address is required")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if !adapter.ValidateAddress(network, *ownerFlag) {
		fmt.Printf("Error: %s is not a valid %s address\n", *ownerFlag, network)
		os.Exit(1)
	}

	adapters, err := adapter.NewChainAdapterSetFromConfig(cfg, circuitbreaker.NewCircuitBreakerManager())
	if err != nil {
		fmt.Printf("Error connecting to chains: %v\n", err)
		os.Exit(1)
	}
	defer adapters.Close()

	contracts := service.ContractsFromConfig(cfg)
	verifier := service.NewAllowanceVerifier(adapters, contracts, 1)

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	decimals, raw, err := verifier.ReadAllowance(ctx, network, *ownerFlag)
	cancel()
	if err != nil {
		fmt.Printf("Error reading allowance: %v\n", err)
		os.Exit(1)
	}

	approved := adapter.ToDecimal(raw, decimals)
	fmt.Printf("Network:   %s\n", network)
	fmt.Printf("Owner:     %s\n", *ownerFlag)
	fmt.Printf("Decimals:  %d\n", decimals)
	fmt.Printf("Raw:       %s\n", raw.String())
	fmt.Printf("Approved:  %s USDT\n", adapter.FormatAmount(approved))

	if *walletFlag <= 0 {
		return
	}

	if !cfg.Database.ClickHouse.Enabled {
		fmt.Println("\nClickHouse disabled: no recorded history to compare")
		return
	}

	compareWithHistory(cfg, *walletFlag, raw)
}

func compareWithHistory(cfg *config.Config, walletID int64, live *big.Int) {
	ctx := context.Background()

	db, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
	if err != nil {
		fmt.Printf("Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	entries, err := storage.NewAllowanceHistoryRepository(db).ListByWallet(ctx, walletID, time.Time{}, 1)
	if err != nil {
		fmt.Printf("Error reading history: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Printf("\nNo recorded snapshots for wallet %d\n", walletID)
		return
	}

	last := entries[0]
	recorded, ok := new(big.Int).SetString(last.RawAllowance, 10)
	if !ok {
		recorded = big.NewInt(0)
	}

	diff := new(big.Int).Sub(live, recorded)
	fmt.Printf("\n=== Last snapshot (%s) ===\n", last.CheckedAt.Format(time.RFC3339))
	fmt.Printf("Status:    %s\n", last.Status)
	fmt.Printf("Recorded:  %s\n", last.RawAllowance)
	if diff.Sign() == 0 {
		fmt.Println("Result:    ✅ MATCH")
	} else {
		fmt.Printf("Result:    ❌ CHANGED (Diff: %s)\n", diff.String())
	}
}
