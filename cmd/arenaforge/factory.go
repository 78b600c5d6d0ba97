package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/arenaforge/arenaforge/internal/adapter/github"
	"github.com/arenaforge/arenaforge/internal/adapter/llm"
	"github.com/arenaforge/arenaforge/internal/adapter/mock"
	afnats "github.com/arenaforge/arenaforge/internal/adapter/nats"
	"github.com/arenaforge/arenaforge/internal/adapter/ragnats"
	"github.com/arenaforge/arenaforge/internal/adapter/ristretto"
	afwallet "github.com/arenaforge/arenaforge/internal/adapter/wallet"
	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/port/contextprovider"
	"github.com/arenaforge/arenaforge/internal/port/solver"
	"github.com/arenaforge/arenaforge/internal/port/sourcecontrol"
	"github.com/arenaforge/arenaforge/internal/port/wallet"
	"github.com/arenaforge/arenaforge/internal/resilience"
	"github.com/arenaforge/arenaforge/internal/service"
)

// mockWalletBalance funds the offline wallet generously enough that no
// sensible payout policy can drain it during a demo session.
var mockWalletBalance = decimal.NewFromInt(10_000)

// buildCollaborators wires the solver roster, the judge completer, the
// wallet and the source-control provider according to each section's mode.
func buildCollaborators(cfg *config.Config) ([]solver.Solver, service.Completer, wallet.Wallet, sourcecontrol.Provider, error) {
	var (
		solvers   []solver.Solver
		completer service.Completer
	)
	switch cfg.LLM.Mode {
	case "mock":
		for _, spec := range cfg.Arena.Roster {
			solvers = append(solvers, mock.NewSolver(spec.ID, spec.Streaming))
		}
		completer = mock.Completer{}
		slog.Info("llm collaborators in mock mode")
	default:
		client := llm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Timeout)
		client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		solvers = llm.NewRoster(cfg.Arena.Roster, client)
		completer = client
	}

	var payer wallet.Wallet
	switch cfg.Wallet.Mode {
	case "mock":
		payer = mock.NewWallet(cfg.Wallet.Network, mockWalletBalance)
		slog.Info("wallet in mock mode", "network", cfg.Wallet.Network)
	default:
		secret, err := afwallet.NewKeystore(cfg.Wallet.KeystorePath).Load(cfg.Wallet.Passphrase)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("wallet keystore: %w", err)
		}
		client := afwallet.NewClient(cfg.Wallet.URL, secret, cfg.Wallet.Network)
		client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		payer = client
	}

	var src sourcecontrol.Provider
	switch cfg.Source.Mode {
	case "mock":
		src = mock.NewSource()
		slog.Info("source control in mock mode")
	default:
		src = github.NewProvider(cfg.Source.APIURL, cfg.Source.Token)
	}

	return solvers, completer, payer, src, nil
}

// buildRetrieval wires the code-context provider. In "off" mode the runner
// receives a nil provider and skips retrieval entirely.
func buildRetrieval(ctx context.Context, cfg *config.Config) (contextprovider.Provider, func(), error) {
	noop := func() {}

	switch cfg.Retrieval.Mode {
	case "off":
		return nil, noop, nil
	case "mock":
		slog.Info("retrieval in mock mode")
		return mock.NewRetriever(), noop, nil
	}

	queue, err := afnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return nil, noop, fmt.Errorf("nats: %w", err)
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		_ = queue.Close()
		return nil, noop, fmt.Errorf("cache: %w", err)
	}

	provider, err := ragnats.New(ctx, queue, cache, cfg.Retrieval)
	if err != nil {
		cache.Close()
		_ = queue.Close()
		return nil, noop, fmt.Errorf("rag provider: %w", err)
	}

	cleanup := func() {
		provider.Close()
		cache.Close()
		if err := queue.Close(); err != nil {
			slog.Warn("nats close", "error", err)
		}
	}
	slog.Info("retrieval connected", "nats_url", cfg.NATS.URL)
	return provider, cleanup, nil
}
