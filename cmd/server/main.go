package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/padraorezende/developer-collection-nft-drop/internal/claim"
	"github.com/padraorezende/developer-collection-nft-drop/internal/config"
	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"
	"github.com/padraorezende/developer-collection-nft-drop/internal/identity"
	"github.com/padraorezende/developer-collection-nft-drop/internal/journal"
	"github.com/padraorezende/developer-collection-nft-drop/internal/ledger"
	"github.com/padraorezende/developer-collection-nft-drop/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Developer Collection NFT drop claim service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the claim controller behind the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("logger error: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read the drop once and print the supply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("logger error: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return status(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, closeGateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	provider, err := newIdentity(cfg)
	if err != nil {
		return err
	}

	entries, closeJournal, err := newJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	store := drop.NewStore()
	registry := prometheus.NewRegistry()
	ctrl, err := claim.New(claim.Options{
		Gateway:      gateway,
		Identity:     provider,
		Store:        store,
		Journal:      entries,
		Metrics:      claim.NewMetrics(registry),
		Logger:       logger.Named("claim"),
		ReadTimeout:  cfg.Chain.ReadTimeout,
		ClaimTimeout: cfg.Chain.ClaimTimeout,
	})
	if err != nil {
		return fmt.Errorf("controller error: %w", err)
	}

	apiServer := server.NewServer(cfg, server.Deps{
		Controller: ctrl,
		Notices:    store,
		Journal:    entries,
		Gateway:    gateway,
		Registry:   registry,
		Logger:     logger.Named("http"),
	})

	go func() {
		if err := ctrl.Run(ctx); err != nil {
			logger.Error("controller stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Info("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}

func status(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	gateway, closeGateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	store := drop.NewStore()
	ready := make(chan drop.State, 1)
	if _, err := store.Subscribe(func(st drop.State) {
		if st.Phase == drop.PhaseReady {
			select {
			case ready <- st:
			default:
			}
		}
	}); err != nil {
		return err
	}

	ctrl, err := claim.New(claim.Options{
		Gateway:     gateway,
		Identity:    identity.NewStaticProvider(""),
		Store:       store,
		Logger:      logger.Named("claim"),
		ReadTimeout: cfg.Chain.ReadTimeout,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Chain.ReadTimeout+time.Second)
	defer cancel()
	go func() { _ = ctrl.Run(runCtx) }()

	select {
	case st := <-ready:
		if st.Snapshot == nil {
			return fmt.Errorf("drop unavailable: %s", st.LastError)
		}
		fmt.Printf("%d / %d NFT's claimed\n", st.Snapshot.Claimed, st.Snapshot.Total)
		if st.Snapshot.Price != nil {
			fmt.Printf("price: %s %s\n", st.Snapshot.Price.Display, st.Snapshot.Price.CurrencySymbol)
		}
		if st.Snapshot.SoldOut() {
			fmt.Println("SOLD OUT")
		}
		return nil
	case <-runCtx.Done():
		return fmt.Errorf("drop refresh timed out: %w", runCtx.Err())
	}
}

func newGateway(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (ledger.Gateway, func(), error) {
	if !cfg.Chain.Live() {
		price, ok := new(big.Int).SetString(orDefault(cfg.File.Dev.PriceWei, "0"), 10)
		if !ok {
			return nil, nil, fmt.Errorf("invalid dev price %q", cfg.File.Dev.PriceWei)
		}
		logger.Warn("no rpc endpoint configured, using in-memory drop",
			zap.Uint64("claimed", cfg.File.Dev.Claimed),
			zap.Uint64("total", cfg.File.Dev.TotalSupply))
		return ledger.NewFakeGateway(cfg.File.Dev.Claimed, cfg.File.Dev.TotalSupply, price, cfg.Chain.NativeSymbol), func() {}, nil
	}

	gw, err := ledger.NewEthGateway(ctx, ledger.EthGatewayConfig{
		RPCURL:          cfg.Chain.RPCURL,
		PrivateKeyHex:   cfg.Chain.PrivateKey,
		ContractAddress: cfg.Chain.ContractAddress,
		NativeSymbol:    cfg.Chain.NativeSymbol,
		ReceiptPoll:     cfg.Chain.ReceiptPoll,
	}, logger.Named("ledger"))
	if err != nil {
		return nil, nil, fmt.Errorf("ledger gateway error: %w", err)
	}
	return gw, gw.Close, nil
}

func newIdentity(cfg *config.AppConfig) (identity.Provider, error) {
	if cfg.Chain.PrivateKey == "" {
		return identity.NewStaticProvider(cfg.File.Dev.Account), nil
	}
	key, err := ledger.ParsePrivateKey(cfg.Chain.PrivateKey)
	if err != nil {
		return nil, err
	}
	return identity.NewKeyProvider(key)
}

func newJournal(ctx context.Context, cfg *config.AppConfig) (journal.Store, func(), error) {
	if cfg.Journal.PostgresDSN != "" {
		pg, err := journal.NewPostgresStore(ctx, cfg.Journal.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("journal store error: %w", err)
		}
		return pg, pg.Close, nil
	}
	fs, err := journal.NewFileStore(cfg.Journal.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("journal store error: %w", err)
	}
	return fs, func() {}, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
