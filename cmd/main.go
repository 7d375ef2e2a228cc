package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Lumerin-protocol/miner-dashboard/internal/chain"
	"github.com/Lumerin-protocol/miner-dashboard/internal/config"
	"github.com/Lumerin-protocol/miner-dashboard/internal/dashboard"
	"github.com/Lumerin-protocol/miner-dashboard/internal/facts"
	"github.com/Lumerin-protocol/miner-dashboard/internal/format"
	"github.com/Lumerin-protocol/miner-dashboard/internal/handlers/httphandlers"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/lib"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/Lumerin-protocol/miner-dashboard/internal/peermap"
	"github.com/Lumerin-protocol/miner-dashboard/internal/repositories/devnet"
	"github.com/Lumerin-protocol/miner-dashboard/internal/repositories/ethnode"
	"github.com/Lumerin-protocol/miner-dashboard/internal/repositories/geoip"
	"github.com/Lumerin-protocol/miner-dashboard/internal/repositories/settings"
	"github.com/Lumerin-protocol/miner-dashboard/internal/resources/engine"
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
	"github.com/Lumerin-protocol/miner-dashboard/internal/view"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMultipleInstances = errors.New("another instance is already running")
	ErrConnectNode       = errors.New("cannot connect to node")
)

const (
	nodeCheckTimeout    = 15 * time.Second
	httpShutdownTimeout = 5 * time.Second
	logFileName         = "dashboard.log"
)

// chainNode is implemented by both the devnet and the json-rpc client
type chainNode interface {
	chain.BlockchainClient
	chain.ConsensusClient
	chain.NetworkClient
	chain.AccountService
	interfaces.Runnable
}

func main() {
	err := start()
	if err != nil {
		panic(err)
	}
}

func start() error {
	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		return err
	}

	logFile := ""
	if cfg.Log.FolderPath != "" {
		logFile = filepath.Join(cfg.Log.FolderPath, logFileName)
	}
	newLogger := func(level string) (*lib.Logger, error) {
		return lib.NewLogger(lib.LoggerConfig{
			Level:    level,
			Color:    cfg.Log.Color,
			IsProd:   cfg.Log.IsProd,
			JSON:     cfg.Log.JSON,
			FilePath: logFile,
		})
	}

	appLog, err := newLogger(cfg.Log.LevelApp)
	if err != nil {
		return err
	}
	nodeLog, err := newLogger(cfg.Log.LevelNode)
	if err != nil {
		return err
	}
	httpLog, err := newLogger(cfg.Log.LevelHTTP)
	if err != nil {
		return err
	}
	defer func() {
		_ = appLog.Sync()
		_ = nodeLog.Sync()
		_ = httpLog.Sync()
	}()

	appLog.Infof("miner dashboard %s, environment %s", config.BuildVersion, cfg.Environment)
	appLog.Debugf("config: %+v", cfg.GetSanitized())

	// the listener doubles as the single instance lock
	listener, err := net.Listen("tcp", cfg.Web.Address)
	if err != nil {
		return lib.WrapError(ErrMultipleInstances, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		appLog.Warnf("Received signal: %s", s)
		cancel()

		s = <-shutdownChan
		appLog.Warnf("Received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	clk := clock.New()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	policy := newPolicy(cfg)
	state := view.NewState()

	var (
		node chainNode
		sink engine.BlockSink
	)
	if cfg.Node.Address == "" {
		devnode := devnet.NewNode(devnet.Config{
			BlockInterval: cfg.Devnet.BlockInterval,
			Peers:         cfg.Devnet.Peers,
			SyncBlocks:    uint32(cfg.Devnet.SyncBlocks),
			Difficulty:    devnet.DefaultDifficulty,
		}, policy, clk, rnd, nodeLog.Named("DEVNET"))
		node, sink = devnode, devnode
		appLog.Warn("no node address configured, running the built-in devnet")
	} else {
		client, err := connectNode(ctx, cfg, nodeLog.Named("NODE"))
		if err != nil {
			appLog.Errorf("%s", err)
			state.SetAdvisory(fmt.Sprintf("The node at %s cannot be used: %s", cfg.Node.Address, err))
		} else {
			node = client
		}
	}

	var geo chain.GeoResolver = geoip.Disabled{}
	if cfg.GeoIP.URL != "" {
		geo, err = geoip.NewClient(cfg.GeoIP.URL, cfg.GeoIP.APIKey, cfg.GeoIP.Timeout, appLog.Named("GEOIP"))
		if err != nil {
			return err
		}
	}

	store := settings.NewStore(cfg.Miner.SettingsPath)
	userSettings, err := store.Load(session.Settings{
		PoolEnabled: cfg.Pool.Enabled,
		PoolHost:    cfg.Pool.Host,
		PoolPort:    cfg.Pool.Port,
		Threads:     cfg.Miner.Threads,
	})
	if err != nil {
		appLog.Warnf("%s, using defaults", err)
	}

	var disp *dashboard.Dispatcher
	if node != nil {
		factory := engine.NewFactory(engine.FactoryConfig{
			Address:             cfg.Miner.Address,
			HashesPerDifficulty: chain.DefaultEmissionParams.HashesPerDifficulty,
			DialTimeout:         cfg.Pool.Timeout,
		}, node, sink, clk, appLog.Named("ENGINE"))

		mapCfg := peermap.DefaultConfig()
		mapCfg.CellSize = cfg.Map.CellSize
		mapCfg.KnownMax = cfg.Map.KnownMax
		mapCfg.SampleInterval = cfg.Map.SampleInterval
		mapCfg.Jitter = cfg.Map.Jitter
		mapCfg.LookupTimeout = cfg.UI.LookupTimeout

		disp = dashboard.New(dashboard.Config{
			Facts: facts.Config{
				Address: cfg.Miner.Address,
				Denomination: format.Denomination{
					Symbol:   cfg.Coin.Symbol,
					BaseUnit: cfg.Coin.BaseUnit,
					Decimals: cfg.Coin.Decimals,
				},
				SyncedLabelDelay:  cfg.UI.SyncedLabelDelay,
				TargetHeightDelay: cfg.UI.TargetHeightDelay,
				LookupTimeout:     cfg.UI.LookupTimeout,
			},
			Map:         mapCfg,
			Settings:    userSettings,
			BannerGrace: cfg.UI.BannerGrace,
		}, dashboard.Deps{
			Blockchain: node,
			Consensus:  node,
			Network:    node,
			Accounts:   node,
			Geo:        geo,
			Policy:     policy,
			Engines:    factory,
			Settings:   store,
			Clock:      clk,
			Rand:       rnd,
		}, state, appLog.Named("DASHBOARD"))
	}

	var handlerDashboard httphandlers.Dashboard = haltedDashboard{state: state}
	if disp != nil {
		handlerDashboard = disp
	}
	handl := httphandlers.NewHTTPHandler(handlerDashboard, &cfg, httpLog.Named("HTTP"))
	server := &http.Server{Handler: handl}

	g, ctx := errgroup.WithContext(ctx)
	if node != nil {
		g.Go(func() error {
			return node.Run(ctx)
		})
		g.Go(func() error {
			return disp.Run(ctx)
		})
	}
	g.Go(func() error {
		appLog.Infof("http server is listening: %s", cfg.Web.PublicUrl)
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	appLog.Infof("App exited due to %v", err)
	return err
}

func connectNode(ctx context.Context, cfg config.Config, log interfaces.ILogger) (*ethnode.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, nodeCheckTimeout)
	defer cancel()

	var bootnodes []string
	if cfg.Node.Bootnodes != "" {
		bootnodes = strings.Split(cfg.Node.Bootnodes, ",")
	}
	client, err := ethnode.DialContext(ctx, cfg.Node.Address, cfg.Node.PollingInterval, bootnodes, log)
	if err != nil {
		return nil, lib.WrapError(ErrConnectNode, err)
	}
	err = client.CheckCompatibility(ctx, cfg.Node.ChainID)
	if err != nil {
		return nil, lib.WrapError(ErrConnectNode, err)
	}
	return client, nil
}

func newPolicy(cfg config.Config) chain.Policy {
	if cfg.Chain.Policy == "fixed" {
		return chain.FixedRewardPolicy{
			Reward:              cfg.Chain.FixedReward,
			Interval:            cfg.Chain.BlockTime,
			HashesPerDifficulty: chain.DefaultEmissionParams.HashesPerDifficulty,
		}
	}
	params := chain.DefaultEmissionParams
	params.BlockTime = cfg.Chain.BlockTime
	return chain.NewEmissionPolicy(params)
}

// haltedDashboard serves the advisory when the node is unusable, every command fails
type haltedDashboard struct {
	state *view.State
}

func (d haltedDashboard) Snapshot() view.Snapshot { return d.state.Snapshot() }

func (haltedDashboard) ToggleMining(context.Context) error { return dashboard.ErrNotRunning }

func (haltedDashboard) ResumeMining(context.Context) error { return dashboard.ErrNotRunning }

func (haltedDashboard) SetEngine(context.Context, mining.EngineKind) error {
	return dashboard.ErrNotRunning
}

func (haltedDashboard) Reconnect(context.Context) error { return dashboard.ErrNotRunning }

func (haltedDashboard) SetThreads(context.Context, int) error { return dashboard.ErrNotRunning }
