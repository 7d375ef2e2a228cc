package config

import (
	"strings"
	"time"
)

// BuildVersion is set at build time with -ldflags "-X .../internal/config.BuildVersion=..."
var BuildVersion = "0.0.0-dev"

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Environment string `env:"ENVIRONMENT" flag:"environment"`
	Node        struct {
		Address         string        `env:"NODE_ADDRESS"          flag:"node-address"          validate:"omitempty,url"      desc:"json-rpc node address, runs the built-in devnet if empty"`
		ChainID         uint64        `env:"NODE_CHAIN_ID"         flag:"node-chain-id"                                       desc:"expected chain id, startup halts on mismatch"`
		PollingInterval time.Duration `env:"NODE_POLLING_INTERVAL" flag:"node-polling-interval" validate:"omitempty,duration" desc:"interval between head and peer polls"`
		Bootnodes       string        `env:"NODE_BOOTNODES"        flag:"node-bootnodes"                                      desc:"comma separated enode urls used as known addresses"`
	}
	Devnet struct {
		BlockInterval time.Duration `env:"DEVNET_BLOCK_INTERVAL" flag:"devnet-block-interval" validate:"omitempty,duration"`
		Peers         int           `env:"DEVNET_PEERS"          flag:"devnet-peers"          validate:"omitempty,number,gte=0"`
		SyncBlocks    int           `env:"DEVNET_SYNC_BLOCKS"    flag:"devnet-sync-blocks"                                     desc:"blocks to fetch before consensus is established"`
	}
	Chain struct {
		Policy      string        `env:"CHAIN_POLICY"       flag:"chain-policy"       validate:"omitempty,oneof=emission fixed" desc:"block reward schedule"`
		BlockTime   time.Duration `env:"CHAIN_BLOCK_TIME"   flag:"chain-block-time"   validate:"omitempty,duration"`
		FixedReward uint64        `env:"CHAIN_FIXED_REWARD" flag:"chain-fixed-reward"                                      desc:"reward in base units, applies to the fixed policy"`
	}
	Coin struct {
		Symbol   string `env:"COIN_SYMBOL"    flag:"coin-symbol"`
		BaseUnit string `env:"COIN_BASE_UNIT" flag:"coin-base-unit"`
		Decimals int    `env:"COIN_DECIMALS"  flag:"coin-decimals"  validate:"omitempty,gte=0,lte=18"`
	}
	Miner struct {
		Address      string `env:"MINER_ADDRESS"       flag:"miner-address"                                  desc:"reward address, its balance is displayed"`
		Threads      int    `env:"MINER_THREADS"       flag:"miner-threads"       validate:"omitempty,gte=1"`
		SettingsPath string `env:"MINER_SETTINGS_PATH" flag:"miner-settings-path"                            desc:"file that keeps the user mining settings between restarts"`
	}
	Pool struct {
		Enabled bool          `env:"POOL_ENABLED" flag:"pool-enabled"                                 desc:"default engine when no settings are saved"`
		Host    string        `env:"POOL_HOST"    flag:"pool-host"    validate:"omitempty,hostname|ip"`
		Port    int           `env:"POOL_PORT"    flag:"pool-port"    validate:"omitempty,gte=1,lte=65535"`
		Timeout time.Duration `env:"POOL_TIMEOUT" flag:"pool-timeout" validate:"omitempty,duration"   desc:"dial timeout"`
	}
	Map struct {
		CellSize       float64       `env:"MAP_CELL_SIZE"       flag:"map-cell-size"       validate:"omitempty,gt=0"     desc:"cell size in degrees"`
		KnownMax       int           `env:"MAP_KNOWN_MAX"       flag:"map-known-max"       validate:"omitempty,gte=1"    desc:"max highlighted known peers"`
		SampleInterval time.Duration `env:"MAP_SAMPLE_INTERVAL" flag:"map-sample-interval" validate:"omitempty,duration"`
		Jitter         float64       `env:"MAP_JITTER"          flag:"map-jitter"          validate:"omitempty,gte=0"    desc:"max random cell offset in degrees"`
	}
	UI struct {
		BannerGrace       time.Duration `env:"UI_BANNER_GRACE"        flag:"ui-banner-grace"        validate:"omitempty,duration" desc:"a warning banner stays visible at least this long after its condition clears"`
		SyncedLabelDelay  time.Duration `env:"UI_SYNCED_LABEL_DELAY"  flag:"ui-synced-label-delay"  validate:"omitempty,duration"`
		TargetHeightDelay time.Duration `env:"UI_TARGET_HEIGHT_DELAY" flag:"ui-target-height-delay" validate:"omitempty,duration"`
		LookupTimeout     time.Duration `env:"UI_LOOKUP_TIMEOUT"      flag:"ui-lookup-timeout"      validate:"omitempty,duration" desc:"timeout of balance and location lookups"`
	}
	GeoIP struct {
		URL     string        `env:"GEOIP_URL"     flag:"geoip-url"     validate:"omitempty,url" desc:"geoip service base url, the map is disabled if empty"`
		APIKey  string        `env:"GEOIP_API_KEY" flag:"geoip-api-key"`
		Timeout time.Duration `env:"GEOIP_TIMEOUT" flag:"geoip-timeout" validate:"omitempty,duration"`
	}
	Log struct {
		Color      bool   `env:"LOG_COLOR"       flag:"log-color"`
		FolderPath string `env:"LOG_FOLDER_PATH" flag:"log-folder-path" validate:"omitempty,dirpath" desc:"enables file logging and sets the folder path"`
		IsProd     bool   `env:"LOG_IS_PROD"     flag:"log-is-prod"     validate:""                  desc:"affects the format of the log output"`
		JSON       bool   `env:"LOG_JSON"        flag:"log-json"`
		LevelApp   string `env:"LOG_LEVEL_APP"   flag:"log-level-app"   validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelNode  string `env:"LOG_LEVEL_NODE"  flag:"log-level-node"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelHTTP  string `env:"LOG_LEVEL_HTTP"  flag:"log-level-http"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
	Web struct {
		Address   string `env:"WEB_ADDRESS"    flag:"web-address"    validate:"required,hostname_port" desc:"http server address host:port"`
		PublicUrl string `env:"WEB_PUBLIC_URL" flag:"web-public-url" validate:"omitempty,url"          desc:"public url of the dashboard, falls back to web-address if empty"`
	}
}

func (cfg *Config) SetDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Node

	if cfg.Node.PollingInterval == 0 {
		cfg.Node.PollingInterval = 5 * time.Second
	}

	// Devnet

	if cfg.Devnet.BlockInterval == 0 {
		cfg.Devnet.BlockInterval = 10 * time.Second
	}
	if cfg.Devnet.Peers == 0 {
		cfg.Devnet.Peers = 8
	}
	if cfg.Devnet.SyncBlocks == 0 {
		cfg.Devnet.SyncBlocks = 30
	}

	// Chain

	if cfg.Chain.Policy == "" {
		cfg.Chain.Policy = "emission"
	}
	if cfg.Chain.BlockTime == 0 {
		cfg.Chain.BlockTime = time.Minute
	}

	// Coin

	if cfg.Coin.Symbol == "" {
		cfg.Coin.Symbol = "NIM"
	}
	if cfg.Coin.BaseUnit == "" {
		cfg.Coin.BaseUnit = "Luna"
	}
	if cfg.Coin.Decimals == 0 {
		cfg.Coin.Decimals = 5
	}

	// Miner

	if cfg.Miner.Threads == 0 {
		cfg.Miner.Threads = 1
	}
	if cfg.Miner.SettingsPath == "" {
		cfg.Miner.SettingsPath = "miner-settings.yaml"
	}

	// Pool

	if cfg.Pool.Timeout == 0 {
		cfg.Pool.Timeout = 10 * time.Second
	}

	// Map

	if cfg.Map.CellSize == 0 {
		cfg.Map.CellSize = 2
	}
	if cfg.Map.KnownMax == 0 {
		cfg.Map.KnownMax = 20
	}
	if cfg.Map.SampleInterval == 0 {
		cfg.Map.SampleInterval = time.Second
	}
	if cfg.Map.Jitter == 0 {
		cfg.Map.Jitter = 0.5
	}

	// UI

	if cfg.UI.BannerGrace == 0 {
		cfg.UI.BannerGrace = time.Second
	}
	if cfg.UI.SyncedLabelDelay == 0 {
		cfg.UI.SyncedLabelDelay = 1500 * time.Millisecond
	}
	if cfg.UI.TargetHeightDelay == 0 {
		cfg.UI.TargetHeightDelay = 150 * time.Millisecond
	}
	if cfg.UI.LookupTimeout == 0 {
		cfg.UI.LookupTimeout = 10 * time.Second
	}

	// GeoIP

	if cfg.GeoIP.Timeout == 0 {
		cfg.GeoIP.Timeout = 5 * time.Second
	}
	cfg.GeoIP.URL = strings.TrimSuffix(cfg.GeoIP.URL, "/")

	// Log

	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "debug"
	}
	if cfg.Log.LevelNode == "" {
		cfg.Log.LevelNode = "info"
	}
	if cfg.Log.LevelHTTP == "" {
		cfg.Log.LevelHTTP = "info"
	}

	// Web

	if cfg.Web.Address == "" {
		cfg.Web.Address = "127.0.0.1:8080"
	}
	if cfg.Web.PublicUrl == "" {
		cfg.Web.PublicUrl = "http://" + cfg.Web.Address
	}
}

// GetSanitized returns a copy of the config with sensitive data removed
// explicitly adding each field here to avoid accidentally leaking sensitive data
func (cfg *Config) GetSanitized() interface{} {
	publicCfg := Config{}

	publicCfg.Environment = cfg.Environment

	publicCfg.Node.ChainID = cfg.Node.ChainID
	publicCfg.Node.PollingInterval = cfg.Node.PollingInterval

	publicCfg.Devnet = cfg.Devnet
	publicCfg.Chain = cfg.Chain
	publicCfg.Coin = cfg.Coin

	publicCfg.Miner.Address = cfg.Miner.Address
	publicCfg.Miner.Threads = cfg.Miner.Threads

	publicCfg.Pool.Enabled = cfg.Pool.Enabled
	publicCfg.Pool.Host = cfg.Pool.Host
	publicCfg.Pool.Port = cfg.Pool.Port
	publicCfg.Pool.Timeout = cfg.Pool.Timeout

	publicCfg.Map = cfg.Map
	publicCfg.UI = cfg.UI

	publicCfg.GeoIP.Timeout = cfg.GeoIP.Timeout

	publicCfg.Log.Color = cfg.Log.Color
	publicCfg.Log.IsProd = cfg.Log.IsProd
	publicCfg.Log.JSON = cfg.Log.JSON
	publicCfg.Log.LevelApp = cfg.Log.LevelApp
	publicCfg.Log.LevelNode = cfg.Log.LevelNode
	publicCfg.Log.LevelHTTP = cfg.Log.LevelHTTP

	publicCfg.Web.Address = cfg.Web.Address
	publicCfg.Web.PublicUrl = cfg.Web.PublicUrl

	return publicCfg
}
