package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/celer-network/aave-gas-station/utils"
)

const envPrefix = "GASSTATION"

// Network holds the chain parameters. Wei amounts are kept as decimal strings
// in the file and parsed by Validate.
type Network struct {
	RPCURL                       string `mapstructure:"rpc_url" yaml:"rpc_url"`
	ChainID                      int64  `mapstructure:"chain_id" yaml:"chain_id"`
	DefaultGasUnits              uint64 `mapstructure:"default_gas_units" yaml:"default_gas_units"`
	GasPrice                     string `mapstructure:"gas_price" yaml:"gas_price"`
	MinerTipPrice                string `mapstructure:"miner_tip_price" yaml:"miner_tip_price"`
	LendingPoolAddressesProvider string `mapstructure:"lending_pool_addresses_provider" yaml:"lending_pool_addresses_provider"`
	LendingPool                  string `mapstructure:"lending_pool" yaml:"lending_pool"`
	ProtocolDataProvider         string `mapstructure:"protocol_data_provider_address" yaml:"protocol_data_provider_address"`

	gasPrice      *big.Int
	minerTipPrice *big.Int
}

func (n *Network) GasPriceWei() *big.Int      { return new(big.Int).Set(n.gasPrice) }
func (n *Network) MinerTipPriceWei() *big.Int { return new(big.Int).Set(n.minerTipPrice) }
func (n *Network) ChainIDBig() *big.Int       { return big.NewInt(n.ChainID) }

// GasStation describes the custodial funding account. SK or Keystore must be
// set; SK wins when both are, so an environment key overrides a keystore in
// the file.
type GasStation struct {
	Address          string `mapstructure:"address" yaml:"address"`
	SK               string `mapstructure:"sk" yaml:"sk"`
	Keystore         string `mapstructure:"keystore" yaml:"keystore"`
	KeystorePassword string `mapstructure:"keystore_password" yaml:"keystore_password"`
	GasAllowance     string `mapstructure:"gas_allowance" yaml:"gas_allowance"`

	gasAllowance *big.Int
}

func (g *GasStation) GasAllowanceWei() *big.Int { return new(big.Int).Set(g.gasAllowance) }

// PrivateKey loads the funding key from whichever source is configured.
func (g *GasStation) PrivateKey() (*ecdsa.PrivateKey, error) {
	if g.SK != "" {
		return utils.GetPrivateKeyFromHex(g.SK)
	}
	return utils.GetPrivateKeyFromKeystore(g.Keystore, g.KeystorePassword)
}

type Aave struct {
	DepositToken string `mapstructure:"deposit_token" yaml:"deposit_token"`
	ATokenPrefix string `mapstructure:"atoken_prefix" yaml:"atoken_prefix"`
}

type Relay struct {
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPollInterval  time.Duration `mapstructure:"max_poll_interval" yaml:"max_poll_interval"`
	BroadcastRetries int           `mapstructure:"broadcast_retries" yaml:"broadcast_retries"`
	RevertIsFailure  bool          `mapstructure:"revert_is_failure" yaml:"revert_is_failure"`
}

type DB struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type Server struct {
	Port int `mapstructure:"port" yaml:"port"`
}

type Config struct {
	Networks   Network           `mapstructure:"networks" yaml:"networks"`
	GasStation GasStation        `mapstructure:"gas_station" yaml:"gas_station"`
	Tokens     map[string]string `mapstructure:"tokens" yaml:"tokens"`
	Aave       Aave              `mapstructure:"aave" yaml:"aave"`
	Relay      Relay             `mapstructure:"relay" yaml:"relay"`
	DB         DB                `mapstructure:"db" yaml:"db"`
	Server     Server            `mapstructure:"server" yaml:"server"`

	tokens map[string]common.Address
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aave.deposit_token", "USDC")
	v.SetDefault("aave.atoken_prefix", "am")
	v.SetDefault("relay.confirm_timeout", 2*time.Minute)
	v.SetDefault("relay.poll_interval", time.Second)
	v.SetDefault("relay.max_poll_interval", 10*time.Second)
	v.SetDefault("relay.broadcast_retries", 3)
	v.SetDefault("relay.revert_is_failure", true)
	v.SetDefault("server.port", 8080)
}

// Load reads a YAML file. Any key can be overridden from the environment, e.g.
// GASSTATION_GAS_STATION_SK for gas_station.sk.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// secrets are usually absent from the file, bind them so Unmarshal sees them
	for _, key := range []string{"gas_station.sk", "gas_station.keystore_password", "networks.rpc_url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and parses derived values. It must run
// before any accessor that returns a parsed value.
func (c *Config) Validate() error {
	var err error
	n := &c.Networks
	if n.RPCURL == "" {
		return errors.New("networks.rpc_url is required")
	}
	if n.ChainID <= 0 {
		return errors.New("networks.chain_id must be positive")
	}
	if n.DefaultGasUnits == 0 {
		return errors.New("networks.default_gas_units must be positive")
	}
	if n.gasPrice, err = parseWei("networks.gas_price", n.GasPrice); err != nil {
		return err
	}
	if n.minerTipPrice, err = parseWei("networks.miner_tip_price", n.MinerTipPrice); err != nil {
		return err
	}
	if n.minerTipPrice.Cmp(n.gasPrice) > 0 {
		return errors.New("networks.miner_tip_price exceeds networks.gas_price")
	}
	for key, addr := range map[string]string{
		"networks.lending_pool_addresses_provider": n.LendingPoolAddressesProvider,
		"networks.lending_pool":                    n.LendingPool,
		"networks.protocol_data_provider_address":  n.ProtocolDataProvider,
	} {
		if addr == "" {
			continue
		}
		if _, err := utils.ChecksumAddress(addr); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if n.LendingPool == "" && n.LendingPoolAddressesProvider == "" {
		return errors.New("one of networks.lending_pool or networks.lending_pool_addresses_provider is required")
	}

	g := &c.GasStation
	if _, err := utils.ChecksumAddress(g.Address); err != nil {
		return fmt.Errorf("gas_station.address: %w", err)
	}
	if g.SK == "" && g.Keystore == "" {
		return errors.New("one of gas_station.sk or gas_station.keystore is required")
	}
	if g.gasAllowance, err = parseWei("gas_station.gas_allowance", g.GasAllowance); err != nil {
		return err
	}

	c.tokens = make(map[string]common.Address, len(c.Tokens))
	for symbol, addr := range c.Tokens {
		a, err := utils.ChecksumAddress(addr)
		if err != nil {
			return fmt.Errorf("tokens.%s: %w", symbol, err)
		}
		c.tokens[strings.ToUpper(symbol)] = a
	}
	if _, ok := c.tokens[strings.ToUpper(c.Aave.DepositToken)]; !ok {
		return fmt.Errorf("aave.deposit_token %q is not listed under tokens", c.Aave.DepositToken)
	}

	r := &c.Relay
	if r.ConfirmTimeout <= 0 || r.PollInterval <= 0 {
		return errors.New("relay.confirm_timeout and relay.poll_interval must be positive")
	}
	if r.MaxPollInterval < r.PollInterval {
		r.MaxPollInterval = r.PollInterval
	}
	if r.BroadcastRetries < 0 {
		return errors.New("relay.broadcast_retries must not be negative")
	}
	return nil
}

// Token looks a token address up by symbol, case-insensitively.
func (c *Config) Token(symbol string) (common.Address, bool) {
	addr, ok := c.tokens[strings.ToUpper(symbol)]
	return addr, ok
}

func (c *Config) TokenSymbols() []string {
	symbols := make([]string, 0, len(c.tokens))
	for s := range c.tokens {
		symbols = append(symbols, s)
	}
	return symbols
}

func parseWei(key, value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid wei amount %q", key, value)
	}
	return v, nil
}
