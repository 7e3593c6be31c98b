package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Chain    ChainConfig
	Oracle   OracleConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port    string
	AppName string `mapstructure:"app_name"`
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	TimeZone    string
	TablePrefix string `mapstructure:"table_prefix"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ChainConfig 链上协议相关配置
type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ChainID         int64  `mapstructure:"chain_id"`
	ProtocolAddress string `mapstructure:"protocol_address"`
	PrivateKey      string `mapstructure:"private_key"`
	// DryRun 开启后跳过真实交易广播，返回模拟回执（仅限本地测试）
	DryRun bool `mapstructure:"dry_run"`
}

type OracleConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

type EngineConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

func LoadConfig() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")        // 在当前目录中查找配置
	viper.AddConfigPath("./config") // 在 config 目录中查找配置

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Error reading config file, %s", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	return &config
}

func setDefaults() {
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("server.app_name", "dexflow")

	viper.SetDefault("oracle.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("oracle.cache_ttl", 30*time.Second)
	viper.SetDefault("oracle.rate_limit_interval", time.Second)
	viper.SetDefault("oracle.request_timeout", 10*time.Second)

	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("chain.protocol_address", "0x119c71D3BbAC22029622cbaEc24854d3D32D2828")
	viper.SetDefault("chain.dry_run", false)

	viper.SetDefault("engine.poll_interval", 30*time.Second)
	viper.SetDefault("engine.max_concurrency", 8)
}
