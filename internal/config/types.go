package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// Config 聚合了审批聚合流程所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Approval    ApprovalConfig    `mapstructure:"approval"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Signer      SignerConfig      `mapstructure:"signer"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// CoordinatorConfig 描述结算入口合约与链上节点信息。
type CoordinatorConfig struct {
	ContractAddress string `mapstructure:"contract_address"`
	ChainID         int64  `mapstructure:"chain_id"`
	RPCURL          string `mapstructure:"rpc_url"`
}

// ApprovalConfig 控制审批请求行为。
type ApprovalConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AuditEnabled   bool          `mapstructure:"audit_enabled"`
}

// RegistryConfig 维护审批方地址到服务端点的静态映射。
type RegistryConfig struct {
	Endpoints map[string]string `mapstructure:"endpoints"`
}

// SignerConfig 描述发起方签名身份。
type SignerConfig struct {
	Address    string `mapstructure:"address"`
	PrivateKey string `mapstructure:"private_key"`
}

// DatabaseConfig 管理审批审计数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if !common.IsHexAddress(c.Coordinator.ContractAddress) {
		err = multierr.Append(err, errors.New("coordinator.contract_address 必须是合法地址"))
	}
	if c.Coordinator.ChainID <= 0 {
		err = multierr.Append(err, errors.New("coordinator.chain_id 必须大于0"))
	}
	if c.Coordinator.RPCURL != "" {
		if _, parseErr := url.ParseRequestURI(c.Coordinator.RPCURL); parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("coordinator.rpc_url 不是合法URL: %v", parseErr))
		}
	}
	if c.Approval.RequestTimeout <= 0 {
		err = multierr.Append(err, errors.New("approval.request_timeout 必须大于0"))
	}
	for addr, endpoint := range c.Registry.Endpoints {
		if !common.IsHexAddress(addr) {
			err = multierr.Append(err, fmt.Errorf("registry.endpoints 键 %q 不是合法地址", addr))
			continue
		}
		if _, parseErr := url.ParseRequestURI(endpoint); parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("registry.endpoints[%s] 不是合法URL: %v", addr, parseErr))
		}
	}
	if c.Signer.Address != "" && !common.IsHexAddress(c.Signer.Address) {
		err = multierr.Append(err, errors.New("signer.address 必须是合法地址"))
	}
	if c.Signer.PrivateKey != "" && c.Signer.Address == "" {
		err = multierr.Append(err, errors.New("配置 signer.private_key 时必须同时配置 signer.address"))
	}
	if c.Approval.AuditEnabled {
		if c.Database.Path == "" && !c.Database.InMemory {
			err = multierr.Append(err, errors.New("database.path 不能为空"))
		}
		if c.Database.MaxOpenConns <= 0 {
			err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
		}
		if c.Database.MaxIdleConns < 0 {
			err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
		}
		if c.Database.ConnMaxLifetime < 0 {
			err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
		}
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// CoordinatorAddress 返回解析后的结算合约地址。
func (c *Config) CoordinatorAddress() common.Address {
	return common.HexToAddress(c.Coordinator.ContractAddress)
}

// SignerAddress 返回解析后的发起方地址。
func (c *Config) SignerAddress() common.Address {
	return common.HexToAddress(c.Signer.Address)
}
