package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"order-splitter/internal/calendar"
	"order-splitter/internal/settings"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Index      IndexConfig      `mapstructure:"index"`
	Precision  PrecisionConfig  `mapstructure:"precision"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig 控制 HTTP 服务。
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string     `mapstructure:"level"`
	Encoding         string     `mapstructure:"encoding"`
	Development      bool       `mapstructure:"development"`
	OutputPaths      []string   `mapstructure:"output_paths"`
	ErrorOutputPaths []string   `mapstructure:"error_output_paths"`
	File             FileConfig `mapstructure:"file"`
}

// FileConfig 控制滚动日志文件，Path 为空时不落盘。
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig 管理事件日志数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// CalendarConfig 描述交易时段与节假日。
type CalendarConfig struct {
	Timezone    string   `mapstructure:"timezone"`
	OpenTime    string   `mapstructure:"open_time"`
	CloseTime   string   `mapstructure:"close_time"`
	TradingDays []string `mapstructure:"trading_days"`
	Holidays    []string `mapstructure:"holidays"`
	MaxScanDays int      `mapstructure:"max_scan_days"`
}

// AllocationConfig 控制拆单计算参数。
type AllocationConfig struct {
	DefaultUnitPrice decimal.Decimal `mapstructure:"default_unit_price"`
	SumTolerance     decimal.Decimal `mapstructure:"sum_tolerance"`
	DriftTolerance   decimal.Decimal `mapstructure:"drift_tolerance"`
}

// IndexConfig 控制订单查询分页与统计缓存。
type IndexConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	StatsTTL     time.Duration `mapstructure:"stats_ttl"`
}

// PrecisionConfig 为份额精度初始值。
type PrecisionConfig struct {
	Default int `mapstructure:"default"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Name == "" {
		err = multierr.Append(err, errors.New("app.name 不能为空"))
	}
	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr 不能为空"))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.read_timeout 与 write_timeout 必须大于0"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("server.shutdown_timeout 必须大于0"))
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
	if c.Logging.File.Path != "" && c.Logging.File.MaxSizeMB <= 0 {
		err = multierr.Append(err, errors.New("logging.file.max_size_mb 必须大于0"))
	}
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
	if _, calErr := calendar.New(c.Calendar.ToCalendar()); calErr != nil {
		err = multierr.Append(err, fmt.Errorf("calendar 配置无效: %w", calErr))
	}
	if c.Calendar.MaxScanDays <= 0 {
		err = multierr.Append(err, errors.New("calendar.max_scan_days 必须大于0"))
	}
	if !c.Allocation.DefaultUnitPrice.IsPositive() {
		err = multierr.Append(err, errors.New("allocation.default_unit_price 必须大于0"))
	}
	if !c.Allocation.SumTolerance.IsPositive() {
		err = multierr.Append(err, errors.New("allocation.sum_tolerance 必须大于0"))
	}
	if !c.Allocation.DriftTolerance.IsPositive() {
		err = multierr.Append(err, errors.New("allocation.drift_tolerance 必须大于0"))
	}
	if c.Index.DefaultLimit <= 0 || c.Index.MaxLimit <= 0 {
		err = multierr.Append(err, errors.New("index.default_limit 与 max_limit 必须大于0"))
	}
	if c.Index.DefaultLimit > c.Index.MaxLimit {
		err = multierr.Append(err, errors.New("index.default_limit 不能大于 max_limit"))
	}
	if c.Index.StatsTTL <= 0 {
		err = multierr.Append(err, errors.New("index.stats_ttl 必须大于0"))
	}
	if c.Precision.Default < settings.MinPrecision || c.Precision.Default > settings.MaxPrecision {
		err = multierr.Append(err, fmt.Errorf("precision.default 必须位于[%d,%d]", settings.MinPrecision, settings.MaxPrecision))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// ToCalendar 转换为交易日历参数。
func (c CalendarConfig) ToCalendar() calendar.Config {
	return calendar.Config{
		Timezone:    c.Timezone,
		OpenTime:    c.OpenTime,
		CloseTime:   c.CloseTime,
		TradingDays: c.TradingDays,
		Holidays:    c.Holidays,
		MaxScanDays: c.MaxScanDays,
	}
}
