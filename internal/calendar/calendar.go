package calendar

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	// DefaultMaxScanDays 限制向前查找交易日的天数，节假日列表有限，不允许无界扫描。
	DefaultMaxScanDays = 30
)

// Config 描述交易日历参数。
type Config struct {
	Timezone    string
	OpenTime    string
	CloseTime   string
	TradingDays []string
	Holidays    []string
	MaxScanDays int
}

// DefaultConfig 返回美股常规交易时段，切片为副本，可自由修改。
func DefaultConfig() Config {
	return Config{
		Timezone:    "America/New_York",
		OpenTime:    "09:30",
		CloseTime:   "16:00",
		TradingDays: slices.Clone(DefaultTradingDays),
		Holidays:    slices.Clone(DefaultHolidays),
		MaxScanDays: DefaultMaxScanDays,
	}
}

// Calendar 判断某一时刻是否可交易，并计算下一个可交易时刻。
type Calendar struct {
	loc         *time.Location
	open        time.Duration
	close       time.Duration
	openLabel   string
	closeLabel  string
	tradingDays map[time.Weekday]struct{}
	holidays    map[string]struct{}
	maxScan     int
}

// MarketStatus 为市场状态快照。
type MarketStatus struct {
	IsOpen    bool      `json:"isOpen"`
	Now       time.Time `json:"now"`
	NextOpen  time.Time `json:"nextOpen"`
	NextClose time.Time `json:"nextClose"`
	Timezone  string    `json:"timezone"`
	OpenTime  string    `json:"openTime"`
	CloseTime string    `json:"closeTime"`
}

// New 根据配置构建交易日历。
func New(cfg Config) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar: 加载时区 %q 失败: %w", cfg.Timezone, err)
	}

	open, err := parseClock(cfg.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("calendar: 开盘时间无效: %w", err)
	}
	closeAt, err := parseClock(cfg.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("calendar: 收盘时间无效: %w", err)
	}
	if open >= closeAt {
		return nil, errors.New("calendar: 开盘时间必须早于收盘时间")
	}

	if len(cfg.TradingDays) == 0 {
		return nil, errors.New("calendar: 交易日不能为空")
	}
	days := make(map[time.Weekday]struct{}, len(cfg.TradingDays))
	for _, raw := range cfg.TradingDays {
		day, err := ParseWeekday(raw)
		if err != nil {
			return nil, err
		}
		days[day] = struct{}{}
	}

	holidays := make(map[string]struct{}, len(cfg.Holidays))
	for _, raw := range cfg.Holidays {
		day, err := time.Parse(dateLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("calendar: 节假日 %q 格式无效: %w", raw, err)
		}
		holidays[day.Format(dateLayout)] = struct{}{}
	}

	maxScan := cfg.MaxScanDays
	if maxScan <= 0 {
		maxScan = DefaultMaxScanDays
	}

	return &Calendar{
		loc:         loc,
		open:        open,
		close:       closeAt,
		openLabel:   formatClock(open),
		closeLabel:  formatClock(closeAt),
		tradingDays: days,
		holidays:    holidays,
		maxScan:     maxScan,
	}, nil
}

// Location 返回日历所在时区。
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay 判断 t 所在的本地日期是否为非节假日交易日。
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	if _, ok := c.tradingDays[local.Weekday()]; !ok {
		return false
	}
	_, holiday := c.holidays[local.Format(dateLayout)]
	return !holiday
}

// IsOpen 判断 t 是否处于 [开盘, 收盘) 交易时段内。
func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	clock := wallClock(t.In(c.loc))
	return clock >= c.open && clock < c.close
}

// NextTradeable 返回下一个可交易时刻；已开市时原样返回。
func (c *Calendar) NextTradeable(t time.Time) time.Time {
	if c.IsOpen(t) {
		return t
	}

	local := t.In(c.loc)
	y, m, d := local.Date()

	var candidate time.Time
	if c.IsTradingDay(local) && wallClock(local) < c.open {
		candidate = c.openOn(y, m, d)
	} else {
		candidate = c.openOn(y, m, d+1)
	}

	for i := 0; i < c.maxScan; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		cy, cm, cd := candidate.Date()
		candidate = c.openOn(cy, cm, cd+1)
	}

	return c.nextMondayOpen(local)
}

// Status 汇总当前市场状态。
func (c *Calendar) Status(now time.Time) MarketStatus {
	open := c.IsOpen(now)
	next := c.NextTradeable(now)
	ny, nm, nd := next.In(c.loc).Date()

	return MarketStatus{
		IsOpen:    open,
		Now:       now,
		NextOpen:  next,
		NextClose: c.closeOn(ny, nm, nd),
		Timezone:  c.loc.String(),
		OpenTime:  c.openLabel,
		CloseTime: c.closeLabel,
	}
}

func (c *Calendar) openOn(y int, m time.Month, d int) time.Time {
	return atClock(y, m, d, c.open, c.loc)
}

func (c *Calendar) closeOn(y int, m time.Month, d int) time.Time {
	return atClock(y, m, d, c.close, c.loc)
}

// atClock 按墙上时间构造，time.Date 会归一化越界日期。
func atClock(y int, m time.Month, d int, clock time.Duration, loc *time.Location) time.Time {
	h := int(clock / time.Hour)
	minute := int((clock % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, minute, 0, 0, loc)
}

func (c *Calendar) nextMondayOpen(local time.Time) time.Time {
	offset := (int(time.Monday) - int(local.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	y, m, d := local.Date()
	return c.openOn(y, m, d+offset)
}

// ParseWeekday 解析英文星期名称（全称或三字母缩写）。
func ParseWeekday(raw string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if key == name || key == name[:3] {
			return day, nil
		}
	}
	return 0, fmt.Errorf("calendar: 无法识别的交易日 %q", raw)
}

func parseClock(raw string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}

func wallClock(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}
