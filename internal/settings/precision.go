package settings

import (
	"fmt"
	"sync/atomic"
)

const (
	MinPrecision     = 0
	MaxPrecision     = 10
	DefaultPrecision = 3
)

// Precision 保存全局份额精度，订单创建时读取一次并固化到订单上。
type Precision struct {
	value atomic.Int32
}

// NewPrecision 以初始值创建精度设置。
func NewPrecision(initial int) (*Precision, error) {
	p := &Precision{}
	if err := p.Set(initial); err != nil {
		return nil, err
	}
	return p, nil
}

// Get 返回当前精度。
func (p *Precision) Get() int {
	return int(p.value.Load())
}

// Set 更新精度，超出 [0, 10] 时拒绝。
func (p *Precision) Set(places int) error {
	if places < MinPrecision || places > MaxPrecision {
		return fmt.Errorf("settings: share precision %d out of range [%d, %d]", places, MinPrecision, MaxPrecision)
	}
	p.value.Store(int32(places))
	return nil
}
