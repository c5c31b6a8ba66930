package order

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 区分领域错误类型。
type Kind string

const (
	KindInvalidPortfolio Kind = "invalid_portfolio"
	KindNotFound         Kind = "not_found"
)

// Error 为订单核心唯一的错误类型。
type Error struct {
	Kind    Kind
	Message string
	Symbols []string
	ID      string
}

var (
	// ErrInvalidPortfolio 用于 errors.Is 匹配组合参数错误。
	ErrInvalidPortfolio = &Error{Kind: KindInvalidPortfolio}
	// ErrNotFound 用于 errors.Is 匹配订单不存在。
	ErrNotFound = &Error{Kind: KindNotFound}
)

// InvalidPortfolio 构造组合参数错误，附带出错的标的。
func InvalidPortfolio(message string, symbols ...string) *Error {
	return &Error{Kind: KindInvalidPortfolio, Message: message, Symbols: symbols}
}

// NotFound 构造订单不存在错误。
func NotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: "order not found", ID: id}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("order: %s (id=%s)", e.Message, e.ID)
	default:
		if len(e.Symbols) == 0 {
			return "order: invalid portfolio: " + e.Message
		}
		return fmt.Sprintf("order: invalid portfolio: %s [%s]", e.Message, strings.Join(e.Symbols, ", "))
	}
}

// Is 按错误类型匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsInvalidPortfolio 判断是否为组合参数错误。
func IsInvalidPortfolio(err error) bool {
	return errors.Is(err, ErrInvalidPortfolio)
}

// IsNotFound 判断是否为订单不存在。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
