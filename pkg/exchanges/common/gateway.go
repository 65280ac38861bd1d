package common

import "context"

// Gateway abstracts a trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	QueryOrder(ctx context.Context, symbol, exchangeOrderID string) (OrderState, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
	GetBalances(ctx context.Context) ([]Balance, error)
}
