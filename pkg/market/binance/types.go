package market

// Kline represents a single candlestick.
type Kline struct {
	Symbol    string
	OpenTime  int64 // ms
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64 // ms
}

// BookTicker holds best bid/ask.
type BookTicker struct {
	Symbol   string
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
}

// Trade represents a public trade update.
type Trade struct {
	Symbol       string
	Price        float64
	Qty          float64
	Time         int64 // ms
	IsBuyerMaker bool
}
