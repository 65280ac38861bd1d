package router

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"spot-trader/internal/events"
	"spot-trader/pkg/db"
	"spot-trader/pkg/exchanges/common"
)

// Config tunes execution style selection and order handling.
type Config struct {
	MarketMaxNotional float64 // at or below: market order
	TWAPMinNotional   float64 // above: TWAP slices
	TWAPSliceNotional float64
	TWAPSliceInterval time.Duration
	LimitTimeout      time.Duration
	PollInterval      time.Duration
	DepthLevels       int     // book levels for the liquidity check
	MaxSpreadPct      float64 // spread ceiling checked before any submission
	MaxDeviationPct   float64 // TWAP abort on price drift from start
	IntentTTL         time.Duration
}

// DefaultConfig returns workable execution defaults.
func DefaultConfig() Config {
	return Config{
		MarketMaxNotional: 1000,
		TWAPMinNotional:   10000,
		TWAPSliceNotional: 2500,
		TWAPSliceInterval: 10 * time.Second,
		LimitTimeout:      30 * time.Second,
		PollInterval:      time.Second,
		DepthLevels:       10,
		MaxSpreadPct:      0.003,
		MaxDeviationPct:   0.01,
		IntentTTL:         5 * time.Minute,
	}
}

// Router executes intents against the exchange gateway.
type Router struct {
	gw       common.Gateway
	registry *Registry
	database *db.Database
	bus      *events.Bus
	cfg      Config
}

func New(gw common.Gateway, database *db.Database, bus *events.Bus, cfg Config) *Router {
	return &Router{
		gw:       gw,
		registry: NewRegistry(cfg.IntentTTL),
		database: database,
		bus:      bus,
		cfg:      cfg,
	}
}

// Execute routes an intent: dedup, liquidity and spread checks, then
// market, limit or TWAP depending on size.
func (r *Router) Execute(ctx context.Context, intent Intent) (Report, error) {
	if err := r.registry.Register(intent.Key); err != nil {
		return Report{}, err
	}

	notional := intent.Notional()

	book, err := r.gw.GetOrderBook(ctx, intent.Symbol, r.cfg.DepthLevels)
	if err != nil {
		// Nothing reached the exchange; the signal may retry next tick.
		r.registry.Release(intent.Key)
		return Report{}, fmt.Errorf("fetch order book: %w", err)
	}
	if depth := book.DepthNotional(intent.Side, r.cfg.DepthLevels); depth < notional {
		// Not enough resting liquidity to absorb the order.
		r.registry.Release(intent.Key)
		return Report{}, common.Reject("route "+intent.Symbol, 0,
			fmt.Sprintf("insufficient liquidity: need %.2f, book holds %.2f", notional, depth))
	}
	if spread := book.SpreadPct(); r.cfg.MaxSpreadPct > 0 && spread > r.cfg.MaxSpreadPct {
		r.registry.Release(intent.Key)
		return Report{}, common.Reject("route "+intent.Symbol, 0,
			fmt.Sprintf("spread too wide: %.4f%% > %.4f%%", spread*100, r.cfg.MaxSpreadPct*100))
	}

	var report Report
	switch {
	case notional <= r.cfg.MarketMaxNotional:
		report, err = r.executeMarket(ctx, intent, intent.Qty)
		report.Style = StyleMarket
	case notional >= r.cfg.TWAPMinNotional:
		report, err = r.executeTWAP(ctx, intent)
		report.Style = StyleTWAP
	default:
		report, err = r.executeLimit(ctx, intent)
		report.Style = StyleLimit
	}

	if err != nil {
		if common.IsRejection(err) {
			// A definitive refusal should not poison the dedup window.
			r.registry.Release(intent.Key)
			r.publish(events.EventOrderRejected, intent, report)
		}
		return report, err
	}

	if report.Complete() {
		r.publish(events.EventOrderFilled, intent, report)
	} else if report.Filled() {
		r.publish(events.EventOrderPartial, intent, report)
	}
	return report, nil
}

// CloseMarket liquidates qty at market immediately, bypassing style
// selection and the intent dedup window. Exits must never be blocked
// by an entry registered minutes earlier at the same price.
func (r *Router) CloseMarket(ctx context.Context, symbol string, side common.Side, qty, refPrice float64) (Report, error) {
	intent := Intent{
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Entry:     refPrice,
		CreatedAt: time.Now(),
	}
	report, err := r.executeMarket(ctx, intent, qty)
	report.Style = StyleMarket
	if err != nil {
		if common.IsRejection(err) {
			r.publish(events.EventOrderRejected, intent, report)
		}
		return report, err
	}
	if report.Complete() {
		r.publish(events.EventOrderFilled, intent, report)
	} else if report.Filled() {
		r.publish(events.EventOrderPartial, intent, report)
	}
	return report, nil
}

// executeMarket submits a single market order for qty.
func (r *Router) executeMarket(ctx context.Context, intent Intent, qty float64) (Report, error) {
	orderID := uuid.NewString()
	report := Report{OrderID: orderID, RequestedQty: qty}

	res, err := r.gw.SubmitOrder(ctx, common.OrderRequest{
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Type:     common.OrderTypeMarket,
		Qty:      qty,
		ClientID: orderID,
	})
	if err != nil {
		return report, err
	}

	report.FilledQty = res.ExecutedQty
	report.AvgPrice = res.AvgPrice
	if res.Status == common.StatusFilled && report.FilledQty == 0 {
		// Some venues ack FILLED without quantities; trust the request.
		report.FilledQty = qty
		report.AvgPrice = intent.Entry
	}

	r.persistOrder(ctx, intent, report, res.ExchangeOrderID, string(common.OrderTypeMarket), 0, string(res.Status))
	log.Printf("router: market %s %s qty=%v avg=%v", intent.Side, intent.Symbol, report.FilledQty, report.AvgPrice)
	return report, nil
}

// executeLimit rests a limit order at the near touch, polls it, and
// cancels the remainder on timeout. Partial fills are kept.
func (r *Router) executeLimit(ctx context.Context, intent Intent) (Report, error) {
	orderID := uuid.NewString()
	report := Report{OrderID: orderID, RequestedQty: intent.Qty}

	ticker, err := r.gw.GetTicker(ctx, intent.Symbol)
	if err != nil {
		return report, fmt.Errorf("fetch ticker: %w", err)
	}
	price := ticker.Bid
	if intent.Side == common.SideSell {
		price = ticker.Ask
	}
	if price <= 0 {
		price = intent.Entry
	}

	res, err := r.gw.SubmitOrder(ctx, common.OrderRequest{
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		Type:        common.OrderTypeLimit,
		Qty:         intent.Qty,
		Price:       price,
		TimeInForce: common.TIFGTC,
		ClientID:    orderID,
	})
	if err != nil {
		return report, err
	}
	r.persistOrder(ctx, intent, report, res.ExchangeOrderID, string(common.OrderTypeLimit), price, string(res.Status))

	deadline := time.NewTimer(r.cfg.LimitTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	last := res.Status
	for {
		select {
		case <-ctx.Done():
			r.cancelRemainder(intent.Symbol, res.ExchangeOrderID)
			return r.finalizeOrder(intent, report, res.ExchangeOrderID), ctx.Err()
		case <-deadline.C:
			r.cancelRemainder(intent.Symbol, res.ExchangeOrderID)
			report = r.finalizeOrder(intent, report, res.ExchangeOrderID)
			log.Printf("router: limit %s %s timed out, filled %v of %v",
				intent.Side, intent.Symbol, report.FilledQty, report.RequestedQty)
			return report, nil
		case <-poll.C:
			state, err := r.gw.QueryOrder(ctx, intent.Symbol, res.ExchangeOrderID)
			if err != nil {
				if common.IsTransient(err) {
					continue
				}
				return report, err
			}
			if !last.CanProgress(state.Status) {
				continue
			}
			last = state.Status
			if state.Status.Terminal() {
				report.FilledQty = state.ExecutedQty
				report.AvgPrice = state.AvgPrice
				r.updateOrder(report, string(state.Status))
				return report, nil
			}
		}
	}
}

// cancelRemainder cancels without failing the flow; the order may have
// filled in the race, finalizeOrder picks up the truth.
func (r *Router) cancelRemainder(symbol, exchangeOrderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.gw.CancelOrder(ctx, symbol, exchangeOrderID); err != nil && !common.IsRejection(err) {
		log.Printf("router: cancel %s order %s: %v", symbol, exchangeOrderID, err)
	}
}

// finalizeOrder re-queries the order to capture fills that landed
// before the cancel took effect.
func (r *Router) finalizeOrder(intent Intent, report Report, exchangeOrderID string) Report {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := r.gw.QueryOrder(ctx, intent.Symbol, exchangeOrderID)
	if err != nil {
		log.Printf("router: finalize %s order %s: %v", intent.Symbol, exchangeOrderID, err)
		return report
	}
	report.FilledQty = state.ExecutedQty
	report.AvgPrice = state.AvgPrice
	r.updateOrder(report, string(state.Status))
	return report
}

func (r *Router) persistOrder(ctx context.Context, intent Intent, report Report, exchangeOrderID, ordType string, price float64, status string) {
	if r.database == nil {
		return
	}
	err := r.database.InsertOrder(ctx, db.Order{
		ID:              report.OrderID,
		ExchangeOrderID: exchangeOrderID,
		Symbol:          intent.Symbol,
		Side:            string(intent.Side),
		Type:            ordType,
		Price:           price,
		Qty:             report.RequestedQty,
		FilledQty:       report.FilledQty,
		AvgFillPrice:    report.AvgPrice,
		Status:          status,
		IntentKey:       intent.Key,
	})
	if err != nil {
		log.Printf("router: persist order %s: %v", report.OrderID, err)
	}
}

func (r *Router) updateOrder(report Report, status string) {
	if r.database == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.database.UpdateOrderFill(ctx, report.OrderID, report.FilledQty, report.AvgPrice, status); err != nil {
		log.Printf("router: update order %s: %v", report.OrderID, err)
	}
}

func (r *Router) publish(e events.Event, intent Intent, report Report) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(e, struct {
		Intent Intent
		Report Report
	}{intent, report})
}
