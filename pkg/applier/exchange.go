package applier

import (
	"errors"
	"fmt"
	"math"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

// priceScale fixes the decimal scale of order prices: a price of priceScale
// trades one amount-asset unit for one price-asset unit.
const priceScale = int64(100_000_000)

// validateExchange checks the structural consistency of an exchange payload:
// matching asset pairs, executed terms within both orders' limits, matcher
// fees within what each order granted.
func validateExchange(p *tx.ExchangePayload) error {
	buy, sell := &p.BuyOrder, &p.SellOrder

	if buy.Side != tx.Buy || sell.Side != tx.Sell {
		return fmt.Errorf("order sides: %w", ErrMalformedPayload)
	}
	if buy.AmountAsset != sell.AmountAsset || buy.PriceAsset != sell.PriceAsset {
		return fmt.Errorf("orders trade different pairs: %w", ErrMalformedPayload)
	}
	if buy.AmountAsset == buy.PriceAsset {
		return fmt.Errorf("amount and price asset are the same: %w", ErrMalformedPayload)
	}
	if p.Amount <= 0 || p.Price <= 0 {
		return fmt.Errorf("non-positive trade terms: %w", ErrMalformedPayload)
	}
	if p.Amount > math.MaxInt64/p.Price {
		return fmt.Errorf("trade total overflows: %w", ErrMalformedPayload)
	}
	if p.Amount > buy.Amount || p.Amount > sell.Amount {
		return fmt.Errorf("executed amount exceeds an order: %w", ErrMalformedPayload)
	}
	if p.Price > buy.Price || p.Price < sell.Price {
		return fmt.Errorf("executed price outside order limits: %w", ErrMalformedPayload)
	}
	if p.BuyMatcherFee < 0 || p.BuyMatcherFee > buy.MatcherFee {
		return fmt.Errorf("buy matcher fee out of range: %w", ErrMalformedPayload)
	}
	if p.SellMatcherFee < 0 || p.SellMatcherFee > sell.MatcherFee {
		return fmt.Errorf("sell matcher fee out of range: %w", ErrMalformedPayload)
	}
	return nil
}

// applyExchange settles a matched trade. The transaction sender is the
// matcher; both counterparties signed only their orders, so their
// authorization is checked here rather than in the envelope path. A
// counterparty authorization failure invalidates the whole transaction,
// because a block must never carry a trade one party never agreed to, not
// even as a failed entry. Once both orders are authorized, a Failed exchange
// still charges the matcher fees: each party committed to its fee when it
// signed the order.
func (a *Applier) applyExchange(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64) (bodyResult, error) {
	p := t.Exchange

	for _, o := range []*tx.Order{&p.BuyOrder, &p.SellOrder} {
		reason, err := a.verifyOrder(t, o, run, meter, height)
		if err != nil {
			return bodyResult{}, err
		}
		if reason != nil {
			return bodyResult{invalid: reason}, nil
		}
	}

	failWithFees := func(reason error) (bodyResult, error) {
		fees, err := a.matcherFees(t, run)
		if err != nil {
			return bodyResult{}, err
		}
		return bodyResult{failed: reason, feeExtra: fees}, nil
	}

	// Asset scripts on every traded or fee asset gate the settlement.
	seen := make(map[types.AssetID]bool, 4)
	for _, id := range []types.AssetID{
		p.BuyOrder.AmountAsset, p.BuyOrder.PriceAsset,
		p.BuyOrder.MatcherFeeAsset, p.SellOrder.MatcherFeeAsset,
	} {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		asset, err := run.Asset(id)
		if errors.Is(err, state.ErrAssetNotFound) {
			return failWithFees(fmt.Errorf("%s: %w", id.String(), state.ErrAssetNotFound))
		}
		if err != nil {
			return bodyResult{}, err
		}
		if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
			return failWithFees(reason)
		}
	}

	buyer := p.BuyOrder.Sender
	seller := p.SellOrder.Sender
	matcher := t.Sender
	total := p.Amount * p.Price / priceScale
	if total <= 0 {
		return failWithFees(fmt.Errorf("trade settles to zero: %w", ErrInsufficientFunds))
	}

	// Settlement legs apply in order, so the buyer may fund its matcher fee
	// with the amount asset it just received.
	legs := []state.BalanceChange{
		{Addr: seller, Asset: p.BuyOrder.AmountAsset, Amount: -p.Amount},
		{Addr: buyer, Asset: p.BuyOrder.AmountAsset, Amount: p.Amount},
		{Addr: buyer, Asset: p.BuyOrder.PriceAsset, Amount: -total},
		{Addr: seller, Asset: p.BuyOrder.PriceAsset, Amount: total},
		{Addr: buyer, Asset: p.BuyOrder.MatcherFeeAsset, Amount: -p.BuyMatcherFee},
		{Addr: matcher, Asset: p.BuyOrder.MatcherFeeAsset, Amount: p.BuyMatcherFee},
		{Addr: seller, Asset: p.SellOrder.MatcherFeeAsset, Amount: -p.SellMatcherFee},
		{Addr: matcher, Asset: p.SellOrder.MatcherFeeAsset, Amount: p.SellMatcherFee},
	}

	d := state.NewDiff(t.ID)
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		if leg.Amount < 0 {
			have, err := balanceOf(run, leg.Addr, leg.Asset)
			if err != nil {
				return bodyResult{}, err
			}
			if have+leg.Amount < 0 {
				return failWithFees(fmt.Errorf("%s holds %d, owes %d: %w",
					leg.Addr.String(), have, -leg.Amount, ErrInsufficientFunds))
			}
		}
		step := state.NewDiff(t.ID)
		step.AddBalance(leg.Addr, leg.Asset, leg.Amount)
		if err := run.ApplyDiff(step); err != nil {
			return bodyResult{}, err
		}
		d.AddBalance(leg.Addr, leg.Asset, leg.Amount)
	}

	return bodyResult{effects: d}, nil
}

// matcherFees charges each counterparty its matcher fee. The legs are checked
// against the running view; a party that cannot pay its fee is simply not
// charged.
func (a *Applier) matcherFees(t *tx.Transaction, run *state.Overlay) (*state.Diff, error) {
	p := t.Exchange
	d := state.NewDiff(t.ID)
	legs := []state.BalanceChange{
		{Addr: p.BuyOrder.Sender, Asset: p.BuyOrder.MatcherFeeAsset, Amount: -p.BuyMatcherFee},
		{Addr: p.SellOrder.Sender, Asset: p.SellOrder.MatcherFeeAsset, Amount: -p.SellMatcherFee},
	}
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		have, err := balanceOf(run, leg.Addr, leg.Asset)
		if err != nil {
			return nil, err
		}
		if have+leg.Amount < 0 {
			continue
		}
		d.AddBalance(leg.Addr, leg.Asset, leg.Amount)
		d.AddBalance(t.Sender, leg.Asset, -leg.Amount)
	}
	return d, nil
}

// verifyOrder authenticates one order's sender: account verifier when the
// account is scripted, order signature otherwise. A non-nil reason is the
// Invalid reason for the whole transaction.
func (a *Applier) verifyOrder(t *tx.Transaction, o *tx.Order, run *state.Overlay, meter *ride.Meter, height uint64) (error, error) {
	if o.Sender != types.AddressFromPublicKey(a.cfg.Scheme, o.SenderPK) {
		return fmt.Errorf("order sender does not match its key: %w", ErrMalformedPayload), nil
	}

	script, err := run.AccountScript(o.Sender)
	if err != nil {
		return nil, err
	}
	if script == nil {
		if !o.SenderPK.Verify(o.BodyBytes(), o.Signature) {
			return fmt.Errorf("order %s: bad signature: %w", o.Sender.String(), ErrAuthorizationFailed), nil
		}
		return nil, nil
	}

	ctx := &ride.Context{
		State:     run,
		TxID:      t.ID,
		Sender:    o.Sender,
		Caller:    t.Sender,
		This:      o.Sender,
		Fee:       t.Fee,
		FeeAsset:  t.FeeAsset,
		Height:    height,
		Timestamp: t.Timestamp,
	}
	ok, err := ride.EvaluateVerifier(script, ctx, meter)
	if err != nil {
		return fmt.Errorf("order %s verifier: %v: %w", o.Sender.String(), err, ErrAuthorizationFailed), nil
	}
	if !ok {
		return fmt.Errorf("order %s verifier denied: %w", o.Sender.String(), ErrAuthorizationFailed), nil
	}
	return nil, nil
}
