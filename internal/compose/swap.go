// Package compose implements the SwapCompose/TxCompose pipeline
// envelope (spec.md §3): a tagged variant with monotone stage
// transitions Prepare -> Estimate -> Ready -> Sign -> Broadcast.
package compose

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/flarelayer/arbbot/internal/chain"
)

// Swap is the abstract "thing being composed": a single optimized
// path (chain.SwapLine) or a merger's combination of several. The
// pipeline never branches on the concrete type outside the mergers
// that produce it and the router step that estimates its gas.
type Swap interface {
	PreEstimateGas() uint64
	ProfitETH() *uint256.Int
	Legs() []*chain.SwapLine
}

// singleLeg adapts a bare *chain.SwapLine to the Swap interface.
type singleLeg struct{ line *chain.SwapLine }

// WrapSwapLine is the identity case: a searcher result that was never
// merged.
func WrapSwapLine(l *chain.SwapLine) Swap { return singleLeg{line: l} }

func (s singleLeg) PreEstimateGas() uint64 {
	if len(s.line.Path.Pools) == 0 {
		return 0
	}
	var total uint64
	for _, p := range s.line.Path.Pools {
		total += p.PreEstimateGas()
	}
	return total
}
func (s singleLeg) ProfitETH() *uint256.Int { return s.line.ProfitETH }
func (s singleLeg) Legs() []*chain.SwapLine { return []*chain.SwapLine{s.line} }

// BackrunSwapSteps is the same-path merger's output (§4.F): two legs
// sharing the same pool sequence with distinct input tokens/amounts,
// reusing state between legs.
type BackrunSwapSteps struct {
	First, Second     *chain.SwapLine
	MulticallerAddress common.Address
}

func (s *BackrunSwapSteps) PreEstimateGas() uint64 {
	return WrapSwapLine(s.First).PreEstimateGas() + WrapSwapLine(s.Second).PreEstimateGas()
}
func (s *BackrunSwapSteps) ProfitETH() *uint256.Int {
	return new(uint256.Int).Add(s.First.ProfitETH, s.Second.ProfitETH)
}
func (s *BackrunSwapSteps) Legs() []*chain.SwapLine { return []*chain.SwapLine{s.First, s.Second} }

// DiffPathSteps is the diff-path merger's output (§4.F): two legs with
// disjoint pools but shared stuffing-tx hashes, executed sequentially.
type DiffPathSteps struct {
	Steps              []*chain.SwapLine
	MulticallerAddress common.Address
}

func (s *DiffPathSteps) PreEstimateGas() uint64 {
	var total uint64
	for _, l := range s.Steps {
		total += WrapSwapLine(l).PreEstimateGas()
	}
	return total
}
func (s *DiffPathSteps) ProfitETH() *uint256.Int {
	total := new(uint256.Int)
	for _, l := range s.Steps {
		total.Add(total, l.ProfitETH)
	}
	return total
}
func (s *DiffPathSteps) Legs() []*chain.SwapLine { return s.Steps }

// ArbStepSwap is the arb-swap-path merger's output (§4.F): two
// arbitrage cycles fused on a shared edge pool.
type ArbStepSwap struct {
	A, B               *chain.SwapLine
	SharedPool         chain.PoolID
	MulticallerAddress common.Address
}

func (s *ArbStepSwap) PreEstimateGas() uint64 {
	return WrapSwapLine(s.A).PreEstimateGas() + WrapSwapLine(s.B).PreEstimateGas()
}
func (s *ArbStepSwap) ProfitETH() *uint256.Int {
	return new(uint256.Int).Add(s.A.ProfitETH, s.B.ProfitETH)
}
func (s *ArbStepSwap) Legs() []*chain.SwapLine { return []*chain.SwapLine{s.A, s.B} }
