package usecase

import (
	"context"

	"github.com/devricklin/feishu-relay/internal/biz/domain"
)

// fanOut runs op against every destination in order. A failure on one
// destination never prevents the others; proceed is consulted before each
// destination and a false return marks the rest as skipped.
func fanOut(
	ctx context.Context,
	destinations []string,
	proceed func() bool,
	op func(ctx context.Context, dest string) domain.DeliveryOutcome,
) []domain.DeliveryOutcome {
	outcomes := make([]domain.DeliveryOutcome, 0, len(destinations))
	stopped := false

	for _, dest := range destinations {
		if !stopped && (ctx.Err() != nil || (proceed != nil && !proceed())) {
			stopped = true
		}
		if stopped {
			outcomes = append(outcomes, domain.DeliveryOutcome{Destination: dest, Skipped: true})
			continue
		}
		outcomes = append(outcomes, safeOp(ctx, dest, op))
	}
	return outcomes
}

// safeOp keeps a panicking destination from taking down the fan-out
func safeOp(
	ctx context.Context,
	dest string,
	op func(ctx context.Context, dest string) domain.DeliveryOutcome,
) (out domain.DeliveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.DeliveryOutcome{Destination: dest, Err: &domain.DestinationError{
				Chat: dest,
				Op:   "deliver",
				Kind: domain.DestGeneric,
				Err:  panicError{r},
			}}
		}
	}()
	return op(ctx, dest)
}
