package broker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Select returns the first candidate whose credentials authenticate,
// checked by fetching an account snapshot within timeout. A timeout of
// zero leaves ctx as it is. Candidates are tried in order, so a paper
// broker belongs last.
func Select(ctx context.Context, log *zap.Logger, timeout time.Duration, candidates ...Broker) (Broker, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var errs []error
	for _, b := range candidates {
		if b == nil {
			continue
		}
		cctx, cancel := ctx, func() {}
		if timeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, timeout)
		}
		_, err := b.GetAccountSnapshot(cctx)
		cancel()
		if err == nil {
			log.Info("broker selected", zap.String("broker", string(b.Kind())))
			return b, nil
		}
		log.Warn("broker unavailable, trying next",
			zap.String("broker", string(b.Kind())),
			zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no brokers configured"))
	}
	return nil, &Error{Broker: "select", Op: "authenticate", Err: errors.Join(errs...)}
}
