package app

import (
	"context"
	"errors"

	logx "engagebot/pkg/logx"
)

// HealthCheck probes every external dependency and reports all failures
// at once rather than stopping at the first.
func (a *App) HealthCheck(ctx context.Context) error {
	var errs []error

	if err := a.store.Ping(ctx); err != nil {
		a.log.Error("database check failed", logx.Err(err))
		errs = append(errs, err)
	} else {
		a.log.Info("database ok")
	}

	if err := a.gen.Ping(ctx); err != nil {
		a.log.Error("generation API check failed", logx.Err(err))
		errs = append(errs, err)
	} else {
		a.log.Info("generation API ok")
	}

	if err := a.drv.Ping(ctx); err != nil {
		a.log.Error("browser driver check failed", logx.Err(err))
		errs = append(errs, err)
	} else {
		a.log.Info("browser driver ok")
	}

	return errors.Join(errs...)
}
