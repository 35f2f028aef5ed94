package dependencies

import (
	"github.com/benbjohnson/clock"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
	"github.com/taskgrid/taskgrid/internal/pkg/validator"
)

// base dependencies container implements Base interface.
type base struct {
	clock     clock.Clock
	envs      env.Provider
	logger    log.Logger
	telemetry telemetry.Telemetry
	validator validator.Validator
}

func NewBaseDeps(envs env.Provider, clk clock.Clock, tel telemetry.Telemetry, logger log.Logger) Base {
	return newBaseDeps(envs, clk, tel, logger)
}

func newBaseDeps(envs env.Provider, clk clock.Clock, tel telemetry.Telemetry, logger log.Logger) *base {
	if clk == nil {
		clk = clock.New()
	}
	if tel == nil {
		tel = telemetry.NewNop()
	}

	return &base{
		clock:     clk,
		envs:      envs,
		logger:    logger,
		telemetry: tel,
		validator: validator.New(),
	}
}

func (v *base) Clock() clock.Clock {
	return v.clock
}

func (v *base) Envs() env.Provider {
	return v.envs
}

func (v *base) Logger() log.Logger {
	return v.logger
}

func (v *base) Telemetry() telemetry.Telemetry {
	return v.telemetry
}

func (v *base) Validator() validator.Validator {
	return v.validator
}
