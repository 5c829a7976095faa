package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// sagaStep is one forward action of a multi-step workflow. A nil compensate
// marks a step that cannot be undone; it must be the last one that can fail.
type sagaStep struct {
	name       string
	do         func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

type saga struct {
	name   string
	steps  []sagaStep
	logger *zap.Logger
}

func newSaga(name string, logger *zap.Logger) *saga {
	return &saga{name: name, logger: logger}
}

func (s *saga) step(name string, do, compensate func(ctx context.Context) error) *saga {
	s.steps = append(s.steps, sagaStep{name: name, do: do, compensate: compensate})
	return s
}

// run executes the steps in order. When a step fails, the completed steps
// are compensated in reverse order and the step error is returned, joined
// with any compensation failure.
func (s *saga) run(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.do(ctx); err != nil {
			err = fmt.Errorf("%s: %w", st.name, err)
			if cerr := s.rollback(ctx, i-1); cerr != nil {
				return errors.Join(err, cerr)
			}
			return err
		}
	}
	return nil
}

func (s *saga) rollback(ctx context.Context, from int) error {
	// Compensation must run even if the caller went away.
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := from; i >= 0; i-- {
		st := s.steps[i]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx); err != nil {
			s.logger.Error("saga compensation failed",
				zap.String("saga", s.name),
				zap.String("step", st.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("compensate %s: %w", st.name, err))
			continue
		}
		s.logger.Warn("saga step compensated", zap.String("saga", s.name), zap.String("step", st.name))
	}
	return errors.Join(errs...)
}
