package services

import (
	"context"
	"fmt"

	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

// saga runs a sequence of writes across the metadata and object stores. When
// a step fails, the compensations of the steps that already succeeded run in
// reverse order.
type saga struct {
	logger *utils.Logger
	steps  []sagaStep
}

type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// stepError identifies the step that aborted a saga.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

func newSaga(logger *utils.Logger) *saga {
	return &saga{logger: logger}
}

func (s *saga) add(name string, run, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, run: run, compensate: compensate})
}

func (s *saga) execute(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.run(ctx); err != nil {
			s.rollback(ctx, i)
			return &stepError{step: st.name, err: err}
		}
	}
	return nil
}

func (s *saga) rollback(ctx context.Context, failed int) {
	// Compensation must run even if the request context was cancelled.
	ctx = context.WithoutCancel(ctx)

	for i := failed - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx); err != nil {
			s.logger.Error("Compensation failed, partial state remains", "step", st.name, "error", err)
			continue
		}
		s.logger.Info("Compensated step", "step", st.name)
	}
}
