package services

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/BerylCAtieno/iac-workitem-api/internal/utils"
)

func TestSagaCompensatesInReverseOrder(t *testing.T) {
	var log []string
	record := func(s string) func(context.Context) error {
		return func(context.Context) error { log = append(log, s); return nil }
	}
	boom := errors.New("boom")

	s := newSaga(utils.NewLoggerWithWriter(io.Discard, "error"))
	s.add("first", record("run first"), record("undo first"))
	s.add("second", record("run second"), nil)
	s.add("third", record("run third"), record("undo third"))
	s.add("fourth", func(context.Context) error { return boom }, record("undo fourth"))

	err := s.execute(context.Background())

	var se *stepError
	if !errors.As(err, &se) || se.step != "fourth" {
		t.Fatalf("error = %v, want stepError for fourth", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("stepError does not wrap cause")
	}

	want := []string{"run first", "run second", "run third", "undo third", "undo first"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestSagaCompensatesWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	compensated := false

	s := newSaga(utils.NewLoggerWithWriter(io.Discard, "error"))
	s.add("write", func(context.Context) error { return nil }, func(c context.Context) error {
		if c.Err() != nil {
			return c.Err()
		}
		compensated = true
		return nil
	})
	s.add("fail", func(context.Context) error { cancel(); return errors.New("cancelled midway") }, nil)

	if err := s.execute(ctx); err == nil {
		t.Fatalf("execute returned nil error")
	}
	if !compensated {
		t.Errorf("compensation skipped after request cancellation")
	}
}
