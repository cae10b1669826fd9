package trigger

import (
	"context"
	"errors"
	"testing"
)

func TestChain_RunsAllAndJoinsErrors(t *testing.T) {
	var order []string
	errA := errors.New("a failed")
	errC := errors.New("c failed")

	chain := Chain(
		ActionFunc(func(context.Context) error { order = append(order, "a"); return errA }),
		nil,
		ActionFunc(func(context.Context) error { order = append(order, "b"); return nil }),
		ActionFunc(func(context.Context) error { order = append(order, "c"); return errC }),
	)

	err := chain.Fire(context.Background())
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v, want [a b c]", order)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("error = %v, want both failures joined", err)
	}
}

func TestChain_Empty(t *testing.T) {
	if err := Chain().Fire(context.Background()); err != nil {
		t.Errorf("empty chain returned %v", err)
	}
}
