package workflow

import (
	"context"

	"github.com/viralforge/fieldcapture/internal/ports"
)

// Perform executes one call. It never touches machine state, so it may run
// on any goroutine; the Result goes back to the owner's Apply.
func Perform(ctx context.Context, backend ports.Backend, call Call) Result {
	reply, err := backend.Call(ctx, call.Action, call.Params)
	return Result{Call: call, Reply: reply, Err: err}
}

// Driver runs a machine synchronously: every call is performed and applied
// in order until no follow-up remains.
type Driver struct {
	Machine *Machine
	Backend ports.Backend
}

func NewDriver(machine *Machine, backend ports.Backend) *Driver {
	return &Driver{Machine: machine, Backend: backend}
}

// Run performs calls and their follow-ups breadth first.
func (d *Driver) Run(ctx context.Context, calls []Call) {
	queue := append([]Call(nil), calls...)
	for len(queue) > 0 {
		call := queue[0]
		queue = queue[1:]
		queue = append(queue, d.Machine.Apply(Perform(ctx, d.Backend, call))...)
	}
}

// Do runs an intent and drains its effects. The intent's own error is
// returned; backend failures surface in the state messages.
func (d *Driver) Do(ctx context.Context, intent func(*Machine) ([]Call, error)) error {
	calls, err := intent(d.Machine)
	d.Run(ctx, calls)
	return err
}
