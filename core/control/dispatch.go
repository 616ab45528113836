package control

import (
	"context"

	"github.com/sflip/radiopi/core/errors"
	"github.com/sflip/radiopi/internal/logging"
)

// Outcome is the settled result of handling one form submission.
type Outcome struct {
	Action Action  // Nil when nothing was dispatched
	Result *Result // Nil when no invocation happened
	// Err is the rejection, timeout, start failure or non-zero exit.
	Err error
	// Errors holds the output lines of the failing invocation. It is empty
	// for rejected input, which never reaches the control program.
	Errors []string
}

// Idle reports whether the submission carried no action.
func (o *Outcome) Idle() bool {
	return o.Action == nil && o.Err == nil
}

// Rejected returns the validation or unknown-action error, if any.
func (o *Outcome) Rejected() error {
	if o.Err != nil && o.Result == nil && errors.Is(o.Err, errors.ErrInvalidInput) {
		return o.Err
	}
	return nil
}

// ShouldRedirect reports whether the submission settled cleanly, so the
// client may be sent back to a plain GET of the same page.
func (o *Outcome) ShouldRedirect() bool {
	return !o.Idle() && o.Err == nil
}

// Messages returns the lines to show the user. A non-zero exit shows its
// raw output; any other failure leads with its error text.
func (o *Outcome) Messages() []string {
	if o.Err == nil {
		return nil
	}
	if errors.Is(o.Err, errors.ErrInvocation) && len(o.Errors) > 0 {
		return o.Errors
	}
	return append([]string{o.Err.Error()}, o.Errors...)
}

// Dispatcher maps form submissions onto control program invocations.
type Dispatcher struct {
	runner   Runner
	features Features
}

// NewDispatcher creates a Dispatcher over runner restricted to features.
func NewDispatcher(runner Runner, features Features) *Dispatcher {
	return &Dispatcher{runner: runner, features: features}
}

// Features returns the feature set the dispatcher accepts actions for.
func (d *Dispatcher) Features() Features { return d.features }

// Dispatch parses the submitted action and runs it. An empty action field
// yields an idle Outcome without invoking anything.
func (d *Dispatcher) Dispatch(ctx context.Context, form FormValues) *Outcome {
	name := form.Get(FieldAction)
	if name == "" {
		return &Outcome{}
	}
	action, err := ParseAction(form, d.features)
	if err != nil {
		logging.ActionDispatched(ctx, name, err)
		return &Outcome{Err: err}
	}
	return d.Run(ctx, action)
}

// Run performs exactly one invocation for action.
func (d *Dispatcher) Run(ctx context.Context, action Action) *Outcome {
	out := &Outcome{Action: action}
	result, err := d.runner.Invoke(ctx, action.Args()...)
	out.Result = result

	switch {
	case err != nil:
		out.Err = err
		if result != nil {
			out.Errors = append(out.Errors, result.Lines...)
		}
	case !result.Succeeded():
		out.Err = result.Err()
		out.Errors = append(out.Errors, result.Lines...)
	}

	logging.ActionDispatched(ctx, action.Name(), out.Err)
	return out
}
