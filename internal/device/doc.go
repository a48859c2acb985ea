// Package device gates every physical action of a work-cell.
//
// A Device binds one registry document, one capability set and the
// execution recorder. Gate is the only path from a workflow to the
// hardware:
//
//	res := dev.Gate(ctx, "Pick", func(ctx context.Context, caps capability.Set) error {
//	    return cell.LoadPiece(ctx)
//	})
//	if !res.Success {
//	    // res.Err carries the cause, res.Kind() its short name
//	}
//
// Gate refuses while the device is in Error, checks the service is
// configured, moves Idle to Active, runs the action, writes exactly one
// execution record and returns to Idle. Error is only left by an explicit
// SetState(Idle).
package device
