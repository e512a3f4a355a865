package memremote

import "context"

// Gate holds one intercepted call until released.
type Gate struct {
	entered chan struct{}
	release chan error
}

// Entered is closed once the held call has reached the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets the held call continue. A non-nil err fails it.
// Only the first Release has an effect.
func (g *Gate) Release(err error) {
	select {
	case g.release <- err:
	default:
	}
}

func (g *Gate) wait(ctx context.Context) error {
	close(g.entered)
	select {
	case err := <-g.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
