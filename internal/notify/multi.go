package notify

import (
	"context"
	"errors"
	"sync"

	"salonbook/backend/internal/service/booking"
)

// Multi delivers to every notifier concurrently and joins their errors. Each sink gets
// the caller's full deadline, so a hung sink cannot starve the others.
type Multi []booking.Notifier

func (m Multi) Notify(ctx context.Context, ev booking.Event) error {
	errs := make([]error, len(m))
	var wg sync.WaitGroup
	for i, n := range m {
		i, n := i, n
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = n.Notify(ctx, ev)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
