package fanout

import "context"

// FanOut distributes values from in over n output channels round-robin.
// All outputs are closed once in is drained or ctx is done.
func FanOut[T any](ctx context.Context, in <-chan T, n int) []<-chan T {
	if n <= 0 {
		n = 1
	}
	outs := make([]chan T, n)
	for i := 0; i < n; i++ {
		outs[i] = make(chan T)
	}

	go func() {
		defer func() {
			for _, ch := range outs {
				close(ch)
			}
		}()

		for i := 0; ; i++ {
			select {
			case v, ok := <-in:
				if !ok {
					return
				}
				select {
				case outs[i%n] <- v:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	ro := make([]<-chan T, n)
	for i, ch := range outs {
		ro[i] = ch
	}
	return ro
}
