package events

import (
	"context"
	"hash/fnv"
	"sync"
)

// Handler processes one delivery. The transport acknowledges the delivery once
// Handler returns, whatever it returns, unless the context was cancelled first.
type Handler func(ctx context.Context, msg Message) error

type delivery struct {
	msg Message
	ack func(ctx context.Context, msg Message, handlerErr error)
}

// laneSet fans deliveries out to a fixed number of goroutines. Deliveries that
// share a key always land on the same lane and are handled in arrival order.
type laneSet struct {
	lanes []chan delivery
	wg    sync.WaitGroup
}

func startLanes(ctx context.Context, workers, buffer int, handler Handler) *laneSet {
	if workers <= 0 {
		workers = 1
	}
	ls := &laneSet{lanes: make([]chan delivery, workers)}
	for i := range ls.lanes {
		ch := make(chan delivery, buffer)
		ls.lanes[i] = ch
		ls.wg.Add(1)
		go func() {
			defer ls.wg.Done()
			for d := range ch {
				if ctx.Err() != nil {
					// left unacknowledged; the broker redelivers it
					continue
				}
				err := handler(ctx, d.msg)
				if ctx.Err() != nil {
					continue
				}
				d.ack(ctx, d.msg, err)
			}
		}()
	}
	return ls
}

func (ls *laneSet) laneFor(key string) chan delivery {
	if len(ls.lanes) == 1 {
		return ls.lanes[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return ls.lanes[h.Sum32()%uint32(len(ls.lanes))]
}

// dispatch queues d on its lane. It returns false if ctx ends first.
func (ls *laneSet) dispatch(ctx context.Context, d delivery) bool {
	select {
	case ls.laneFor(d.msg.Key) <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// stop closes every lane and waits for in-flight handlers to return.
func (ls *laneSet) stop() {
	for _, ch := range ls.lanes {
		close(ch)
	}
	ls.wg.Wait()
}
