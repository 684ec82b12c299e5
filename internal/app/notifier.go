package app

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher recomputes and pushes the current slide set. *broadcast.Hub implements it.
type Publisher interface {
	Publish(ctx context.Context)
}

// LocalNotifier triggers a publish on this process's hub in a detached goroutine, so a
// mutation request returns without waiting for delivery to totems.
type LocalNotifier struct {
	publisher Publisher
	wg        sync.WaitGroup
}

func NewLocalNotifier(publisher Publisher) *LocalNotifier {
	return &LocalNotifier{publisher: publisher}
}

func (n *LocalNotifier) SlidesChanged(ctx context.Context) {
	// The publish outlives the request; WithoutCancel keeps its correlation id.
	pubCtx := context.WithoutCancel(ctx)
	slog.DebugContext(pubCtx, "Slides changed, publishing")

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.publisher.Publish(pubCtx)
	}()
}

// Wait blocks until every publish started so far has finished. Used on shutdown and in tests.
func (n *LocalNotifier) Wait() {
	n.wg.Wait()
}
