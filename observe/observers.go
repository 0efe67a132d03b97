package observe

import "context"

// NoopObserver implements Observer with a no-op method.
type NoopObserver struct{}

func (NoopObserver) OnRecord(context.Context, *Record) {}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rec *Record)

func (f ObserverFunc) OnRecord(ctx context.Context, rec *Record) {
	if f != nil {
		f(ctx, rec)
	}
}

// MultiObserver fans out records to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnRecord(ctx context.Context, rec *Record) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnRecord(ctx, rec)
		}
	}
}
