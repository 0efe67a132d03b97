package observe_test

import (
	"context"
	"testing"

	"github.com/aponysus/callscope/observe"
)

func TestNoopObserver_HandlesRecords(t *testing.T) {
	obs := observe.NoopObserver{}
	obs.OnRecord(context.Background(), &observe.Record{LogPoint: observe.LogPointJob})
	obs.OnRecord(context.Background(), nil)
}

func TestMultiObserver_FansOut(t *testing.T) {
	var got []string
	a := observe.ObserverFunc(func(_ context.Context, rec *observe.Record) { got = append(got, "a:"+rec.Action) })
	b := observe.ObserverFunc(func(_ context.Context, rec *observe.Record) { got = append(got, "b:"+rec.Action) })

	m := observe.MultiObserver{Observers: []observe.Observer{a, nil, b}}
	m.OnRecord(context.Background(), &observe.Record{Action: "get"})

	if len(got) != 2 || got[0] != "a:get" || got[1] != "b:get" {
		t.Fatalf("got %v, want [a:get b:get]", got)
	}
}
