package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskpace/pkg/logx"
)

func TestStatusForLatency(t *testing.T) {
	t.Parallel()

	cases := []struct {
		latency time.Duration
		want    Status
	}{
		{0, StatusNone},
		{-time.Millisecond, StatusNone},
		{10 * time.Millisecond, StatusExcellent},
		{60 * time.Millisecond, StatusExcellent},
		{61 * time.Millisecond, StatusGood},
		{200 * time.Millisecond, StatusGood},
		{350 * time.Millisecond, StatusPoor},
		{5 * time.Second, StatusPoor},
	}
	for _, tc := range cases {
		if got := statusForLatency(tc.latency); got != tc.want {
			t.Errorf("statusForLatency(%v) = %v, want %v", tc.latency, got, tc.want)
		}
	}
}

func TestCheckMapsErrorToNone(t *testing.T) {
	t.Parallel()

	p := New(logx.Nop())
	defer p.Close()
	p.measure = func(context.Context) (time.Duration, error) {
		return 0, errors.New("network is down")
	}

	if got := p.Check(context.Background()); got != StatusNone {
		t.Fatalf("Check = %v, want StatusNone", got)
	}
	if p.Last() != StatusNone {
		t.Fatalf("Last = %v, want StatusNone", p.Last())
	}
}

func TestCheckPublishesOnlyChanges(t *testing.T) {
	t.Parallel()

	p := New(logx.Nop())
	defer p.Close()

	latency := 10 * time.Millisecond
	p.measure = func(context.Context) (time.Duration, error) { return latency, nil }

	ch, cancel := p.Changes()
	defer cancel()

	p.Check(context.Background()) // excellent
	p.Check(context.Background()) // excellent again, no event
	latency = 300 * time.Millisecond
	p.Check(context.Background()) // poor

	if got := <-ch; got != StatusExcellent {
		t.Fatalf("first change = %v, want excellent", got)
	}
	if got := <-ch; got != StatusPoor {
		t.Fatalf("second change = %v, want poor", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra status: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckHonorsPingTimeout(t *testing.T) {
	t.Parallel()

	p := New(logx.Nop(), WithPingTimeout(20*time.Millisecond))
	defer p.Close()
	p.measure = func(ctx context.Context) (time.Duration, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	start := time.Now()
	if got := p.Check(context.Background()); got != StatusNone {
		t.Fatalf("Check = %v, want StatusNone", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Check did not honor timeout: took %v", elapsed)
	}
}
