package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock drives the limiter deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(sweepThreshold int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(sweepThreshold, zerolog.Nop())
	l.now = func() time.Time { return clock.now }
	return l, clock
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l, _ := newTestLimiter(0)
	rule := Rule{Capacity: 60, Window: time.Minute}

	for i := 0; i < 60; i++ {
		if d := l.Check("ip:1.2.3.4:/reviews/vote", rule); !d.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}

	d := l.Check("ip:1.2.3.4:/reviews/vote", rule)
	if d.Allowed {
		t.Fatal("request 61 allowed, want rejected")
	}
	// One token refills every W/C = 1s.
	if d.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", d.RetryAfter)
	}
}

func TestLimiter_RefillAdmitsExactlyOne(t *testing.T) {
	l, clock := newTestLimiter(0)
	rule := Rule{Capacity: 60, Window: time.Minute}
	key := "ip:1.2.3.4:/reviews/vote"

	for i := 0; i < 60; i++ {
		l.Check(key, rule)
	}
	if d := l.Check(key, rule); d.Allowed {
		t.Fatal("bucket should be empty")
	}

	clock.advance(time.Second)
	if d := l.Check(key, rule); !d.Allowed {
		t.Fatal("refilled request rejected, want allowed")
	}
	if d := l.Check(key, rule); d.Allowed {
		t.Fatal("second request after one refill allowed, want rejected")
	}
}

// A rejection must not consume tokens: repeated rejected checks do not push
// the next admission further away.
func TestLimiter_RejectionConsumesNothing(t *testing.T) {
	l, clock := newTestLimiter(0)
	rule := Rule{Capacity: 2, Window: 2 * time.Second}
	key := "ip:1.2.3.4:/x"

	l.Check(key, rule)
	l.Check(key, rule)
	for i := 0; i < 10; i++ {
		if d := l.Check(key, rule); d.Allowed {
			t.Fatalf("check %d allowed on empty bucket", i)
		}
	}

	clock.advance(time.Second)
	if d := l.Check(key, rule); !d.Allowed {
		t.Fatal("refill after repeated rejections did not admit")
	}
}

// Tokens never exceed capacity: after a long idle stretch the admissible
// burst is still exactly the capacity.
func TestLimiter_TokensCappedAtCapacity(t *testing.T) {
	l, clock := newTestLimiter(0)
	rule := Rule{Capacity: 5, Window: time.Second}
	key := "ip:1.2.3.4:/x"

	l.Check(key, rule)
	clock.advance(time.Hour)

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Check(key, rule).Allowed {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("burst after idle admitted %d, want capacity 5", allowed)
	}
}

func TestLimiter_RetryAfterScalesWithRate(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want time.Duration
	}{
		{"60 per minute", Rule{Capacity: 60, Window: time.Minute}, time.Second},
		{"10 per minute", Rule{Capacity: 10, Window: time.Minute}, 6 * time.Second},
		{"2 per minute", Rule{Capacity: 2, Window: time.Minute}, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(0)
			key := "ip:1.2.3.4:/x"
			for i := 0; i < tt.rule.Capacity; i++ {
				l.Check(key, tt.rule)
			}
			d := l.Check(key, tt.rule)
			if d.Allowed {
				t.Fatal("want rejection")
			}
			if d.RetryAfter != tt.want {
				t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, tt.want)
			}
		})
	}
}

func TestLimiter_IndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(0)
	rule := Rule{Capacity: 1, Window: time.Minute}

	if d := l.Check(Key("ip", "1.2.3.4", "/vote"), rule); !d.Allowed {
		t.Fatal("first key rejected")
	}
	if d := l.Check(Key("ip", "5.6.7.8", "/vote"), rule); !d.Allowed {
		t.Fatal("distinct identity shares a bucket")
	}
	if d := l.Check(Key("user", "1.2.3.4", "/vote"), rule); !d.Allowed {
		t.Fatal("distinct scope shares a bucket")
	}
	if d := l.Check(Key("ip", "1.2.3.4", "/comment"), rule); !d.Allowed {
		t.Fatal("distinct route shares a bucket")
	}
}

func TestLimiter_SweepRemovesIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(10)
	rule := Rule{Capacity: 5, Window: time.Second}

	for i := 0; i < 20; i++ {
		l.Check(fmt.Sprintf("ip:10.0.0.%d:/x", i), rule)
	}
	if l.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", l.Len())
	}

	// Past 10 windows of idleness, the next check over-threshold sweeps.
	clock.advance(11 * time.Second)
	l.Check("ip:fresh:/x", rule)

	if l.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1 (the fresh bucket)", l.Len())
	}
}

func TestLimiter_NoSweepBelowThreshold(t *testing.T) {
	l, clock := newTestLimiter(100)
	rule := Rule{Capacity: 5, Window: time.Second}

	for i := 0; i < 20; i++ {
		l.Check(fmt.Sprintf("ip:10.0.0.%d:/x", i), rule)
	}
	clock.advance(time.Hour)
	l.Check("ip:fresh:/x", rule)

	if l.Len() != 21 {
		t.Errorf("Len() = %d, want 21 (idle buckets kept below threshold)", l.Len())
	}
}
