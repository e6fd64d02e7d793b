package transport

import (
	"testing"
	"time"

	"github.com/leadharvest/leadharvest/internal/domain"
)

func TestDecide_CaptchaNeverRetried(t *testing.T) {
	d := Decide(0, 3, time.Second, Outcome{Verdict: domain.VerdictCaptcha, StatusCode: 200})
	if d.Retry {
		t.Fatal("captcha outcome must not be retried")
	}
}

func TestDecide_ExhaustsAtLimit(t *testing.T) {
	d := Decide(2, 3, time.Second, Outcome{Verdict: domain.VerdictRateLimited, StatusCode: 429})
	if d.Retry {
		t.Fatal("attempt at limit must not retry")
	}
}

func TestDecide_BlockedBackoffDoubled(t *testing.T) {
	base := 2 * time.Second

	plain := Decide(1, 4, base, Outcome{StatusCode: 500})
	blocked := Decide(1, 4, base, Outcome{Verdict: domain.VerdictRateLimited, StatusCode: 429})

	if !plain.Retry || !blocked.Retry {
		t.Fatal("both outcomes should retry")
	}
	if plain.After != base*2 {
		t.Errorf("plain backoff = %v, want %v", plain.After, base*2)
	}
	if blocked.After != base*4 {
		t.Errorf("blocked backoff = %v, want %v", blocked.After, base*4)
	}
}

func TestDecide_BackoffGrows(t *testing.T) {
	base := time.Second
	var prev time.Duration
	for attempt := 0; attempt < 3; attempt++ {
		d := Decide(attempt, 5, base, Outcome{NetErr: true})
		if !d.Retry {
			t.Fatalf("attempt %d should retry", attempt)
		}
		if d.After <= prev {
			t.Errorf("backoff not increasing: attempt %d gave %v after %v", attempt, d.After, prev)
		}
		prev = d.After
	}
}

func TestDecide_NonBlockingStatusRetried(t *testing.T) {
	d := Decide(0, 3, time.Second, Outcome{StatusCode: 503})
	if !d.Retry {
		t.Fatal("5xx should be retried")
	}
}
