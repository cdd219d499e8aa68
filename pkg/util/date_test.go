package util

import (
	"testing"
	"time"
)

func TestFromMillisSecondsHeuristic(t *testing.T) {
	sec := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got := FromMillis(sec)
	if got.Unix() != sec {
		t.Fatalf("seconds input not scaled: %v", got)
	}
	ms := sec * 1000
	got = FromMillis(ms)
	if got.UnixMilli() != ms {
		t.Fatalf("millis input mangled: %v", got)
	}
}

func TestNormalizePair(t *testing.T) {
	if got := NormalizePair("btc/usdt"); got != "BTC/USD" {
		t.Fatalf("unexpected pair %q", got)
	}
	if got := NormalizePair("ETH/USD"); got != "ETH/USD" {
		t.Fatalf("unexpected pair %q", got)
	}
}

func TestSplitPair(t *testing.T) {
	base, quote, ok := SplitPair("eth/usd")
	if !ok || base != "ETH" || quote != "USD" {
		t.Fatalf("unexpected split %q %q %v", base, quote, ok)
	}
	if _, _, ok := SplitPair("ETHUSD"); ok {
		t.Fatalf("expected not ok for missing separator")
	}
}
