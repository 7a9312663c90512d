package protocol

import (
	"testing"
	"time"
)

func TestTokenBucketAllowsBurstThenBlocks(t *testing.T) {
	tb := newTokenBucket(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !tb.allow() {
			t.Fatalf("request %d within burst was blocked", i)
		}
	}
	if tb.allow() {
		t.Error("request beyond burst should be blocked")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := newTokenBucket(2, 20*time.Millisecond)

	tb.allow()
	tb.allow()
	if tb.allow() {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(30 * time.Millisecond)
	if !tb.allow() {
		t.Error("bucket should have refilled")
	}
}

func TestTokenBucketSanitizesArguments(t *testing.T) {
	tb := newTokenBucket(0, 0)
	if !tb.allow() {
		t.Error("zero-capacity bucket should fall back to capacity 1")
	}
}
