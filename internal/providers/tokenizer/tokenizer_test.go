package tokenizer

import "testing"

func TestCount_Basic(t *testing.T) {
	n, err := Count("hello world")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n <= 0 {
		t.Errorf("expected a positive token count, got %d", n)
	}
}

func TestCountMessages_MonotonicInContentLength(t *testing.T) {
	short, err := CountMessages([]Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	long, err := CountMessages([]Message{{Role: "user", Content: "hi, this is a much longer message with many more words in it"}})
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if long <= short {
		t.Errorf("expected longer content to cost more tokens: short=%d long=%d", short, long)
	}
}

func TestCountMessages_Empty(t *testing.T) {
	n, err := CountMessages(nil)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if n != 3 {
		t.Errorf("expected the 3-token reply primer for zero messages, got %d", n)
	}
}
