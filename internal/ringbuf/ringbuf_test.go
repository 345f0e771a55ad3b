// ABOUTME: Tests for the rolling chunk buffer
// ABOUTME: Covers eviction, position clamping, id assignment, resizing and waits
package ringbuf

import (
	"context"
	"sync"
	"testing"
	"time"
)

func chunk(v byte) []byte {
	return []byte{v, v}
}

func TestLenIsMinOfAppendedAndCapacity(t *testing.T) {
	tests := []struct {
		capacity int
		appended int
		want     int
	}{
		{capacity: 4, appended: 0, want: 0},
		{capacity: 4, appended: 3, want: 3},
		{capacity: 4, appended: 4, want: 4},
		{capacity: 4, appended: 10, want: 4},
		{capacity: 0, appended: 5, want: 1},
	}

	for _, tt := range tests {
		b := New(tt.capacity)
		for i := 0; i < tt.appended; i++ {
			b.Append(chunk(byte(i)))
		}
		if got := b.Len(); got != tt.want {
			t.Errorf("cap %d after %d appends: Len() = %d, want %d", tt.capacity, tt.appended, got, tt.want)
		}
	}
}

func TestIdsIncrementByOne(t *testing.T) {
	b := New(3)
	if b.Newest() != -1 {
		t.Fatalf("expected newest -1 on empty buffer, got %d", b.Newest())
	}
	for i := int64(0); i < 10; i++ {
		if id := b.Append(chunk(byte(i))); id != i {
			t.Fatalf("append %d returned id %d", i, id)
		}
	}
}

func TestPeek(t *testing.T) {
	b := New(5)
	if c, id := b.Peek(1); c != nil || id != -1 {
		t.Fatalf("empty peek = %v, %d", c, id)
	}

	for i := 0; i < 8; i++ {
		b.Append(chunk(byte(i)))
	}

	tests := []struct {
		pos    int
		wantV  byte
		wantID int64
	}{
		{pos: 1, wantV: 7, wantID: 7},
		{pos: 3, wantV: 5, wantID: 5},
		{pos: 5, wantV: 3, wantID: 3},
		{pos: 9, wantV: 3, wantID: 3},
		{pos: 0, wantV: 7, wantID: 7},
		{pos: -4, wantV: 7, wantID: 7},
	}
	for _, tt := range tests {
		c, id := b.Peek(tt.pos)
		if c[0] != tt.wantV || id != tt.wantID {
			t.Errorf("Peek(%d) = %d/%d, want %d/%d", tt.pos, c[0], id, tt.wantV, tt.wantID)
		}
	}
}

func TestAt(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Append(chunk(byte(i)))
	}
	if _, ok := b.At(1); ok {
		t.Error("id 1 should be evicted")
	}
	if c, ok := b.At(2); !ok || c[0] != 2 {
		t.Error("id 2 should be the oldest chunk")
	}
	if _, ok := b.At(5); ok {
		t.Error("id 5 does not exist yet")
	}
}

func TestLocate(t *testing.T) {
	b := New(3)
	if c, id, pos := b.Locate(0); c != nil || id != -1 || pos != 0 {
		t.Errorf("empty buffer: got %v, %d, %d", c, id, pos)
	}
	for i := 0; i < 5; i++ {
		b.Append(chunk(byte(i)))
	}

	tests := []struct {
		name    string
		id      int64
		wantID  int64
		wantPos int
	}{
		{"newest", 4, 4, 1},
		{"held", 3, 3, 2},
		{"oldest", 2, 2, 3},
		{"evicted", 0, 2, 3},
		{"not yet appended", 9, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, id, pos := b.Locate(tt.id)
			if id != tt.wantID || pos != tt.wantPos || c[0] != byte(tt.wantID) {
				t.Errorf("Locate(%d) = chunk %d, id %d, pos %d; want id %d, pos %d",
					tt.id, c[0], id, pos, tt.wantID, tt.wantPos)
			}
		})
	}
}

func TestLocateConsistentUnderAppend(t *testing.T) {
	b := New(64)
	stamp := func(id int64) []byte { return []byte{byte(id), byte(id >> 8)} }
	b.Append(stamp(0))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for id := int64(1); id < 5000; id++ {
			b.Append(stamp(id))
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		want := b.Newest() - 10
		c, id, _ := b.Locate(want)
		if string(c) != string(stamp(id)) {
			t.Fatalf("Locate returned chunk %v for id %d", c, id)
		}
		if id < want {
			t.Fatalf("Locate(%d) returned older id %d", want, id)
		}
	}
}

func TestGrowAndShrink(t *testing.T) {
	b := New(4)
	for i := 0; i < 6; i++ {
		b.Append(chunk(byte(i)))
	}

	if !b.Grow(4, 10) || b.Cap() != 8 {
		t.Fatalf("expected cap 8 after grow, got %d", b.Cap())
	}
	if b.Len() != 4 {
		t.Fatalf("grow must keep held chunks, Len = %d", b.Len())
	}
	if !b.Grow(4, 10) || b.Cap() != 10 {
		t.Fatalf("expected grow bounded at 10, got %d", b.Cap())
	}
	if b.Grow(4, 10) {
		t.Error("grow past max should report false")
	}

	for i := 6; i < 16; i++ {
		b.Append(chunk(byte(i)))
	}
	if !b.Shrink(4, 2) || b.Cap() != 6 || b.Len() != 6 {
		t.Fatalf("after shrink cap=%d len=%d", b.Cap(), b.Len())
	}
	if c, id := b.Peek(1); c[0] != 15 || id != 15 {
		t.Errorf("newest after shrink = %d/%d", c[0], id)
	}
	if c, id := b.Peek(6); c[0] != 10 || id != 10 {
		t.Errorf("oldest after shrink = %d/%d", c[0], id)
	}
	if !b.Shrink(8, 2) || b.Cap() != 2 {
		t.Fatalf("shrink should floor at min, cap=%d", b.Cap())
	}
	if b.Shrink(1, 2) {
		t.Error("shrink at min should report false")
	}
}

func TestAppendAfterResizeWraps(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Append(chunk(byte(i)))
	}
	b.SetCapacity(4)
	for i := 5; i < 12; i++ {
		b.Append(chunk(byte(i)))
	}
	for pos := 1; pos <= 4; pos++ {
		c, id := b.Peek(pos)
		want := byte(12 - pos)
		if c[0] != want || id != int64(want) {
			t.Errorf("Peek(%d) = %d/%d, want %d", pos, c[0], id, want)
		}
	}
}

func TestWaitFor(t *testing.T) {
	b := New(8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.WaitFor(ctx, 3)
	}()

	for i := 0; i < 3; i++ {
		time.Sleep(5 * time.Millisecond)
		b.Append(chunk(byte(i)))
	}

	if err := <-done; err != nil {
		t.Fatalf("WaitFor returned %v", err)
	}
}

func TestWaitNewerCancel(t *testing.T) {
	b := New(2)
	b.Append(chunk(1))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var err error
	wg.Add(1)
	go func() {
		defer wg.Done()
		err = b.WaitNewer(ctx, 0)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWaitNewerReturnsImmediately(t *testing.T) {
	b := New(2)
	b.Append(chunk(1))
	b.Append(chunk(2))
	if err := b.WaitNewer(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
