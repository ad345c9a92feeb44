package list_test

import (
	"testing"

	"hashdb/pkg/list"
)

func TestPushAndPeek(t *testing.T) {
	l := list.NewList[int]()
	if l.PeekHead() != nil || l.PeekTail() != nil {
		t.Fatal("new list should be empty")
	}
	l.PushTail(1)
	l.PushTail(2)
	l.PushHead(0)
	if got := l.PeekHead().GetValue(); got != 0 {
		t.Errorf("expected head 0, got %d", got)
	}
	if got := l.PeekTail().GetValue(); got != 2 {
		t.Errorf("expected tail 2, got %d", got)
	}
}

func TestFind(t *testing.T) {
	l := list.NewList[int]()
	for i := 0; i < 5; i++ {
		l.PushTail(i)
	}
	link := l.Find(func(link *list.Link[int]) bool { return link.GetValue() == 3 })
	if link == nil || link.GetValue() != 3 {
		t.Error("expected to find 3")
	}
	if l.Find(func(link *list.Link[int]) bool { return link.GetValue() == 9 }) != nil {
		t.Error("found a value that was never pushed")
	}
}

func TestPopSelf(t *testing.T) {
	l := list.NewList[int]()
	links := make([]*list.Link[int], 4)
	for i := range links {
		links[i] = l.PushTail(i)
	}
	// Middle, head, tail, then the only remaining link.
	links[2].PopSelf()
	links[0].PopSelf()
	links[3].PopSelf()
	if got := l.PeekHead(); got != links[1] {
		t.Fatal("expected link 1 to remain")
	}
	links[1].PopSelf()
	if l.PeekHead() != nil || l.PeekTail() != nil {
		t.Error("list should be empty after popping every link")
	}
}

func TestMap(t *testing.T) {
	l := list.NewList[int]()
	for i := 0; i < 3; i++ {
		l.PushTail(i)
	}
	sum := 0
	l.Map(func(link *list.Link[int]) { sum += link.GetValue() })
	if sum != 3 {
		t.Errorf("expected sum 3, got %d", sum)
	}
}
