package server

import (
	"sync"
	"time"

	"github.com/padraorezende/developer-collection-nft-drop/internal/drop"
)

const noticeBacklog = 32

// NoticeSource is the part of the drop store the server listens to.
type NoticeSource interface {
	SubscribeNotices(fn func(drop.Notice)) (func(), error)
}

type noticeView struct {
	Seq     uint64          `json:"seq"`
	Kind    drop.NoticeKind `json:"kind"`
	Message string          `json:"message"`
	Error   drop.ErrorKind  `json:"error,omitempty"`
	At      time.Time       `json:"at"`
}

// noticeFeed keeps the latest notices so polling clients can show them once.
// Sequence numbers start at 1 and never repeat.
type noticeFeed struct {
	mu    sync.Mutex
	seq   uint64
	items []noticeView
	limit int
	now   func() time.Time
}

func newNoticeFeed(limit int) *noticeFeed {
	return &noticeFeed{limit: limit, now: time.Now}
}

func (f *noticeFeed) push(n drop.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.items = append(f.items, noticeView{
		Seq:     f.seq,
		Kind:    n.Kind,
		Message: n.Message,
		Error:   n.Error,
		At:      f.now().UTC(),
	})
	if over := len(f.items) - f.limit; over > 0 {
		f.items = append([]noticeView(nil), f.items[over:]...)
	}
}

// since returns retained notices with Seq > after, oldest first.
func (f *noticeFeed) since(after uint64) []noticeView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []noticeView{}
	for _, item := range f.items {
		if item.Seq > after {
			out = append(out, item)
		}
	}
	return out
}

func (f *noticeFeed) last() *noticeView {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return nil
	}
	item := f.items[len(f.items)-1]
	return &item
}
