package dispatchx

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// CommitRecord captures one committed transition: its position in the commit
// sequence, the state that resulted, and when it was installed.
type CommitRecord[S any] struct {
	Seq   uint64
	State S
	At    time.Time
}

// Archiver is a durable sink for commit records, typically backed by a
// store.Log. The runtime delivers records in commit order from a single
// goroutine and logs failures; a failed archive never affects the dispatch
// that produced it.
type Archiver[S any] interface {
	Archive(rec CommitRecord[S]) error
}

// ArchiverFunc adapts a function to the Archiver interface.
type ArchiverFunc[S any] func(rec CommitRecord[S]) error

// Archive implements Archiver.
func (f ArchiverFunc[S]) Archive(rec CommitRecord[S]) error { return f(rec) }

// Publisher forwards commit records to an observer: a channel, a message
// broker, a metrics pipeline. Like archiving, publishing is fire-and-forget
// from the dispatcher's point of view.
type Publisher[S any] interface {
	Publish(rec CommitRecord[S]) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc[S any] func(rec CommitRecord[S]) error

// Publish implements Publisher.
func (f PublisherFunc[S]) Publish(rec CommitRecord[S]) error { return f(rec) }

// ErrSlowConsumer reports a commit record dropped because a publisher's
// buffer was full.
var ErrSlowConsumer = errors.New("dispatchx: publisher buffer full, record dropped")

// MultiPublisher fans each record out to every publisher in turn. All
// publishers see the record even when an earlier one fails; the errors come
// back joined.
func MultiPublisher[S any](pubs ...Publisher[S]) Publisher[S] {
	return PublisherFunc[S](func(rec CommitRecord[S]) error {
		var errs []error
		for _, pub := range pubs {
			if pub == nil {
				continue
			}
			if err := pub.Publish(rec); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// ChannelPublisher delivers commit records on a buffered channel without
// ever blocking the archive loop. When the channel is full the record is
// dropped and Publish returns ErrSlowConsumer.
type ChannelPublisher[S any] struct {
	C chan CommitRecord[S]
}

// NewChannelPublisher builds a ChannelPublisher with the given buffer.
// Buffers below one are raised to one.
func NewChannelPublisher[S any](buffer int) *ChannelPublisher[S] {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelPublisher[S]{C: make(chan CommitRecord[S], buffer)}
}

// Publish implements Publisher.
func (p *ChannelPublisher[S]) Publish(rec CommitRecord[S]) error {
	select {
	case p.C <- rec:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// archiveLoop drains commit records to the archiver and publisher. One
// goroutine per runtime, so records arrive downstream in commit order.
func (r *Runtime[S]) archiveLoop() {
	defer close(r.archiveDone)
	for rec := range r.archiveCh {
		if r.archiver != nil {
			if err := r.archiver.Archive(rec); err != nil {
				r.log.Error("archive failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
			}
		}
		if r.publisher != nil {
			if err := r.publisher.Publish(rec); err != nil {
				r.log.Warn("publish failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
			}
		}
	}
}
