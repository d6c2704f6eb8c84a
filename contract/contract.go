//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"secure-chat/domain"
)

// Channel is an established secure duplex stream.
// Writes are serialized by the implementation, Close is safe to call many times.
type Channel interface {
	ID() string
	RemoteAddr() string
	PeerIdentity() string
	ReadLine() (string, error)
	Write(p []byte) error
	Close() error
}

// Entry is one registry member as seen by a snapshot.
type Entry struct {
	ID      string
	Channel Channel
}

type IRegistry interface {
	Add(id string, channel Channel) bool
	Remove(id string) bool
	Get(id string) (Channel, bool)
	Snapshot() []Entry
	Len() int
	CloseAll()
}

type IBroadcaster interface {
	Publish(msg domain.Message, excludeID string) domain.FanoutReport
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker is a background task run by the supervisor, which recovers its panics.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName is the worker's type name, used in supervision logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e domain.SessionEvent) error
}

// SessionRecorder accepts audit events without ever blocking the caller.
type SessionRecorder interface {
	Record(e domain.SessionEvent)
}
