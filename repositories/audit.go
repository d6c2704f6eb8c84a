//go:generate go run go.uber.org/mock/mockgen -source=audit.go -destination=../mocks/mock_audit_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"secure-chat/domain"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const auditPrefix = "audit:"

type IAuditRepository interface {
	Store(evt domain.SessionEvent) error
	List(cursor *string) ([]domain.SessionEvent, *string, error)
}

// AuditRepository keeps session lifecycle events in BadgerDB.
type AuditRepository struct {
	db           *badger.DB
	log          *slog.Logger
	limitRecords *int
}

func NewAuditRepository(db *badger.DB, log *slog.Logger, limitRecords *int) AuditRepository {
	return AuditRepository{db: db, log: log, limitRecords: limitRecords}
}

// Store persists evt under "audit:{timestamp_padded}:{uuid}".
// The 19-digit padding keeps keys in chronological order, the uuid separates
// events recorded in the same nanosecond.
func (r AuditRepository) Store(evt domain.SessionEvent) error {
	key := fmt.Sprintf("%s%019d:%s", auditPrefix, evt.At.UnixNano(), evt.ID)
	record, err := toRecord(evt)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(record)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// List returns events newest first, starting after cursor when given.
// The returned cursor points at the last event read, pass it back for the next page.
func (r AuditRepository) List(cursor *string) ([]domain.SessionEvent, *string, error) {
	var values [][]byte
	var lastKey string
	prefix := []byte(auditPrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append([]byte(auditPrefix), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(auditPrefix), []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitRecords != nil && len(values) == *r.limitRecords {
				r.log.Debug(fmt.Sprintf("Maximum of %d audit records reached", *r.limitRecords))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	events := make([]domain.SessionEvent, 0, len(values))
	for _, value := range values {
		var record structpb.Struct
		if err := proto.Unmarshal(value, &record); err != nil {
			return nil, nil, err
		}
		evt, err := fromRecord(&record)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, evt)
	}
	return events, &lastKey, nil
}

func toRecord(evt domain.SessionEvent) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":          evt.ID.String(),
		"type":        string(evt.Type),
		"conn_id":     evt.ConnID,
		"username":    evt.Username.String(),
		"identity":    evt.Identity,
		"remote_addr": evt.RemoteAddr,
		"reason":      evt.Reason,
		// nanoseconds overflow a float64 mantissa, keep them as text
		"at": strconv.FormatInt(evt.At.UnixNano(), 10),
	})
}

func fromRecord(record *structpb.Struct) (domain.SessionEvent, error) {
	fields := record.GetFields()
	str := func(name string) string { return fields[name].GetStringValue() }

	id, err := uuid.Parse(str("id"))
	if err != nil {
		return domain.SessionEvent{}, err
	}
	nanos, err := strconv.ParseInt(str("at"), 10, 64)
	if err != nil {
		return domain.SessionEvent{}, err
	}
	return domain.SessionEvent{
		ID:         id,
		Type:       domain.SessionEventType(str("type")),
		ConnID:     str("conn_id"),
		Username:   domain.Username(str("username")),
		Identity:   str("identity"),
		RemoteAddr: str("remote_addr"),
		Reason:     str("reason"),
		At:         time.Unix(0, nanos).UTC(),
	}, nil
}
