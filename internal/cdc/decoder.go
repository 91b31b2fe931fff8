package cdc

import (
	"fmt"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/rs/zerolog/log"
)

// Decoder turns pgoutput protocol messages into Events. RELATION messages
// populate a relation cache keyed by relation id; data messages for an
// unknown relation are skipped. Decoding is pure: replaying the same WAL
// bytes yields the same events.
type Decoder struct {
	relations map[uint32]*pglogrepl.RelationMessage
}

// NewDecoder creates a Decoder with an empty relation cache.
func NewDecoder() *Decoder {
	return &Decoder{relations: make(map[uint32]*pglogrepl.RelationMessage)}
}

// Decode parses one XLogData payload. A nil event with nil error means the
// message was consumed without producing an event (unknown relation, type
// messages, and other protocol noise).
func (d *Decoder) Decode(xld pglogrepl.XLogData) (*Event, error) {
	msg, err := pglogrepl.Parse(xld.WALData)
	if err != nil {
		return nil, fmt.Errorf("parsing pgoutput message: %w", err)
	}
	return d.decodeMessage(msg, xld.WALStart, xld.ServerTime)
}

func (d *Decoder) decodeMessage(msg pglogrepl.Message, lsn pglogrepl.LSN, serverTime time.Time) (*Event, error) {
	switch m := msg.(type) {
	case *pglogrepl.RelationMessage:
		d.relations[m.RelationID] = m
		return &Event{
			Operation: OpRelation,
			Schema:    m.Namespace,
			Table:     m.RelationName,
			LSN:       lsn,
			Timestamp: serverTime,
		}, nil

	case *pglogrepl.BeginMessage:
		return &Event{
			Operation: OpBegin,
			LSN:       m.FinalLSN,
			Timestamp: m.CommitTime,
		}, nil

	case *pglogrepl.CommitMessage:
		return &Event{
			Operation: OpCommit,
			LSN:       m.CommitLSN,
			Timestamp: m.CommitTime,
		}, nil

	case *pglogrepl.InsertMessage:
		rel, ok := d.relations[m.RelationID]
		if !ok {
			log.Warn().Uint32("relation_id", m.RelationID).Msg("Insert for unknown relation, skipping")
			return nil, nil
		}
		return &Event{
			Operation: OpInsert,
			Schema:    rel.Namespace,
			Table:     rel.RelationName,
			LSN:       lsn,
			Timestamp: serverTime,
			New:       decodeTuple(rel, m.Tuple),
		}, nil

	case *pglogrepl.UpdateMessage:
		rel, ok := d.relations[m.RelationID]
		if !ok {
			log.Warn().Uint32("relation_id", m.RelationID).Msg("Update for unknown relation, skipping")
			return nil, nil
		}
		ev := &Event{
			Operation: OpUpdate,
			Schema:    rel.Namespace,
			Table:     rel.RelationName,
			LSN:       lsn,
			Timestamp: serverTime,
			New:       decodeTuple(rel, m.NewTuple),
		}
		// The old tuple arrives as K (key columns) or O (full row) depending
		// on the table's REPLICA IDENTITY.
		if m.OldTuple != nil {
			ev.Old = decodeTuple(rel, m.OldTuple)
		}
		return ev, nil

	case *pglogrepl.DeleteMessage:
		rel, ok := d.relations[m.RelationID]
		if !ok {
			log.Warn().Uint32("relation_id", m.RelationID).Msg("Delete for unknown relation, skipping")
			return nil, nil
		}
		return &Event{
			Operation: OpDelete,
			Schema:    rel.Namespace,
			Table:     rel.RelationName,
			LSN:       lsn,
			Timestamp: serverTime,
			Old:       decodeTuple(rel, m.OldTuple),
		}, nil

	default:
		// Type, Origin, Truncate and friends carry nothing we serve.
		return nil, nil
	}
}

// decodeTuple maps tuple columns to catalog attribute names. Tag 'n' is
// NULL, 't' is text data, 'u' is an unchanged TOAST value and is omitted.
func decodeTuple(rel *pglogrepl.RelationMessage, tuple *pglogrepl.TupleData) map[string]any {
	if tuple == nil {
		return nil
	}
	row := make(map[string]any, len(tuple.Columns))
	for i, col := range tuple.Columns {
		if i >= len(rel.Columns) {
			break
		}
		name := rel.Columns[i].Name
		switch col.DataType {
		case pglogrepl.TupleDataTypeNull:
			row[name] = nil
		case pglogrepl.TupleDataTypeText:
			row[name] = string(col.Data)
		case pglogrepl.TupleDataTypeToast:
			// unchanged, omit
		}
	}
	return row
}
