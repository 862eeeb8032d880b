package models

import (
	"fmt"
	"strings"
	"time"
)

type SequenceKind string

const (
	SequenceTransaction SequenceKind = "T"
	SequenceFolio       SequenceKind = "F"
	SequenceSip         SequenceKind = "SIP"
	SequenceSwp         SequenceKind = "SWP"
	SequenceStp         SequenceKind = "STP"
)

var SequenceKinds = []SequenceKind{SequenceTransaction, SequenceFolio, SequenceSip, SequenceSwp, SequenceStp}

func SequenceForPlan(kind PlanKind) SequenceKind {
	switch kind {
	case PlanKindSwp:
		return SequenceSwp
	case PlanKindStp:
		return SequenceStp
	default:
		return SequenceSip
	}
}

// SequenceTicket rows only exist to draw AUTO_INCREMENT values for the
// human-readable ids (T001, F001, SIP001 ...). Each kind has its own table.
// The insert runs on the caller's transaction; InnoDB releases the
// auto-increment lock at statement end, so a rolled back unit of work leaves a gap.
type SequenceTicket struct {
	ID        int64     `gorm:"primary_key;autoIncrement"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (k SequenceKind) TicketTable() string {
	return "sequence_tickets_" + strings.ToLower(string(k))
}

func FormatSequence(kind SequenceKind, n int64) string {
	return fmt.Sprintf("%s%03d", kind, n)
}
