package callstore

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/callforge/switchboard/internal/logging"
)

// Record statuses written to call_records.
const (
	StatusDialing   = "dialing"
	StatusAnswered  = "answered"
	StatusCompleted = "completed"
)

// ErrRecordNotFound is returned by Get for unknown call IDs.
var ErrRecordNotFound = errors.New("call record not found")

// Record is a durable call record.
type Record struct {
	ID           string
	TenantID     string
	AgentID      string
	UserID       string
	LeadID       string
	CampaignID   string
	QueueID      string
	Direction    string
	Status       string
	PhoneNumber  string
	StartTime    time.Time
	AnswerTime   time.Time
	EndTime      time.Time
	DurationSecs int64
}

// op is a single queued write.
type op func(db *DB)

// Recorder dispatches call-record writes on a background goroutine so
// the connection's request/response cycle never waits on the database.
// Write failures are logged and never surfaced to the caller.
type Recorder struct {
	db    *DB
	queue chan op
	done  chan struct{}
	once  sync.Once
	log   *logging.Logger
}

// queueDepth bounds how many writes may be pending before new ones are
// dropped with a warning.
const queueDepth = 256

// NewRecorder starts a recorder draining writes into db.
func NewRecorder(db *DB, log *logging.Logger) *Recorder {
	r := &Recorder{
		db:    db,
		queue: make(chan op, queueDepth),
		done:  make(chan struct{}),
		log:   log.Sub("recorder"),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for o := range r.queue {
		o(r.db)
	}
}

// Close stops accepting writes and blocks until the queue is drained.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}

// enqueue queues a write without blocking. A full queue drops the write.
func (r *Recorder) enqueue(name, callID string, o op) {
	select {
	case r.queue <- o:
	default:
		r.log.Warn().Str("op", name).Str("callId", callID).Msg("write queue full, record dropped")
	}
}

// Insert queues the initial record written at dial time.
func (r *Recorder) Insert(rec Record) {
	r.enqueue("insert", rec.ID, func(db *DB) {
		_, err := db.sql.Exec(
			`INSERT INTO call_records
			 (id, tenant_id, agent_id, user_id, lead_id, campaign_id, queue_id,
			  direction, status, phone_number, start_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.TenantID, rec.AgentID, rec.UserID, rec.LeadID,
			rec.CampaignID, rec.QueueID, rec.Direction, StatusDialing,
			rec.PhoneNumber, rec.StartTime.UTC().Format(time.RFC3339),
		)
		if err != nil {
			r.log.Error().Err(err).Str("callId", rec.ID).Msg("insert failed")
		}
	})
}

// MarkAnswered queues the status update written when a call is answered.
func (r *Recorder) MarkAnswered(callID string, answerTime time.Time) {
	r.enqueue("answered", callID, func(db *DB) {
		_, err := db.sql.Exec(
			`UPDATE call_records SET status = ?, answer_time = ? WHERE id = ?`,
			StatusAnswered, answerTime.UTC().Format(time.RFC3339), callID,
		)
		if err != nil {
			r.log.Error().Err(err).Str("callId", callID).Msg("answer update failed")
		}
	})
}

// MarkCompleted queues the final update written at hang-up.
func (r *Recorder) MarkCompleted(callID string, endTime time.Time, durationSecs int64) {
	r.enqueue("completed", callID, func(db *DB) {
		_, err := db.sql.Exec(
			`UPDATE call_records SET status = ?, end_time = ?, duration_secs = ? WHERE id = ?`,
			StatusCompleted, endTime.UTC().Format(time.RFC3339), durationSecs, callID,
		)
		if err != nil {
			r.log.Error().Err(err).Str("callId", callID).Msg("completion update failed")
		}
	})
}

// Flush waits until every write queued before the call has committed.
func (r *Recorder) Flush() {
	done := make(chan struct{})
	select {
	case r.queue <- func(*DB) { close(done) }:
		<-done
	default:
	}
}

// Get reads a record back. Used by reporting and tests; reads are
// synchronous and see whatever the drain goroutine has committed.
func (r *Recorder) Get(callID string) (Record, error) {
	var rec Record
	var startTime string
	var answerTime, endTime sql.NullString

	err := r.db.sql.QueryRow(
		`SELECT id, tenant_id, agent_id, user_id, lead_id, campaign_id, queue_id,
		        direction, status, phone_number, start_time, answer_time, end_time, duration_secs
		 FROM call_records WHERE id = ?`, callID,
	).Scan(
		&rec.ID, &rec.TenantID, &rec.AgentID, &rec.UserID, &rec.LeadID,
		&rec.CampaignID, &rec.QueueID, &rec.Direction, &rec.Status,
		&rec.PhoneNumber, &startTime, &answerTime, &endTime, &rec.DurationSecs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	rec.StartTime, _ = time.Parse(time.RFC3339, startTime)
	if answerTime.Valid {
		rec.AnswerTime, _ = time.Parse(time.RFC3339, answerTime.String)
	}
	if endTime.Valid {
		rec.EndTime, _ = time.Parse(time.RFC3339, endTime.String)
	}
	return rec, nil
}
