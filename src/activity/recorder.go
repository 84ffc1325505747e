package activity

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/models"
	"trading-relay/src/state"
	"trading-relay/src/utils"
)

const auditBuffer = 256

type auditJob struct {
	entry *models.MLogEntry
	trade *models.MTradeRecord
}

// -----------------------------------------------------------------------------

// Recorder appends user-visible activity entries to the store, pushes them
// to clients as log frames and mirrors them to the process log. With an
// audit store attached, entries and trades are also persisted off the hot
// path.
type Recorder struct {
	store  *state.StateStore
	pub    interfaces.IEventPublisher
	Logger *logger.Logger
	now    func() time.Time

	mu      sync.RWMutex
	audit   interfaces.IAuditStore
	jobs    chan auditJob
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func NewRecorder(store *state.StateStore, pub interfaces.IEventPublisher, log *logger.Logger, now func() time.Time) *Recorder {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, pub: pub, Logger: log, now: now}
}

// -----------------------------------------------------------------------------

// AttachAudit starts a background writer for store.
func (r *Recorder) AttachAudit(store interfaces.IAuditStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audit != nil || store == nil {
		return
	}
	r.audit = store
	r.jobs = make(chan auditJob, auditBuffer)
	r.wg.Add(1)
	go r.writeLoop(store, r.jobs)
}

func (r *Recorder) writeLoop(store interfaces.IAuditStore, jobs <-chan auditJob) {
	defer r.wg.Done()
	for job := range jobs {
		var err error
		switch {
		case job.entry != nil:
			err = store.SaveLogEntry(*job.entry)
		case job.trade != nil:
			err = store.SaveTrade(*job.trade)
		}
		if err != nil {
			r.Logger.Warning("audit write failed: %v", err)
		}
	}
}

// Close flushes pending audit writes.
func (r *Recorder) Close() {
	r.mu.Lock()
	jobs := r.jobs
	r.jobs = nil
	r.audit = nil
	r.mu.Unlock()
	if jobs != nil {
		close(jobs)
		r.wg.Wait()
	}
}

func (r *Recorder) submit(job auditJob) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.jobs == nil {
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.dropped.Add(1)
	}
}

// DroppedAudits reports audit jobs discarded because the writer fell behind.
func (r *Recorder) DroppedAudits() int64 {
	return r.dropped.Load()
}

// -----------------------------------------------------------------------------

// Record creates and distributes one entry.
func (r *Recorder) Record(sev models.Severity, subsystem, format string, args ...interface{}) models.MLogEntry {
	now := r.now().UTC()
	entry := models.MLogEntry{
		ID:        utils.NewID(now),
		Timestamp: now,
		Severity:  sev,
		Message:   fmt.Sprintf(format, args...),
		Subsystem: subsystem,
	}

	evt := models.MEvent{Type: models.EventLog, Data: entry}
	switch pub := r.pub.(type) {
	case nil:
		r.store.AppendLog(entry)
	case interfaces.IStatePublisher:
		pub.PublishAfter(func() { r.store.AppendLog(entry) }, evt)
	default:
		r.store.AppendLog(entry)
		pub.Publish(evt)
	}
	r.mirror(entry)
	r.submit(auditJob{entry: &entry})
	return entry
}

func (r *Recorder) mirror(e models.MLogEntry) {
	switch e.Severity {
	case models.SeverityError:
		r.Logger.Error("[%s] %s", e.Subsystem, e.Message)
	case models.SeverityWarn:
		r.Logger.Warning("[%s] %s", e.Subsystem, e.Message)
	default:
		r.Logger.Info("[%s] %s", e.Subsystem, e.Message)
	}
}

func (r *Recorder) Info(subsystem, format string, args ...interface{}) models.MLogEntry {
	return r.Record(models.SeverityInfo, subsystem, format, args...)
}

func (r *Recorder) Warn(subsystem, format string, args ...interface{}) models.MLogEntry {
	return r.Record(models.SeverityWarn, subsystem, format, args...)
}

func (r *Recorder) Error(subsystem, format string, args ...interface{}) models.MLogEntry {
	return r.Record(models.SeverityError, subsystem, format, args...)
}

func (r *Recorder) Success(subsystem, format string, args ...interface{}) models.MLogEntry {
	return r.Record(models.SeveritySuccess, subsystem, format, args...)
}

// -----------------------------------------------------------------------------

// Trade persists an execution record to the audit trail, if any.
func (r *Recorder) Trade(rec models.MTradeRecord) {
	if rec.ID == "" {
		rec.ID = utils.NewID(r.now())
	}
	if rec.Time.IsZero() {
		rec.Time = r.now().UTC()
	}
	r.submit(auditJob{trade: &rec})
}

// Notify pushes a desktop notification frame.
func (r *Recorder) Notify(title, body string) {
	if r.pub != nil {
		r.pub.Publish(models.MEvent{Type: models.EventNotification, Data: models.MNotification{Title: title, Body: body}})
	}
}
