// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"sync"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	uuid "github.com/satori/go.uuid"

	"github.com/sapcc/go-bits/logg"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// Processor is a higher-level interface wrapping stevedore.DB and
// stevedore.ContentStore. It abstracts DB accesses into high-level
// interactions and keeps DB updates in lockstep with content store accesses.
type Processor struct {
	cfg  stevedore.Configuration
	db   *stevedore.DB
	cs   stevedore.ContentStore
	sink stevedore.EventSink

	// uploadLocks serializes all mutating operations on a single upload
	// session (append, finalize, cancel). Different sessions proceed in
	// parallel.
	uploadLocks *mutexTable

	// non-pure functions that can be replaced by deterministic doubles for unit tests
	timeNow          func() time.Time
	generateUploadID func() string
}

// New creates a new Processor.
func New(cfg stevedore.Configuration, db *stevedore.DB, cs stevedore.ContentStore, sink stevedore.EventSink) *Processor {
	return &Processor{
		cfg:              cfg,
		db:               db,
		cs:               cs,
		sink:             sink,
		uploadLocks:      newMutexTable(),
		timeNow:          time.Now,
		generateUploadID: GenerateUploadID,
	}
}

// GenerateUploadID generates the ID for a new upload session. Upload IDs are
// opaque to clients; they only ever travel through Location URLs and the
// Docker-Upload-UUID header.
func GenerateUploadID() string {
	return uuid.NewV4().String()
}

// ContentStore exposes the content store. Blob reads go straight to the
// content store; only mutating operations need the Processor's coordination.
func (p *Processor) ContentStore() stevedore.ContentStore {
	return p.cs
}

// OverrideTimeNow replaces time.Now with a test double.
func (p *Processor) OverrideTimeNow(timeNow func() time.Time) *Processor {
	p.timeNow = timeNow
	return p
}

// OverrideGenerateUploadID replaces GenerateUploadID with a test double.
func (p *Processor) OverrideGenerateUploadID(generateUploadID func() string) *Processor {
	p.generateUploadID = generateUploadID
	return p
}

// Executes the action callback within a database transaction. If the action
// callback returns success (i.e. a nil error), the transaction will be
// committed. If it returns an error or panics, the transaction will be rolled
// back.
func (p *Processor) insideTransaction(action func(*gorp.Transaction) error) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	isCommitted := false

	defer func() {
		if !isCommitted {
			err := tx.Rollback()
			if err != nil {
				logg.Error("implicit rollback failed: " + err.Error())
			}
		}
	}()

	err = action(tx)
	if err != nil {
		return err
	}
	err = tx.Commit()
	if err != nil {
		return err
	}
	isCommitted = true
	return nil
}

func (p *Processor) emitEvent(eventType stevedore.EventType, repoName string, customize func(*stevedore.Event)) {
	event := stevedore.Event{
		Type:       eventType,
		Repository: repoName,
		Timestamp:  p.timeNow(),
	}
	if customize != nil {
		customize(&event)
	}
	p.sink.Emit(event)
}

////////////////////////////////////////////////////////////////////////////////
// type mutexTable

// mutexTable hands out one mutex per key. Entries are reference-counted and
// removed from the table as soon as no one holds or waits for them, so the
// table does not grow with the total number of upload sessions ever seen.
type mutexTable struct {
	mutex   sync.Mutex
	entries map[string]*mutexTableEntry
}

type mutexTableEntry struct {
	mutex    sync.Mutex
	refCount uint64
}

func newMutexTable() *mutexTable {
	return &mutexTable{entries: make(map[string]*mutexTableEntry)}
}

// Lock blocks until the mutex for this key is acquired, then returns the
// corresponding unlock function.
func (t *mutexTable) Lock(key string) (unlock func()) {
	t.mutex.Lock()
	entry := t.entries[key]
	if entry == nil {
		entry = &mutexTableEntry{}
		t.entries[key] = entry
	}
	entry.refCount++
	t.mutex.Unlock()

	entry.mutex.Lock()
	return func() {
		entry.mutex.Unlock()
		t.mutex.Lock()
		entry.refCount--
		if entry.refCount == 0 {
			delete(t.entries, key)
		}
		t.mutex.Unlock()
	}
}
