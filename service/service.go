package service

import (
	"fmt"
	"time"

	"github.com/fulldump/ledgerdb/database"
	"github.com/fulldump/ledgerdb/utils"
)

type Service struct {
	db      *database.Database
	timeout time.Duration
}

func NewService(db *database.Database, timeout time.Duration) *Service {
	return &Service{
		db:      db,
		timeout: timeout,
	}
}

type Status struct {
	Status       string `json:"status"`
	ReadOnly     bool   `json:"read_only"`
	Revision     int64  `json:"revision"`
	Irreversible int64  `json:"irreversible"`
	FreeMemory   uint64 `json:"free_memory"`
}

func (s *Service) GetStatus() (*Status, error) {
	result := &Status{
		Status:   s.db.GetStatus(),
		ReadOnly: s.db.IsReadOnly(),
	}
	err := s.db.WithReadLock(s.timeout, func() error {
		result.Revision = s.db.Revision()
		result.Irreversible, _ = s.db.UndoStackRevisionRange()
		result.FreeMemory = s.db.FreeMemory()
		return nil
	})
	return result, err
}

type Index struct {
	Name        string `json:"name"`
	TypeID      uint16 `json:"type_id"`
	Rows        int    `json:"rows"`
	Revision    int64  `json:"revision"`
	UndoBegin   int64  `json:"undo_begin"`
	UndoEnd     int64  `json:"undo_end"`
	CacheFrames int    `json:"cache_frames"`
	BackupRows  int    `json:"backup_rows"`
}

func describe(index database.AbstractIndex) *Index {
	begin, end := index.UndoStackRevisionRange()
	return &Index{
		Name:        index.Name(),
		TypeID:      index.TypeID(),
		Rows:        index.Len(),
		Revision:    index.Revision(),
		UndoBegin:   begin,
		UndoEnd:     end,
		CacheFrames: index.CacheFrames(),
		BackupRows:  index.BackupLen(),
	}
}

func (s *Service) ListIndexes() ([]*Index, error) {
	result := []*Index{}
	err := s.db.WithReadLock(s.timeout, func() error {
		for _, index := range s.db.Indexes() {
			result = append(result, describe(index))
		}
		return nil
	})
	return result, err
}

func (s *Service) GetIndex(name string) (*Index, error) {
	index, exists := s.db.Index(name)
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrorIndexNotFound, name)
	}
	var result *Index
	err := s.db.WithReadLock(s.timeout, func() error {
		result = describe(index)
		return nil
	})
	return result, err
}

func (s *Service) GetRecord(name string, id int64) (Document, error) {
	index, exists := s.db.Index(name)
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrorIndexNotFound, name)
	}
	var document Document
	err := s.db.WithReadLock(s.timeout, func() error {
		record, found := index.FindObject(id)
		if !found {
			return fmt.Errorf("%w: '%s' %d", ErrorRecordNotFound, name, id)
		}
		var err error
		document, err = toDocument(record)
		return err
	})
	return document, err
}

// Entry is one record returned by Scan.
type Entry struct {
	ID       int64
	Document Document
}

// Scan returns at most count records of the named index in identity order,
// starting at identity from, the backup image when backup is set. The read
// lock is held only while the records are collected.
func (s *Service) Scan(name string, backup bool, from int64, count int) ([]Entry, error) {
	index, exists := s.db.Index(name)
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrorIndexNotFound, name)
	}
	result := make([]Entry, 0, count)
	err := s.db.WithReadLock(s.timeout, func() error {
		var err error
		index.TraverseObjects(backup, from, func(id int64, record any) bool {
			if len(result) >= count {
				return false
			}
			var document Document
			document, err = toDocument(record)
			if err != nil {
				return false
			}
			result = append(result, Entry{ID: id, Document: document})
			return true
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func toDocument(record any) (Document, error) {
	document := Document{}
	if err := utils.Remarshal(record, &document); err != nil {
		return nil, fmt.Errorf("convert record: %w", err)
	}
	return document, nil
}
