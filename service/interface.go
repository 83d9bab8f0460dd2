package service

import (
	"errors"
)

var (
	ErrorIndexNotFound  = errors.New("index not found")
	ErrorRecordNotFound = errors.New("record not found")
)

// Document is the JSON view of a stored record.
type Document = map[string]any

type Servicer interface { // read only view of the database
	GetStatus() (*Status, error)
	ListIndexes() ([]*Index, error)
	GetIndex(name string) (*Index, error)
	GetRecord(name string, id int64) (Document, error)
	Scan(name string, backup bool, from int64, count int) ([]Entry, error)
}
