package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultDatabaseName      = "Passwords"
	DefaultHistoryMaxItems   = 10
	DefaultHistoryMaxSizeMiB = 6
)

var ErrInvalidMetadata = errors.New("invalid database metadata")

// Metadata is the general database information kept in the encrypted body
type Metadata struct {
	Name              string `json:"name" yaml:"name"`
	Description       string `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultUsername   string `json:"default_username,omitempty" yaml:"default_username,omitempty"`
	HistoryMaxItems   int    `json:"history_max_items" yaml:"history_max_items"` // -1 keeps unlimited history
	HistoryMaxSizeMiB int    `json:"history_max_size_mib" yaml:"history_max_size_mib"`
	RecycleBin        bool   `json:"recycle_bin" yaml:"recycle_bin"`
}

// NewMetadata returns the defaults of a new database
func NewMetadata() *Metadata {
	return &Metadata{
		Name:              DefaultDatabaseName,
		HistoryMaxItems:   DefaultHistoryMaxItems,
		HistoryMaxSizeMiB: DefaultHistoryMaxSizeMiB,
		RecycleBin:        true,
	}
}

// Normalize trims whitespace and falls back to the default name
func (m *Metadata) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		m.Name = DefaultDatabaseName
	}
	m.Description = strings.TrimSpace(m.Description)
	m.DefaultUsername = strings.TrimSpace(m.DefaultUsername)
}

// Validate rejects out of range history limits
func (m *Metadata) Validate() error {
	if m.HistoryMaxItems < -1 {
		return fmt.Errorf("%w: history max items must be -1 or more", ErrInvalidMetadata)
	}
	if m.HistoryMaxSizeMiB < -1 {
		return fmt.Errorf("%w: history max size must be -1 or more", ErrInvalidMetadata)
	}
	return nil
}

// Clone returns a copy of m
func (m *Metadata) Clone() *Metadata {
	c := *m
	return &c
}
