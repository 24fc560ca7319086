package cmd

import (
	"context"
	"fmt"
	"strconv"
)

// MetaOptions are the General page inputs. Nil fields stay unchanged.
type MetaOptions struct {
	Name              *string
	Description       *string
	DefaultUsername   *string
	HistoryMaxItems   *int
	HistoryMaxSizeMiB *int
	RecycleBin        *string // on or off
}

// Meta changes the general database information
func Meta(ctx context.Context, unlock UnlockOptions, opts MetaOptions, yes bool) {
	s, done := openSettings(ctx, unlock)
	defer done()

	m := s.Metadata()
	if opts.Name != nil {
		m.Name = *opts.Name
	}
	if opts.Description != nil {
		m.Description = *opts.Description
	}
	if opts.DefaultUsername != nil {
		m.DefaultUsername = *opts.DefaultUsername
	}
	if opts.HistoryMaxItems != nil {
		m.HistoryMaxItems = *opts.HistoryMaxItems
	}
	if opts.HistoryMaxSizeMiB != nil {
		m.HistoryMaxSizeMiB = *opts.HistoryMaxSizeMiB
	}
	if opts.RecycleBin != nil {
		on, err := parseSwitch(*opts.RecycleBin)
		if err != nil {
			HandleError(err)
		}
		m.RecycleBin = on
	}
	if err := m.Validate(); err != nil {
		HandleError(err)
	}
	s.SetMetadata(m)

	applySettings(ctx, s, yes)
}

func parseSwitch(v string) (bool, error) {
	switch v {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", v)
	}
	return b, nil
}
