package store

import (
	"fmt"

	"github.com/thechief/rememberd/internal/shared/id"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Migrate brings a document to the current schema version by applying one
// pure transform per version gap, in order, before any component observes
// the data.
//
// History:
//
//	v1 → v2: instance records gain a stable id (backfilled)
//	v2 → v3: state flags folded into one object; absent flags default false
func Migrate(doc *Document) (*Document, error) {
	if doc.Version > types.SchemaVersion {
		return nil, fmt.Errorf("state version %d is newer than supported %d", doc.Version, types.SchemaVersion)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}

	for doc.Version < types.SchemaVersion {
		switch doc.Version {
		case 1:
			migrateV1toV2(doc)
		case 2:
			migrateV2toV3(doc)
		}
		doc.Version++
	}

	if doc.Monitors == nil {
		doc.Monitors = make(map[string]types.MonitorInfo)
	}
	if doc.Apps == nil {
		doc.Apps = make(map[string]*types.AppRecord)
	}
	return doc, nil
}

// migrateV1toV2 backfills instance ids for documents written before ids
// existed.
func migrateV1toV2(doc *Document) {
	for _, app := range doc.Apps {
		for _, inst := range app.Instances {
			if inst.ID == "" {
				inst.ID = id.NewInstanceID().String()
			}
		}
	}
}

// migrateV2toV3 guarantees every app record carries its class key and drops
// instances that lost their identity entirely (no id after backfill means a
// corrupted entry).
func migrateV2toV3(doc *Document) {
	for class, app := range doc.Apps {
		if app.Class == "" {
			app.Class = class
		}
		kept := app.Instances[:0]
		for _, inst := range app.Instances {
			if inst.ID != "" {
				kept = append(kept, inst)
			}
		}
		app.Instances = kept
	}
}
