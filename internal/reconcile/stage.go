package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/bulog/serapan/internal/fingerprint"
	"github.com/bulog/serapan/internal/procurement"
	"github.com/bulog/serapan/internal/sheet"
)

// directory resolves office names to entity ids. Names match exactly first, then
// trimmed and upper-cased.
type directory struct {
	kanwil       map[string]int64
	kancab       map[kancabKey]int64
	kancabByName map[string]Kancab
}

type kancabKey struct {
	kanwilID int64
	name     string
}

func (e *Engine) loadDirectory(ctx context.Context) (*directory, error) {
	kanwils, err := e.store.ListKanwil(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list kanwil: %w", err)
	}
	kancabs, err := e.store.ListKancab(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list kancab: %w", err)
	}
	d := &directory{
		kanwil:       make(map[string]int64, len(kanwils)*2),
		kancab:       make(map[kancabKey]int64, len(kancabs)),
		kancabByName: make(map[string]Kancab, len(kancabs)),
	}
	for _, k := range kanwils {
		d.kanwil[k.Name] = k.ID
		if _, ok := d.kanwil[normalize(k.Name)]; !ok {
			d.kanwil[normalize(k.Name)] = k.ID
		}
	}
	for _, k := range kancabs {
		d.kancab[kancabKey{k.KanwilID, normalize(k.Name)}] = k.ID
		if _, ok := d.kancabByName[normalize(k.Name)]; !ok {
			d.kancabByName[normalize(k.Name)] = k
		}
	}
	return d, nil
}

func (d *directory) kanwilID(name string) (int64, bool) {
	if id, ok := d.kanwil[name]; ok {
		return id, true
	}
	id, ok := d.kanwil[normalize(name)]
	return id, ok
}

func (d *directory) kancabID(kanwilID int64, name string) (int64, bool) {
	id, ok := d.kancab[kancabKey{kanwilID, normalize(name)}]
	return id, ok
}

func (d *directory) kancabNamed(name string) (Kancab, bool) {
	k, ok := d.kancabByName[normalize(name)]
	return k, ok
}

// stage parses the upload, resolves entity ids and fingerprints every row.
func (e *Engine) stage(ctx context.Context, up Upload, opts Options, report *Report) ([]Row, error) {
	if opts.RegisterOffices && up.Table == TableRealisasi {
		if err := e.registerOffices(ctx, up); err != nil {
			return nil, err
		}
	}
	dir, err := e.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	table := string(up.Table)
	switch up.Table {
	case TableTargetKanwil:
		targets, rowErrs := sheet.RegionTargets(up.Sheet, e.asOf(up))
		report.Uploaded = len(targets)
		report.RowErrors = rowErrs
		rows := make([]Row, 0, len(targets))
		for i := range targets {
			t := targets[i]
			id, ok := dir.kanwilID(t.Kanwil)
			if !ok {
				report.SkippedTargets++
				continue
			}
			t.KanwilID = procurement.Int64Ptr(id)
			t.RowHash = fingerprint.RegionTarget(t)
			rows = append(rows, Row{RegionTarget: &t})
		}
		e.metrics.AddReconcileRows(table, "skipped", report.SkippedTargets)
		return rows, nil

	case TableTargetKancab:
		targets, rowErrs := sheet.BranchTargets(up.Sheet, e.asOf(up))
		report.Uploaded = len(targets)
		report.RowErrors = rowErrs
		rows := make([]Row, 0, len(targets))
		for i := range targets {
			t := targets[i]
			k, ok := dir.kancabNamed(t.Kancab)
			if !ok {
				report.SkippedTargets++
				continue
			}
			t.KancabID = procurement.Int64Ptr(k.ID)
			t.KanwilID = procurement.Int64Ptr(k.KanwilID)
			t.RowHash = fingerprint.BranchTarget(t)
			rows = append(rows, Row{BranchTarget: &t})
		}
		e.metrics.AddReconcileRows(table, "skipped", report.SkippedTargets)
		return rows, nil

	default:
		records, rowErrs := sheet.Transactions(up.Sheet)
		report.Uploaded = len(records)
		report.RowErrors = rowErrs
		rows := make([]Row, 0, len(records))
		for i := range records {
			r := records[i]
			if id, ok := dir.kanwilID(r.Kanwil); ok {
				r.KanwilID = procurement.Int64Ptr(id)
			} else {
				report.SkippedKanwil++
			}
			if strings.TrimSpace(r.Kancab) != "" {
				resolved := false
				if r.KanwilID != nil {
					if id, ok := dir.kancabID(*r.KanwilID, r.Kancab); ok {
						r.KancabID = procurement.Int64Ptr(id)
						resolved = true
					}
				}
				if !resolved {
					report.SkippedKancab++
				}
			}
			r.RowHash = fingerprint.Record(r)
			rows = append(rows, Row{Transaction: &r})
		}
		return rows, nil
	}
}

// registerOffices creates the kanwil and kancab pairs named in the upload.
func (e *Engine) registerOffices(ctx context.Context, up Upload) error {
	registrar, ok := e.store.(OfficeRegistrar)
	if !ok {
		return nil
	}
	records, _ := sheet.Transactions(up.Sheet)
	seen := make(map[Office]struct{})
	var offices []Office
	for _, r := range records {
		o := Office{Kanwil: strings.TrimSpace(r.Kanwil), Kancab: strings.TrimSpace(r.Kancab)}
		if o.Kanwil == "" {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		offices = append(offices, o)
	}
	if err := registrar.RegisterOffices(ctx, offices); err != nil {
		return fmt.Errorf("reconcile: register offices: %w", err)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
