package postgresengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/librarystack/inventory-storage-go/inventory"
)

const logActionSubjects = "subjects"

// subjectLink is one join table materializing a reference of Instance subjects.
type subjectLink struct {
	table  string
	column string
	ref    func(inventory.Subject) string
}

var subjectLinks = []subjectLink{
	{tableSubjectSource, colSourceID, func(s inventory.Subject) string { return s.SourceID }},
	{tableSubjectType, colTypeID, func(s inventory.Subject) string { return s.TypeID }},
}

// writeSubjectLinks brings the join tables of one Instance from the old to the new subjects.
// Only the difference is written: references no longer present are removed, new ones are added.
func writeSubjectLinks(ctx context.Context, s *scope, instanceID string, oldSubjects, newSubjects []inventory.Subject) error {
	for _, link := range subjectLinks {
		before := link.refs(oldSubjects)
		after := link.refs(newSubjects)

		if removed := difference(before, after); len(removed) > 0 {
			sqlQuery, err := toSQL(builder().Delete(s.table(link.table)).Where(
				goqu.C(colSubjectInstanceID).Eq(instanceID),
				goqu.C(link.column).In(removed),
			))
			if err != nil {
				return err
			}

			if err := s.exec(ctx, sqlQuery, logActionSubjects); err != nil {
				return err
			}
		}

		if added := difference(after, before); len(added) > 0 {
			rows := make([]any, 0, len(added))
			for _, ref := range added {
				rows = append(rows, goqu.Record{
					colSubjectInstanceID: goqu.L(castUUID, instanceID),
					link.column:          goqu.L(castUUID, ref),
				})
			}

			sqlQuery, err := toSQL(builder().Insert(s.table(link.table)).Rows(rows...).OnConflict(goqu.DoNothing()))
			if err != nil {
				return err
			}

			if err := s.exec(ctx, sqlQuery, logActionSubjects); err != nil {
				return err
			}
		}
	}

	return nil
}

// SubjectSourceInUse reports whether any Instance references the subject source.
func (e *Engine) SubjectSourceInUse(ctx context.Context, rc inventory.RequestContext, sourceID string) (bool, error) {
	return e.subjectReferenceInUse(ctx, rc, subjectLinks[0], sourceID)
}

// SubjectTypeInUse reports whether any Instance references the subject type.
func (e *Engine) SubjectTypeInUse(ctx context.Context, rc inventory.RequestContext, typeID string) (bool, error) {
	return e.subjectReferenceInUse(ctx, rc, subjectLinks[1], typeID)
}

func (e *Engine) subjectReferenceInUse(ctx context.Context, rc inventory.RequestContext, link subjectLink, ref string) (bool, error) {
	var inUse bool

	err := e.read(ctx, rc, "subject_reference_in_use", func(ctx context.Context, s *scope) error {
		sqlQuery, err := toSQL(builder().From(s.table(link.table)).
			Select(goqu.L("1::text")).
			Where(goqu.C(link.column).Eq(ref)).
			Limit(1))
		if err != nil {
			return err
		}

		rows, err := s.scanStrings(ctx, sqlQuery, logActionSubjects, 1)
		inUse = len(rows) > 0

		return err
	})

	return inUse, err
}

func (l subjectLink) refs(subjects []inventory.Subject) []string {
	refs := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		if ref := l.ref(subject); ref != "" {
			refs = append(refs, ref)
		}
	}

	return unique(refs)
}

// unique drops repeated values, keeping the first occurrence.
func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}

// difference returns the elements of a that are not in b, in the order of a.
func difference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, v := range b {
		exclude[v] = struct{}{}
	}

	result := make([]string, 0)
	for _, v := range a {
		if _, ok := exclude[v]; !ok {
			result = append(result, v)
		}
	}

	return result
}
