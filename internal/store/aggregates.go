package store

import "context"

// RecomputeTeacherTotals rewrites total_classes and total_students of a
// teacher from the current rows. It is a full recount, never an increment.
func RecomputeTeacherTotals(ctx context.Context, tx Tx, teacherID string) error {
	classes, err := tx.CountClassesByTeacher(ctx, teacherID)
	if err != nil {
		return err
	}
	students, err := tx.CountActiveEnrollmentsByTeacher(ctx, teacherID)
	if err != nil {
		return err
	}
	return tx.SetTeacherTotals(ctx, teacherID, classes, students)
}
