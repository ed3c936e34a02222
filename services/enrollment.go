package services

import (
	"context"
	"errors"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"

	"github.com/sirupsen/logrus"
)

// ClassListing is a class with its current monthly tuition and seat usage.
type ClassListing struct {
	models.Class
	MonthlyTuitionCents int64 `json:"monthly_tuition_cents"`
	ActiveEnrollments   int   `json:"active_enrollments"`
}

// listClasses joins classes with pricing and active enrollment counts.
func listClasses(ctx context.Context, st repository.Store, activeOnly bool) ([]ClassListing, error) {
	classes, err := st.ListClasses(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	active, err := st.ListEnrollments(ctx, repository.EnrollmentFilter{Status: models.EnrollmentActive})
	if err != nil {
		return nil, err
	}
	seats := map[uint]int{}
	for _, e := range active {
		seats[e.ClassID]++
	}

	out := make([]ClassListing, 0, len(classes))
	for _, c := range classes {
		row := ClassListing{Class: c, ActiveEnrollments: seats[c.ID]}
		p, err := st.GetClassPricing(ctx, c.ID)
		switch {
		case err == nil:
			row.MonthlyTuitionCents = p.MonthlyTuitionCents
		case !isNotFound(err):
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// enroll places a student of familyID into classID. The family row lock
// serializes enrollments of one family, which keeps the duplicate check exact.
func enroll(ctx context.Context, st repository.Store, now time.Time, familyID, studentID, classID uint) (*models.Enrollment, error) {
	var out *models.Enrollment
	err := st.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.LockFamily(ctx, familyID); err != nil {
			return missing("family", familyID, err)
		}
		student, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			return missing("student", studentID, err)
		}
		if student.FamilyID != familyID {
			// another family's student is reported as absent
			return missing("student", studentID, repository.ErrNotFound)
		}
		if !student.Active {
			return conflictf("student %d is inactive", studentID)
		}
		class, err := tx.GetClass(ctx, classID)
		if err != nil {
			return missing("class", classID, err)
		}
		if !class.Active {
			return conflictf("class %d is not open for enrollment", classID)
		}

		current, err := tx.ListEnrollments(ctx, repository.EnrollmentFilter{ClassID: classID, Status: models.EnrollmentActive})
		if err != nil {
			return err
		}
		for _, e := range current {
			if e.StudentID == studentID {
				return conflictf("student %d is already enrolled in class %d", studentID, classID)
			}
		}
		if class.Capacity > 0 && len(current) >= class.Capacity {
			return conflictf("class %d is full (%d seats)", classID, class.Capacity)
		}

		e := &models.Enrollment{
			StudentID: studentID,
			ClassID:   classID,
			StartDate: now,
			Status:    models.EnrollmentActive,
		}
		if err := tx.CreateEnrollment(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"family_id":     familyID,
		"student_id":    studentID,
		"class_id":      classID,
		"enrollment_id": out.ID,
	}).Info("Student enrolled")
	return out, nil
}

// FamilyEnrollment is an enrollment with the names a family sees.
type FamilyEnrollment struct {
	models.Enrollment
	StudentName string `json:"student_name"`
	ClassName   string `json:"class_name"`
}

func familyEnrollments(ctx context.Context, st repository.Store, familyID uint) ([]FamilyEnrollment, error) {
	students, err := st.ListStudents(ctx, familyID)
	if err != nil {
		return nil, err
	}
	classNames := map[uint]string{}
	var out []FamilyEnrollment
	for _, s := range students {
		enrollments, err := st.ListEnrollments(ctx, repository.EnrollmentFilter{StudentID: s.ID})
		if err != nil {
			return nil, err
		}
		for _, e := range enrollments {
			name, ok := classNames[e.ClassID]
			if !ok {
				if c, err := st.GetClass(ctx, e.ClassID); err == nil {
					name = c.Name
				}
				classNames[e.ClassID] = name
			}
			out = append(out, FamilyEnrollment{Enrollment: e, StudentName: s.FullName(), ClassName: name})
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
