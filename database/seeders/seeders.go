package seeders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/utils"

	"github.com/sirupsen/logrus"
)

// DefaultPassword is the login of every seeded account.
const DefaultPassword = "password123"

// SeedAll seeds a development dataset once. It is skipped when the admin
// account already exists.
func SeedAll(ctx context.Context, st repository.Store) error {
	if _, err := st.GetUserByUsername(ctx, "admin"); err == nil {
		logrus.Info("Database already seeded, skipping...")
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	logrus.Info("Starting database seeding...")
	hashedPassword, err := utils.HashPassword(DefaultPassword)
	if err != nil {
		return err
	}

	err = st.RunInTx(ctx, func(tx repository.Store) error {
		if err := SeedUsers(ctx, tx, hashedPassword); err != nil {
			return err
		}
		family, err := SeedFamily(ctx, tx, hashedPassword)
		if err != nil {
			return err
		}
		return SeedClasses(ctx, tx, family)
	})
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	logrus.Info("Database seeding completed successfully!")
	return nil
}

// SeedUsers seeds the staff account
func SeedUsers(ctx context.Context, tx repository.Store, hashedPassword string) error {
	return tx.CreateUser(ctx, &models.User{
		Username: "admin",
		Password: hashedPassword,
		Email:    "admin@danceportal.local",
		Role:     models.RoleAdmin,
		Status:   models.UserActive,
	})
}

// SeedFamily seeds one family with a portal login and a student.
func SeedFamily(ctx context.Context, tx repository.Store, hashedPassword string) (*models.Family, error) {
	family := &models.Family{
		Name:  "Rivera Family",
		Email: "rivera@example.com",
		Phone: "555-0100",
	}
	if err := tx.CreateFamily(ctx, family); err != nil {
		return nil, err
	}

	familyID := family.ID
	if err := tx.CreateUser(ctx, &models.User{
		Username: "rivera",
		Password: hashedPassword,
		Email:    family.Email,
		Role:     models.RoleFamily,
		FamilyID: &familyID,
		Status:   models.UserActive,
	}); err != nil {
		return nil, err
	}

	birthdate := time.Date(2016, 4, 12, 0, 0, 0, 0, time.UTC)
	if err := tx.CreateStudent(ctx, &models.Student{
		FamilyID:  family.ID,
		FirstName: "Mia",
		LastName:  "Rivera",
		Birthdate: &birthdate,
		Active:    true,
	}); err != nil {
		return nil, err
	}
	return family, nil
}

// SeedClasses seeds the class catalog and enrolls the seeded student in the first class.
func SeedClasses(ctx context.Context, tx repository.Store, family *models.Family) error {
	classes := []struct {
		class   models.Class
		tuition int64
	}{
		{models.Class{Name: "Ballet Basics", Level: "Beginner", Style: "Ballet", DayOfWeek: 2, StartTime: "16:00", EndTime: "17:00", Capacity: 12, Active: true}, 5000},
		{models.Class{Name: "Hip Hop Juniors", Level: "Beginner", Style: "Hip Hop", DayOfWeek: 4, StartTime: "17:00", EndTime: "18:00", Capacity: 15, Active: true}, 5500},
		{models.Class{Name: "Contemporary II", Level: "Intermediate", Style: "Contemporary", DayOfWeek: 6, StartTime: "10:00", EndTime: "11:30", Capacity: 10, Active: true}, 7500},
	}

	for i := range classes {
		c := &classes[i].class
		if err := tx.CreateClass(ctx, c); err != nil {
			return err
		}
		if err := tx.SaveClassPricing(ctx, &models.ClassPricing{ClassID: c.ID, MonthlyTuitionCents: classes[i].tuition}); err != nil {
			return err
		}
	}

	students, err := tx.ListStudents(ctx, family.ID)
	if err != nil {
		return err
	}
	if len(students) == 0 {
		return nil
	}
	return tx.CreateEnrollment(ctx, &models.Enrollment{
		StudentID: students[0].ID,
		ClassID:   classes[0].class.ID,
		StartDate: time.Now().UTC(),
		Status:    models.EnrollmentActive,
	})
}
