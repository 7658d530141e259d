// Package wellness keeps family health records: members, wellness goals and
// vaccinations, with age, BMI, progress and vaccination status derived on read.
package wellness

import (
	"time"
)

// Age groups.
const (
	AgeInfant = "infant"
	AgeChild  = "child"
	AgeTeen   = "teen"
	AgeAdult  = "adult"
	AgeSenior = "senior"
)

// BMI categories.
const (
	BMIUnderweight = "underweight"
	BMINormal      = "normal"
	BMIOverweight  = "overweight"
	BMIObese       = "obese"
)

// Vaccination statuses.
const (
	VaccinationCompleted = "completed"
	VaccinationOverdue   = "overdue"
	VaccinationDueSoon   = "due-soon"
	VaccinationScheduled = "scheduled"
)

var vaccinationStatuses = map[string]bool{
	VaccinationCompleted: true, VaccinationOverdue: true,
	VaccinationDueSoon: true, VaccinationScheduled: true,
}

type FamilyMember struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship"`
	DateOfBirth  time.Time `json:"dateOfBirth"`
	Gender       string    `json:"gender,omitempty"`
	BloodGroup   string    `json:"bloodGroup,omitempty"`
	HeightCm     *float64  `json:"heightCm,omitempty"`
	WeightKg     *float64  `json:"weightKg,omitempty"`
	Allergies    []string  `json:"allergies"`
	Conditions   []string  `json:"conditions"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Derived on read.
	Age         int      `json:"age"`
	AgeGroup    string   `json:"ageGroup"`
	BMI         *float64 `json:"bmi,omitempty"`
	BMICategory string   `json:"bmiCategory,omitempty"`
}

type Goal struct {
	ID        string     `json:"id"`
	MemberID  string     `json:"memberId"`
	Title     string     `json:"title"`
	Category  string     `json:"category,omitempty"`
	Target    float64    `json:"target"`
	Current   float64    `json:"current"`
	Unit      string     `json:"unit,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	// Derived on read.
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
}

type Vaccination struct {
	ID             string     `json:"id"`
	MemberID       string     `json:"memberId"`
	Vaccine        string     `json:"vaccine"`
	Dose           int        `json:"dose"`
	DueDate        time.Time  `json:"dueDate"`
	AdministeredAt *time.Time `json:"administeredAt,omitempty"`
	Provider       string     `json:"provider,omitempty"`
	Notes          string     `json:"notes,omitempty"`

	// Derived on read.
	Status string `json:"status"`
}
