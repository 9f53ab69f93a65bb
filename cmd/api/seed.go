package main

import (
	"os"

	"golang.org/x/crypto/bcrypt"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/geo"
)

const demoPassword = "attend-demo"

// demoFence is used when DEFAULT_FENCE is unset.
var demoFence = geo.Fence{Center: geo.Position{Latitude: 12.9716, Longitude: 77.5946}, RadiusMeters: 100}

// seedDemo fills the in-memory stores with one teacher, two students and
// two classes so a fresh dev server is usable. DEMO_PASSWORD overrides the
// shared password.
func seedDemo(classes *attendance.MemoryStore, users *auth.MemoryStore, fence *geo.Fence) error {
	pw := os.Getenv("DEMO_PASSWORD")
	if pw == "" {
		pw = demoPassword
	}
	hash, err := auth.HashPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	for _, u := range []auth.User{
		{ID: "teacher-1", Email: "teacher@smartattend.local", Name: "Demo Teacher", Role: auth.RoleTeacher},
		{ID: "student-1", Email: "student1@smartattend.local", Name: "Demo Student 1", Role: auth.RoleStudent, Department: "CSE", Year: "3"},
		{ID: "student-2", Email: "student2@smartattend.local", Name: "Demo Student 2", Role: auth.RoleStudent, Department: "CSE", Year: "3"},
	} {
		u.PasswordHash = hash
		users.PutUser(u)
	}

	if fence == nil {
		fence = &demoFence
	}
	f := *fence
	classes.PutClass(attendance.Class{ID: "cse3-networks", Name: "Computer Networks", TeacherID: "teacher-1", Department: "CSE", Year: "3", Fence: &f})
	classes.PutClass(attendance.Class{ID: "cse3-os", Name: "Operating Systems", TeacherID: "teacher-1", Department: "CSE", Year: "3"})
	return nil
}
